package service

import (
	"context"
	"errors"
	"time"

	"proctora_backend/internal/config"
	"proctora_backend/internal/model"
	"proctora_backend/internal/util"
	"proctora_backend/pkg/logger"
	"proctora_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AttemptSubmitter 调度器驱动的交卷入口。Submit 幂等，
// 同一考试被重复投递也只会判分一次。
type AttemptSubmitter interface {
	SubmitExpired(ctx context.Context, attemptID string) error
}

type scheduleStore interface {
	Arm(attemptID string, fireAt time.Time) error
	DuePending(now time.Time, limit int) ([]model.ExpirySchedule, error)
	MarkDone(id uint) error
	RecordFailure(id uint, nextRetryAt time.Time, lastError string) error
	MarkFailed(id uint, lastError string) error
}

// ExpiryScheduler 保证晾在那里的考试到点也会被强制交卷判分，
// 哪怕客户端从此没有任何动静。触发记录持久化在库里，轮询
// 协程定期扫描到期项；进程重启不会弄丢定时义务。
type ExpiryScheduler struct {
	Store scheduleStore
	Cfg   *config.Config

	now  func() time.Time
	stop chan struct{}
}

func NewExpiryScheduler(store scheduleStore, cfg *config.Config) *ExpiryScheduler {
	return &ExpiryScheduler{
		Store: store,
		Cfg:   cfg,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
}

// Arm 布防：delay 之后强制交卷 attemptID。落库即生效。
func (s *ExpiryScheduler) Arm(attemptID string, delay time.Duration) error {
	return s.Store.Arm(attemptID, s.now().Add(delay))
}

// Run 轮询循环，阻塞直到 Stop。由 app 在独立协程中启动。
func (s *ExpiryScheduler) Run(submitter AttemptSubmitter) {
	interval := time.Duration(s.Cfg.LiveExam().SchedulerPollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.ProcessDue(context.Background(), submitter)
		}
	}
}

func (s *ExpiryScheduler) Stop() {
	close(s.stop)
}

// ProcessDue 扫描一轮到期项并逐个触发
func (s *ExpiryScheduler) ProcessDue(ctx context.Context, submitter AttemptSubmitter) {
	due, err := s.Store.DuePending(s.now(), 100)
	if err != nil {
		logger.Log.Error("expiry scheduler scan failed", zap.Error(err))
		return
	}

	for _, schedule := range due {
		s.fire(ctx, submitter, schedule)
	}
}

func (s *ExpiryScheduler) fire(ctx context.Context, submitter AttemptSubmitter, schedule model.ExpirySchedule) {
	err := submitter.SubmitExpired(ctx, schedule.AttemptID)
	if err == nil {
		monitoring.SchedulerFires.Inc()
		if err := s.Store.MarkDone(schedule.ID); err != nil {
			logger.Log.Error("failed to mark expiry schedule done",
				zap.String("attemptId", schedule.AttemptID), zap.Error(err))
		}
		return
	}

	if errors.Is(err, util.ErrAttemptNotFound) {
		// 考试记录已不存在，重试无意义
		logger.Log.Warn("expiry fired for missing attempt",
			zap.String("attemptId", schedule.AttemptID))
		_ = s.Store.MarkFailed(schedule.ID, err.Error())
		return
	}

	// 瞬时故障：指数退避重试；预算耗尽则进入终态并告警，
	// 这直接关系到考生的成绩是否还会被计算出来。
	exam := s.Cfg.LiveExam()
	if schedule.Attempts+1 >= exam.SchedulerMaxRetries {
		monitoring.SchedulerFailures.Inc()
		logger.Log.Error("expiry schedule exhausted retries, attempt may never be graded",
			zap.String("attemptId", schedule.AttemptID),
			zap.Int("attempts", schedule.Attempts+1),
			zap.Error(err))
		_ = s.Store.MarkFailed(schedule.ID, err.Error())
		return
	}

	backoff := time.Duration(exam.SchedulerBackoffSeconds) * time.Second << uint(schedule.Attempts)
	nextRetry := s.now().Add(backoff)
	logger.Log.Warn("expiry fire failed, will retry",
		zap.String("attemptId", schedule.AttemptID),
		zap.Time("nextRetryAt", nextRetry),
		zap.Error(err))
	if err := s.Store.RecordFailure(schedule.ID, nextRetry, err.Error()); err != nil {
		logger.Log.Error("failed to record expiry schedule failure",
			zap.String("attemptId", schedule.AttemptID), zap.Error(err))
	}
}
