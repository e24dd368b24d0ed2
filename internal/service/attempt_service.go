package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"proctora_backend/internal/config"
	"proctora_backend/internal/model"
	"proctora_backend/internal/util"
	"proctora_backend/pkg/logger"
	"proctora_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 交卷来源，用于指标与日志
const (
	submitCauseClient    = "client"
	submitCauseViolation = "violation"
	submitCauseExpiry    = "expiry"
)

type attemptStore interface {
	Create(attempt *model.Attempt) error
	FindByID(id string) (*model.Attempt, error)
	FindActive(testID string, userID uint) (*model.Attempt, error)
	MarkSubmitted(id string, now time.Time) (bool, error)
	UpsertAnswer(ans *model.AttemptAnswer) error
	StoreGrading(attemptID string, answers []model.AttemptAnswer, totalScore float64, gradedAt time.Time, visibilityAt *time.Time) error
	ListByUser(userID uint) ([]model.Attempt, error)
	ListByTest(testID string, page, limit int) ([]model.Attempt, int64, error)
}

type testStore interface {
	FindByID(id string) (*model.Test, error)
}

type questionStore interface {
	FindByID(id string) (*model.Question, error)
	ListByTest(testID string) ([]model.Question, error)
}

type violationTracker interface {
	Record(ctx context.Context, attemptID string, vtype model.ViolationType, ttl time.Duration) (*model.ViolationRecord, error)
	Get(ctx context.Context, attemptID string) (*model.ViolationRecord, error)
	Reset(ctx context.Context, attemptID string) error
}

type expiryArmer interface {
	Arm(attemptID string, delay time.Duration) error
}

// AttemptService 考试生命周期状态机：创建、自动保存、违规
// 自动交卷、主动交卷与判分都收口在这里。状态只前进不回退，
// 判分后的一切状态变更按 no-op 处理。
type AttemptService struct {
	Attempts   attemptStore
	Tests      testStore
	Questions  questionStore
	Violations violationTracker
	Scheduler  expiryArmer
	Cfg        *config.Config

	now func() time.Time
}

func NewAttemptService(attempts attemptStore, tests testStore, questions questionStore, violations violationTracker, scheduler expiryArmer, cfg *config.Config) *AttemptService {
	return &AttemptService{
		Attempts:   attempts,
		Tests:      tests,
		Questions:  questions,
		Violations: violations,
		Scheduler:  scheduler,
		Cfg:        cfg,
		now:        time.Now,
	}
}

// Start 开考。同一 (test, user) 已有 in_progress 记录时直接返回
// 该记录（alreadyActive=true），客户端重试不会产生重复考试。
// expiresAt 在此刻一次性固定，之后不再重算。
func (s *AttemptService) Start(ctx context.Context, testID string, userID uint) (*model.Attempt, bool, error) {
	test, err := s.Tests.FindByID(testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, util.ErrTestNotFound
		}
		return nil, false, err
	}
	if test.Status != model.TestPublished {
		return nil, false, util.ErrTestNotPublished
	}

	duration := time.Duration(test.DurationSeconds) * time.Second

	existing, err := s.Attempts.FindActive(testID, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		// 自愈：首次 Start 布防失败后的重试也会重新落一条触发记录
		if err := s.Scheduler.Arm(existing.ID, time.Until(existing.ExpiresAt)); err != nil {
			logger.Log.Warn("failed to re-arm expiry schedule",
				zap.String("attemptId", existing.ID), zap.Error(err))
		}
		return existing, true, nil
	}

	now := s.now()
	attempt := &model.Attempt{
		TestID:    testID,
		UserID:    userID,
		StartAt:   now,
		ExpiresAt: now.Add(duration),
		Status:    model.AttemptInProgress,
	}
	if err := s.Attempts.Create(attempt); err != nil {
		return nil, false, err
	}

	if err := s.Scheduler.Arm(attempt.ID, duration); err != nil {
		// 考试已创建但定时义务没落盘，必须让客户端感知并重试
		logger.Log.Error("failed to arm expiry schedule",
			zap.String("attemptId", attempt.ID), zap.Error(err))
		return nil, false, err
	}

	monitoring.AttemptsStarted.Inc()
	return attempt, false, nil
}

// PlayableView 考试进行中的全部渲染数据，题目已脱敏
type PlayableView struct {
	Attempt   *model.Attempt            `json:"attempt"`
	Test      PlayableTest              `json:"test"`
	Questions []model.SanitizedQuestion `json:"questions"`
	ServerNow time.Time                 `json:"serverNow"`
}

type PlayableTest struct {
	Title           string          `json:"title"`
	DurationSeconds int             `json:"durationSeconds"`
	Sections        []model.Section `json:"sections"`
}

func (s *AttemptService) GetPlayableView(ctx context.Context, attemptID string, userID uint, isAdmin bool) (*PlayableView, error) {
	attempt, err := s.findOwned(attemptID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	test, err := s.Tests.FindByID(attempt.TestID)
	if err != nil {
		return nil, err
	}

	questions, err := s.Questions.ListByTest(attempt.TestID)
	if err != nil {
		return nil, err
	}

	sanitized := make([]model.SanitizedQuestion, len(questions))
	for i := range questions {
		sanitized[i] = questions[i].Sanitized()
	}

	return &PlayableView{
		Attempt: attempt,
		Test: PlayableTest{
			Title:           test.Title,
			DurationSeconds: test.DurationSeconds,
			Sections:        test.SectionList(),
		},
		Questions: sanitized,
		ServerNow: s.now(),
	}, nil
}

// SaveAnswer 自动保存。过期判断以服务器时钟为准：即使存储里的
// status 还是 in_progress（定时器尚未触发），超时后的写入一律拒绝。
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID string, userID uint, questionID string, givenAnswer json.RawMessage) error {
	attempt, err := s.findOwned(attemptID, userID, false)
	if err != nil {
		return err
	}

	if attempt.Expired(s.now()) {
		return util.ErrAttemptExpired
	}
	if attempt.Status != model.AttemptInProgress {
		return util.ErrAlreadySubmitted
	}

	question, err := s.Questions.FindByID(questionID)
	if err != nil || question.TestID != attempt.TestID {
		return util.ErrQuestionNotFound
	}

	return s.Attempts.UpsertAnswer(&model.AttemptAnswer{
		AttemptID:   attemptID,
		QuestionID:  questionID,
		GivenAnswer: givenAnswer,
		SavedAt:     s.now(),
	})
}

// ViolationStatus 返回给客户端用于渲染警告
type ViolationStatus struct {
	Count            int64                  `json:"count"`
	MaxViolations    int                    `json:"maxViolations"`
	ShouldAutoSubmit bool                   `json:"shouldAutoSubmit"`
	Violations       []model.ViolationEvent `json:"violations"`
}

// RecordViolation 登记违规。TTL 取考试剩余时长（下限为配置的
// 保护值，临近结束的考试不会在到期路径读取前就被淘汰）。
// 计数达到阈值时立刻走共用的交卷路径强制交卷并判分。
func (s *AttemptService) RecordViolation(ctx context.Context, attemptID string, userID uint, vtype model.ViolationType) (*ViolationStatus, error) {
	if !model.ValidViolationType(vtype) {
		return nil, util.ErrInvalidViolationType
	}

	attempt, err := s.findOwned(attemptID, userID, false)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAlreadySubmitted
	}

	ttl := s.violationTTL(attempt.ExpiresAt)
	record, err := s.Violations.Record(ctx, attemptID, vtype, ttl)
	if err != nil {
		return nil, err
	}
	monitoring.ViolationsRecorded.WithLabelValues(string(vtype)).Inc()

	maxViolations := s.Cfg.LiveExam().MaxViolations
	shouldAutoSubmit := record.Count >= int64(maxViolations)

	if shouldAutoSubmit {
		if err := s.submit(ctx, attemptID, submitCauseViolation); err != nil {
			return nil, err
		}
	}

	return &ViolationStatus{
		Count:            record.Count,
		MaxViolations:    maxViolations,
		ShouldAutoSubmit: shouldAutoSubmit,
		Violations:       record.Violations,
	}, nil
}

func (s *AttemptService) GetViolations(ctx context.Context, attemptID string, userID uint, isAdmin bool) (*ViolationStatus, error) {
	if _, err := s.findOwned(attemptID, userID, isAdmin); err != nil {
		return nil, err
	}

	record, err := s.Violations.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	return &ViolationStatus{
		Count:         record.Count,
		MaxViolations: s.Cfg.LiveExam().MaxViolations,
		Violations:    record.Violations,
	}, nil
}

// ResetViolations 管理员人工豁免，正常考试流程不会走到这里
func (s *AttemptService) ResetViolations(ctx context.Context, attemptID string) error {
	if _, err := s.Attempts.FindByID(attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		return err
	}
	return s.Violations.Reset(ctx, attemptID)
}

// Submit 考生主动交卷。幂等：已交卷/已判分直接返回成功。
func (s *AttemptService) Submit(ctx context.Context, attemptID string, userID uint, isAdmin bool) error {
	if _, err := s.findOwned(attemptID, userID, isAdmin); err != nil {
		return err
	}
	return s.submit(ctx, attemptID, submitCauseClient)
}

// SubmitExpired 到期调度器的入口，不校验归属
func (s *AttemptService) SubmitExpired(ctx context.Context, attemptID string) error {
	return s.submit(ctx, attemptID, submitCauseExpiry)
}

// submit 统一的出局转换。客户端交卷、违规自动交卷、到期触发
// 三方并发到达时，MarkSubmitted 的 compare-and-set 保证只有一方
// 赢得转换并执行判分；其余观察到已交卷，按成功返回，绝不二次
// 计分。判分一旦开始就跑到落库为止，分数不会只写一半。
func (s *AttemptService) submit(ctx context.Context, attemptID string, cause string) error {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		return err
	}

	switch attempt.Status {
	case model.AttemptGraded:
		// 终态，重复触发（如手动交卷后的到期重投）一律 no-op
		return nil
	case model.AttemptSubmitted, model.AttemptGrading:
		// 上一个赢家可能在判分中途崩溃。判分是确定性的，落库
		// 自带 submitted 状态守卫，这里补跑一次是安全的。
		return s.grade(attempt)
	}

	now := s.now()
	won, err := s.Attempts.MarkSubmitted(attemptID, now)
	if err != nil {
		return err
	}
	if !won {
		// 并发方已赢得转换，由它负责判分
		return nil
	}

	monitoring.AttemptsSubmitted.WithLabelValues(cause).Inc()
	logger.Log.Info("attempt submitted",
		zap.String("attemptId", attemptID), zap.String("cause", cause))

	// 赢得转换后重新读一次作答。第一次快照到 CAS 之间仍是
	// in_progress，这个窗口里保存成功的答案必须参与判分。
	attempt, err = s.Attempts.FindByID(attemptID)
	if err != nil {
		return err
	}
	return s.grade(attempt)
}

func (s *AttemptService) grade(attempt *model.Attempt) error {
	questions, err := s.Questions.ListByTest(attempt.TestID)
	if err != nil {
		return err
	}
	test, err := s.Tests.FindByID(attempt.TestID)
	if err != nil {
		return err
	}

	graded, totalScore := GradeAttempt(questions, attempt.Answers)
	gradedAt := s.now()
	visibility := resultVisibilityAt(test, attempt, gradedAt)

	if err := s.Attempts.StoreGrading(attempt.ID, graded, totalScore, gradedAt, visibility); err != nil {
		return err
	}

	logger.Log.Info("attempt graded",
		zap.String("attemptId", attempt.ID), zap.Float64("score", totalScore))
	return nil
}

// ResultView 成绩详情；披露前只返回 Status/Message
type ResultView struct {
	Status  model.AttemptStatus `json:"status"`
	Message string              `json:"message,omitempty"`

	Score      *float64         `json:"score,omitempty"`
	TotalMarks *float64         `json:"totalMarks,omitempty"`
	Results    []QuestionResult `json:"results,omitempty"`
}

type QuestionResult struct {
	Question     ResultQuestion  `json:"question"`
	UserAnswer   json.RawMessage `json:"userAnswer"`
	IsCorrect    bool            `json:"isCorrect"`
	AwardedMarks float64         `json:"awardedMarks"`
}

type ResultQuestion struct {
	ID            string          `json:"id"`
	Stem          string          `json:"stem"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
	Marks         float64         `json:"marks"`
}

// GetResult 由 ResultsVisible 把关：披露前绝不返回任何局部得分
// 或作答对错信息。
func (s *AttemptService) GetResult(ctx context.Context, attemptID string, userID uint, isAdmin bool) (*ResultView, error) {
	attempt, err := s.findOwned(attemptID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	if !ResultsVisible(attempt, s.now()) {
		return &ResultView{
			Status:  attempt.Status,
			Message: "Results are not yet visible",
		}, nil
	}

	questions, err := s.Questions.ListByTest(attempt.TestID)
	if err != nil {
		return nil, err
	}

	answersByQuestion := make(map[string]model.AttemptAnswer, len(attempt.Answers))
	for _, ans := range attempt.Answers {
		answersByQuestion[ans.QuestionID] = ans
	}

	results := make([]QuestionResult, len(questions))
	for i, q := range questions {
		item := QuestionResult{
			Question: ResultQuestion{
				ID:            q.ID,
				Stem:          q.Stem,
				Options:       q.Options,
				CorrectAnswer: q.CorrectAnswer,
				Explanation:   q.Explanation,
				Marks:         q.Marks,
			},
		}
		if ans, ok := answersByQuestion[q.ID]; ok {
			item.UserAnswer = ans.GivenAnswer
			if ans.IsMarkedCorrect != nil {
				item.IsCorrect = *ans.IsMarkedCorrect
			}
			if ans.AwardedMarks != nil {
				item.AwardedMarks = *ans.AwardedMarks
			}
		}
		results[i] = item
	}

	total := TotalMarks(questions)
	return &ResultView{
		Status:     attempt.Status,
		Score:      attempt.Score,
		TotalMarks: &total,
		Results:    results,
	}, nil
}

func (s *AttemptService) ListMyAttempts(userID uint) ([]model.Attempt, error) {
	return s.Attempts.ListByUser(userID)
}

func (s *AttemptService) ListTestResults(testID string, page, limit int) ([]model.Attempt, int64, error) {
	return s.Attempts.ListByTest(testID, page, limit)
}

// violationTTL = max(下限, ceil(剩余时间))
func (s *AttemptService) violationTTL(expiresAt time.Time) time.Duration {
	remaining := math.Ceil(expiresAt.Sub(s.now()).Seconds())
	floor := float64(s.Cfg.LiveExam().ViolationTTLFloorSeconds)
	if remaining < floor {
		remaining = floor
	}
	return time.Duration(remaining) * time.Second
}

// findOwned 取考试记录并校验归属。归属不符返回 ErrNotOwner，
// 上层以 401 响应且不泄露他人考试是否存在。
func (s *AttemptService) findOwned(attemptID string, userID uint, isAdmin bool) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if !isAdmin && attempt.UserID != userID {
		return nil, util.ErrNotOwner
	}
	return attempt, nil
}
