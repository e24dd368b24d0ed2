package repository

import (
	"time"

	"proctora_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExpiryScheduleRepository struct {
	DB *gorm.DB
}

func NewExpiryScheduleRepository(db *gorm.DB) *ExpiryScheduleRepository {
	return &ExpiryScheduleRepository{DB: db}
}

// Arm 为考试落库一条一次性触发记录。重复布防（客户端重试）
// 撞到唯一索引时直接忽略，已有记录保持原 fire_at。
func (r *ExpiryScheduleRepository) Arm(attemptID string, fireAt time.Time) error {
	schedule := model.ExpirySchedule{
		AttemptID: attemptID,
		FireAt:    fireAt,
		State:     model.SchedulePending,
	}
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&schedule).Error
}

// DuePending 取出 now 已到期、且不在退避等待中的待触发记录
func (r *ExpiryScheduleRepository) DuePending(now time.Time, limit int) ([]model.ExpirySchedule, error) {
	var schedules []model.ExpirySchedule
	err := r.DB.
		Where("state = ? AND fire_at <= ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			model.SchedulePending, now, now).
		Order("fire_at asc").
		Limit(limit).
		Find(&schedules).Error
	return schedules, err
}

func (r *ExpiryScheduleRepository) MarkDone(id uint) error {
	return r.DB.Model(&model.ExpirySchedule{}).Where("id = ?", id).
		Update("state", model.ScheduleDone).Error
}

// RecordFailure 累加尝试次数并设定下次重试时间
func (r *ExpiryScheduleRepository) RecordFailure(id uint, nextRetryAt time.Time, lastError string) error {
	return r.DB.Model(&model.ExpirySchedule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
		}).Error
}

// MarkFailed 重试耗尽，进入终态并保留最后一次错误
func (r *ExpiryScheduleRepository) MarkFailed(id uint, lastError string) error {
	return r.DB.Model(&model.ExpirySchedule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":      model.ScheduleFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}
