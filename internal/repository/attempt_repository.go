package repository

import (
	"time"

	"proctora_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.Attempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.Preload("Answers").First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindActive 返回 (test, user) 当前未交卷的考试记录，不存在时返回 nil
func (r *AttemptRepository) FindActive(testID string, userID uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.Preload("Answers").
		Where("test_id = ? AND user_id = ? AND status = ?", testID, userID, model.AttemptInProgress).
		First(&attempt).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// MarkSubmitted 把考试从 in_progress 置为 submitted。
// WHERE 条件带上当前状态做 compare-and-set，并发的客户端交卷、
// 违规自动交卷和到期触发中只有一方能改写成功（RowsAffected == 1），
// 其余观察到已交卷，按成功处理。
func (r *AttemptRepository) MarkSubmitted(id string, now time.Time) (bool, error) {
	res := r.DB.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       model.AttemptSubmitted,
			"submitted_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// UpsertAnswer 以 (attempt, question) 为键写入答案。MySQL 的
// ON DUPLICATE KEY 配合 saved_at 守卫实现 last-write-wins：迟到的
// 旧保存（saved_at 更早）不会覆盖新值，重试请求天然幂等。
func (r *AttemptRepository) UpsertAnswer(ans *model.AttemptAnswer) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"given_answer": gorm.Expr("IF(VALUES(saved_at) >= saved_at, VALUES(given_answer), given_answer)"),
			"saved_at":     gorm.Expr("IF(VALUES(saved_at) >= saved_at, VALUES(saved_at), saved_at)"),
		}),
	}).Create(ans).Error
}

// StoreGrading 一个事务内落盘判分结果：逐题回写正误与得分，
// 再推进考试到 graded。事务保证分数不会只写一半。
func (r *AttemptRepository) StoreGrading(attemptID string, answers []model.AttemptAnswer, totalScore float64, gradedAt time.Time, visibilityAt *time.Time) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for i := range answers {
			if err := tx.Model(&model.AttemptAnswer{}).
				Where("attempt_id = ? AND question_id = ?", attemptID, answers[i].QuestionID).
				Updates(map[string]interface{}{
					"is_marked_correct": answers[i].IsMarkedCorrect,
					"awarded_marks":     answers[i].AwardedMarks,
				}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", attemptID, model.AttemptSubmitted).
			Updates(map[string]interface{}{
				"status":               model.AttemptGraded,
				"score":                totalScore,
				"graded_at":            gradedAt,
				"result_visibility_at": visibilityAt,
			}).Error
	})
}

func (r *AttemptRepository) ListByUser(userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByTest(testID string, page, limit int) ([]model.Attempt, int64, error) {
	var total int64
	query := r.DB.Model(&model.Attempt{}).Where("test_id = ?", testID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []model.Attempt
	offset := (page - 1) * limit
	err := r.DB.Where("test_id = ?", testID).
		Order("created_at desc").Offset(offset).Limit(limit).Find(&attempts).Error
	return attempts, total, err
}
