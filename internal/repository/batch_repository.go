package repository

import (
	"proctora_backend/internal/model"

	"gorm.io/gorm"
)

type BatchRepository struct {
	DB *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{DB: db}
}

func (r *BatchRepository) Create(batch *model.Batch) error {
	return r.DB.Create(batch).Error
}

func (r *BatchRepository) FindByID(id string) (*model.Batch, error) {
	var batch model.Batch
	err := r.DB.First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) List() ([]model.Batch, error) {
	var batches []model.Batch
	err := r.DB.Order("created_at desc").Find(&batches).Error
	return batches, err
}

func (r *BatchRepository) Delete(id string) error {
	return r.DB.Delete(&model.Batch{}, "id = ?", id).Error
}

func (r *BatchRepository) AddUser(batchID string, userID uint) error {
	return r.DB.Exec(
		"INSERT IGNORE INTO user_batches (batch_id, user_id) VALUES (?, ?)",
		batchID, userID,
	).Error
}

func (r *BatchRepository) RemoveUser(batchID string, userID uint) error {
	return r.DB.Exec(
		"DELETE FROM user_batches WHERE batch_id = ? AND user_id = ?",
		batchID, userID,
	).Error
}

// UserSharesTestBatch 考生与试卷是否同属至少一个分组
func (r *BatchRepository) UserSharesTestBatch(userID uint, testID string) (bool, error) {
	var count int64
	err := r.DB.Table("user_batches ub").
		Joins("JOIN test_batches tb ON tb.batch_id = ub.batch_id").
		Where("ub.user_id = ? AND tb.test_id = ?", userID, testID).
		Count(&count).Error
	return count > 0, err
}
