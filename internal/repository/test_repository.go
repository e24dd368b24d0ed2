package repository

import (
	"proctora_backend/internal/model"

	"gorm.io/gorm"
)

type TestRepository struct {
	DB *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{DB: db}
}

func (r *TestRepository) Create(test *model.Test) error {
	return r.DB.Create(test).Error
}

func (r *TestRepository) FindByID(id string) (*model.Test, error) {
	var test model.Test
	err := r.DB.Preload("Batches").First(&test, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (r *TestRepository) Update(test *model.Test) error {
	return r.DB.Save(test).Error
}

func (r *TestRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Test{}, "id = ?", id).Error
	})
}

func (r *TestRepository) List(page, limit int) ([]model.Test, int64, error) {
	var total int64
	if err := r.DB.Model(&model.Test{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tests []model.Test
	offset := (page - 1) * limit
	err := r.DB.Preload("Batches").Order("created_at desc").Offset(offset).Limit(limit).Find(&tests).Error
	return tests, total, err
}

// ListAvailableForUser 考生可见的已发布试卷（经由分组分配）
func (r *TestRepository) ListAvailableForUser(userID uint) ([]model.Test, error) {
	var tests []model.Test
	err := r.DB.
		Joins("JOIN test_batches tb ON tb.test_id = tests.id").
		Joins("JOIN user_batches ub ON ub.batch_id = tb.batch_id").
		Where("ub.user_id = ? AND tests.status = ?", userID, model.TestPublished).
		Group("tests.id").
		Order("tests.created_at desc").
		Find(&tests).Error
	return tests, err
}

func (r *TestRepository) SetBatches(testID string, batchIDs []string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM test_batches WHERE test_id = ?", testID).Error; err != nil {
			return err
		}
		for _, batchID := range batchIDs {
			if err := tx.Exec(
				"INSERT IGNORE INTO test_batches (test_id, batch_id) VALUES (?, ?)",
				testID, batchID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
