package repository

import (
	"proctora_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(question *model.Question) error {
	return r.DB.Create(question).Error
}

func (r *QuestionRepository) FindByID(id string) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) Update(question *model.Question) error {
	return r.DB.Save(question).Error
}

func (r *QuestionRepository) Delete(id string) error {
	return r.DB.Delete(&model.Question{}, "id = ?", id).Error
}

func (r *QuestionRepository) ListByTest(testID string) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.Where("test_id = ?", testID).Order("`order` asc, created_at asc").Find(&qs).Error
	return qs, err
}

func (r *QuestionRepository) CountByTest(testID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Question{}).Where("test_id = ?", testID).Count(&count).Error
	return count, err
}
