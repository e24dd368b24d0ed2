package service

import (
	"errors"

	"proctora_backend/internal/model"
	"proctora_backend/internal/repository"
	"proctora_backend/internal/util"

	"gorm.io/gorm"
)

type BatchService struct {
	Batches *repository.BatchRepository
}

func NewBatchService(batches *repository.BatchRepository) *BatchService {
	return &BatchService{Batches: batches}
}

func (s *BatchService) Create(name, description string) (*model.Batch, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	batch := &model.Batch{Name: name, Description: description}
	if err := s.Batches.Create(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *BatchService) List() ([]model.Batch, error) {
	return s.Batches.List()
}

func (s *BatchService) Delete(id string) error {
	return s.Batches.Delete(id)
}

func (s *BatchService) AddUser(batchID string, userID uint) error {
	if _, err := s.Batches.FindByID(batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrBatchNotFound
		}
		return err
	}
	return s.Batches.AddUser(batchID, userID)
}

func (s *BatchService) RemoveUser(batchID string, userID uint) error {
	return s.Batches.RemoveUser(batchID, userID)
}
