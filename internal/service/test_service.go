package service

import (
	"encoding/json"
	"errors"
	"time"

	"proctora_backend/internal/model"
	"proctora_backend/internal/repository"
	"proctora_backend/internal/util"

	"gorm.io/gorm"
)

// TestService 试卷与题库的管理端维护，以及考生侧的试卷列表。
// 对考试核心来说这些只是读侧数据源。
type TestService struct {
	Tests     *repository.TestRepository
	Questions *repository.QuestionRepository
	Batches   *repository.BatchRepository
	Attempts  *repository.AttemptRepository
}

func NewTestService(tests *repository.TestRepository, questions *repository.QuestionRepository, batches *repository.BatchRepository, attempts *repository.AttemptRepository) *TestService {
	return &TestService{Tests: tests, Questions: questions, Batches: batches, Attempts: attempts}
}

type TestReq struct {
	Title               *string             `json:"title"`
	Description         *string             `json:"description"`
	DurationSeconds     *int                `json:"durationSeconds"`
	Sections            *[]model.Section    `json:"sections"`
	RevealAnswersPolicy *model.RevealPolicy `json:"revealAnswersPolicy"`
	EmbargoAt           *time.Time          `json:"embargoAt"`
	Status              *model.TestStatus   `json:"status"`
	BatchIDs            *[]string           `json:"batchIds"`
}

func (s *TestService) CreateTest(creatorID uint, req TestReq) (*model.Test, error) {
	if req.Title == nil || *req.Title == "" {
		return nil, errors.New("title is required")
	}
	if req.DurationSeconds == nil || *req.DurationSeconds <= 0 {
		return nil, errors.New("durationSeconds must be positive")
	}

	test := &model.Test{
		Title:           *req.Title,
		DurationSeconds: *req.DurationSeconds,
		CreatedBy:       creatorID,
		Status:          model.TestDraft,
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.Sections != nil {
		raw, err := json.Marshal(*req.Sections)
		if err != nil {
			return nil, err
		}
		test.Sections = raw
	}
	if req.RevealAnswersPolicy != nil {
		test.RevealAnswersPolicy = *req.RevealAnswersPolicy
	}
	test.EmbargoAt = req.EmbargoAt

	if err := s.Tests.Create(test); err != nil {
		return nil, err
	}

	if req.BatchIDs != nil {
		if err := s.Tests.SetBatches(test.ID, *req.BatchIDs); err != nil {
			return nil, err
		}
	}

	return test, nil
}

func (s *TestService) UpdateTest(testID string, req TestReq) (*model.Test, error) {
	test, err := s.Tests.FindByID(testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}

	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.DurationSeconds != nil {
		test.DurationSeconds = *req.DurationSeconds
	}
	if req.Sections != nil {
		raw, err := json.Marshal(*req.Sections)
		if err != nil {
			return nil, err
		}
		test.Sections = raw
	}
	if req.RevealAnswersPolicy != nil {
		test.RevealAnswersPolicy = *req.RevealAnswersPolicy
	}
	if req.EmbargoAt != nil {
		test.EmbargoAt = req.EmbargoAt
	}
	if req.Status != nil {
		test.Status = *req.Status
	}

	if err := s.Tests.Update(test); err != nil {
		return nil, err
	}

	if req.BatchIDs != nil {
		if err := s.Tests.SetBatches(test.ID, *req.BatchIDs); err != nil {
			return nil, err
		}
	}

	return test, nil
}

func (s *TestService) DeleteTest(testID string) error {
	return s.Tests.Delete(testID)
}

func (s *TestService) GetTest(testID string) (*model.Test, []model.Question, error) {
	test, err := s.Tests.FindByID(testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrTestNotFound
		}
		return nil, nil, err
	}
	qs, err := s.Questions.ListByTest(testID)
	return test, qs, err
}

func (s *TestService) ListTests(page, limit int) ([]model.Test, int64, error) {
	return s.Tests.List(page, limit)
}

// ListAvailableTests 考生可见的试卷及其作答情况
type AvailableTest struct {
	model.Test
	AttemptStatus *model.AttemptStatus `json:"attemptStatus,omitempty"`
	AttemptID     *string              `json:"attemptId,omitempty"`
}

func (s *TestService) ListAvailableTests(userID uint) ([]AvailableTest, error) {
	tests, err := s.Tests.ListAvailableForUser(userID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.Attempts.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	latestByTest := make(map[string]*model.Attempt, len(attempts))
	for i := range attempts {
		if _, ok := latestByTest[attempts[i].TestID]; !ok {
			latestByTest[attempts[i].TestID] = &attempts[i]
		}
	}

	out := make([]AvailableTest, len(tests))
	for i, t := range tests {
		item := AvailableTest{Test: t}
		if attempt, ok := latestByTest[t.ID]; ok {
			item.AttemptStatus = &attempt.Status
			item.AttemptID = &attempt.ID
		}
		out[i] = item
	}
	return out, nil
}

// CanTakeTest 考生与试卷需同属至少一个分组
func (s *TestService) CanTakeTest(userID uint, testID string) (bool, error) {
	return s.Batches.UserSharesTestBatch(userID, testID)
}

type QuestionReq struct {
	SectionID     string             `json:"sectionId"`
	Type          model.QuestionType `json:"type" binding:"required"`
	Stem          string             `json:"stem" binding:"required"`
	Options       json.RawMessage    `json:"options"`
	CorrectAnswer json.RawMessage    `json:"correctAnswer" binding:"required"`
	Marks         float64            `json:"marks"`
	NegativeMarks float64            `json:"negativeMarks"`
	Explanation   string             `json:"explanation"`
	Order         int                `json:"order"`
}

func (s *TestService) AddQuestion(testID string, req QuestionReq) (*model.Question, error) {
	if _, err := s.Tests.FindByID(testID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	if req.NegativeMarks < 0 {
		return nil, errors.New("negativeMarks must be non-negative")
	}

	marks := req.Marks
	if marks <= 0 {
		marks = 1
	}

	q := &model.Question{
		TestID:        testID,
		SectionID:     req.SectionID,
		Type:          req.Type,
		Stem:          req.Stem,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Marks:         marks,
		NegativeMarks: req.NegativeMarks,
		Explanation:   req.Explanation,
		Order:         req.Order,
	}
	if err := s.Questions.Create(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *TestService) UpdateQuestion(questionID string, req QuestionReq) (*model.Question, error) {
	q, err := s.Questions.FindByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}

	q.SectionID = req.SectionID
	q.Type = req.Type
	q.Stem = req.Stem
	q.Options = req.Options
	q.CorrectAnswer = req.CorrectAnswer
	if req.Marks > 0 {
		q.Marks = req.Marks
	}
	q.NegativeMarks = req.NegativeMarks
	q.Explanation = req.Explanation
	q.Order = req.Order

	if err := s.Questions.Update(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *TestService) DeleteQuestion(questionID string) error {
	return s.Questions.Delete(questionID)
}
