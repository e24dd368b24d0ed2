package model

import (
	"encoding/json"
	"time"
)

type AttemptStatus string

// 状态只能单向推进：in_progress → submitted → grading → graded
const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGrading    AttemptStatus = "grading"
	AttemptGraded     AttemptStatus = "graded"
)

// swagger:model Attempt
type Attempt struct {
	UUIDBase
	TestID             string          `gorm:"index:idx_attempt_test_user;size:36;not null" json:"testId"`
	UserID             uint            `gorm:"index:idx_attempt_test_user;type:bigint unsigned;not null" json:"userId"`
	StartAt            time.Time       `gorm:"not null" json:"startAt"`
	ExpiresAt          time.Time       `gorm:"not null" json:"expiresAt"` // 创建时固定，之后不再改写
	SubmittedAt        *time.Time      `json:"submittedAt,omitempty"`
	GradedAt           *time.Time      `json:"gradedAt,omitempty"`
	ResultVisibilityAt *time.Time      `json:"resultVisibilityAt,omitempty"`
	Status             AttemptStatus   `gorm:"size:20;default:'in_progress';index" json:"status"`
	Score              *float64        `json:"score,omitempty"`
	Answers            []AttemptAnswer `gorm:"foreignKey:AttemptID;references:ID" json:"answers,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// Expired 以服务器时钟为准判断考试是否超时，存储中的
// status 可能还没来得及被定时器推进。
func (a *Attempt) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Terminal 判分完成后的一切状态变更都应作为 no-op 处理
func (a *Attempt) Terminal() bool {
	return a.Status == AttemptGraded
}

// AttemptAnswer 每题一行，(attempt, question) 唯一。
// 行级隔离保证不同题目的并发自动保存互不覆盖。
type AttemptAnswer struct {
	UUIDBase
	AttemptID       string          `gorm:"uniqueIndex:idx_answer_attempt_question;size:36;not null" json:"-"`
	QuestionID      string          `gorm:"uniqueIndex:idx_answer_attempt_question;size:36;not null" json:"questionId"`
	GivenAnswer     json.RawMessage `gorm:"type:json" json:"givenAnswer"`
	SavedAt         time.Time       `gorm:"not null" json:"savedAt"`
	IsMarkedCorrect *bool           `json:"isMarkedCorrect,omitempty"`
	AwardedMarks    *float64        `json:"awardedMarks,omitempty"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}
