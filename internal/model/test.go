package model

import (
	"encoding/json"
	"time"
)

type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
	TestArchived  TestStatus = "archived"
)

type RevealPolicy string

// 成绩公布策略
const (
	RevealAfterGrading RevealPolicy = "after_grading"          // 判分完成即可见
	RevealAfterExpiry  RevealPolicy = "immediate_after_expiry" // 考试时间结束后可见
	RevealEmbargo      RevealPolicy = "embargo"                // 指定时间后可见
)

// Section 试卷分区（顺序由 Order 决定）
type Section struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Order            int    `json:"order"`
	TimeLimitSeconds int    `json:"timeLimitSeconds,omitempty"`
}

// swagger:model Test
type Test struct {
	UUIDBase
	Title               string          `gorm:"size:255;not null" json:"title"`
	Description         string          `gorm:"type:text" json:"description"`
	DurationSeconds     int             `gorm:"not null" json:"durationSeconds"`
	Sections            json.RawMessage `gorm:"type:json" json:"sections"` // []Section
	RevealAnswersPolicy RevealPolicy    `gorm:"size:30;default:'after_grading'" json:"revealAnswersPolicy"`
	EmbargoAt           *time.Time      `json:"embargoAt,omitempty"` // 仅 embargo 策略使用
	Status              TestStatus      `gorm:"size:20;default:'draft'" json:"status"`
	CreatedBy           uint            `gorm:"index;type:bigint unsigned" json:"createdBy"`
	Batches             []Batch         `gorm:"many2many:test_batches" json:"batches,omitempty"`
}

func (Test) TableName() string {
	return "tests"
}

func (t *Test) SectionList() []Section {
	var sections []Section
	if len(t.Sections) > 0 {
		_ = json.Unmarshal(t.Sections, &sections)
	}
	return sections
}
