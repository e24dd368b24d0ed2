package model

import "encoding/json"

type QuestionType string

const (
	QuestionMCQ      QuestionType = "mcq"
	QuestionMultiMCQ QuestionType = "multi-mcq"
	QuestionInteger  QuestionType = "integer"
	QuestionShort    QuestionType = "short"
)

// QuestionOption 选择题选项
type QuestionOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// swagger:model Question
type Question struct {
	UUIDBase
	TestID        string          `gorm:"index;size:36;not null" json:"testId"`
	SectionID     string          `gorm:"size:64" json:"sectionId,omitempty"`
	Type          QuestionType    `gorm:"size:20;not null" json:"type"`
	Stem          string          `gorm:"type:text;not null" json:"stem"` // HTML
	Options       json.RawMessage `gorm:"type:json" json:"options"`       // []QuestionOption
	CorrectAnswer json.RawMessage `gorm:"type:json" json:"correctAnswer"`
	Marks         float64         `gorm:"default:1" json:"marks"`
	NegativeMarks float64         `gorm:"default:0" json:"negativeMarks"` // 扣分幅度（非负）
	Explanation   string          `gorm:"type:text" json:"explanation"`
	Order         int             `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

// SanitizedQuestion 考试进行中下发给考生的题目视图，
// 剥离 correctAnswer 和 explanation。
type SanitizedQuestion struct {
	ID        string          `json:"id"`
	SectionID string          `json:"sectionId,omitempty"`
	Type      QuestionType    `json:"type"`
	Stem      string          `json:"stem"`
	Options   json.RawMessage `json:"options"`
	Marks     float64         `json:"marks"`
	Order     int             `json:"order"`
}

func (q *Question) Sanitized() SanitizedQuestion {
	return SanitizedQuestion{
		ID:        q.ID,
		SectionID: q.SectionID,
		Type:      q.Type,
		Stem:      q.Stem,
		Options:   q.Options,
		Marks:     q.Marks,
		Order:     q.Order,
	}
}
