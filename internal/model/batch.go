package model

// Batch 参与者分组，试卷按分组下发
// swagger:model Batch
type Batch struct {
	UUIDBase
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (Batch) TableName() string {
	return "batches"
}
