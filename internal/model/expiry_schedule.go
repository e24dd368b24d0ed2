package model

import "time"

type ScheduleState string

const (
	SchedulePending ScheduleState = "pending"
	ScheduleDone    ScheduleState = "done"
	ScheduleFailed  ScheduleState = "failed"
)

// ExpirySchedule 持久化的一次性到期触发器。定时义务落库而不是
// 只挂在内存定时器上，进程重启后待触发的考试仍会被强制交卷。
type ExpirySchedule struct {
	BaseModel
	AttemptID   string        `gorm:"uniqueIndex;size:36;not null" json:"attemptId"`
	FireAt      time.Time     `gorm:"index;not null" json:"fireAt"`
	State       ScheduleState `gorm:"size:20;default:'pending';index" json:"state"`
	Attempts    int           `gorm:"default:0" json:"attempts"` // 已尝试触发次数
	NextRetryAt *time.Time    `json:"nextRetryAt,omitempty"`
	LastError   string        `gorm:"size:500" json:"lastError,omitempty"`
}

func (ExpirySchedule) TableName() string {
	return "expiry_schedules"
}
