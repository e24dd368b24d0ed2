package model

import (
	"time"
)

type UserRole string

const (
	Participant UserRole = "user"
	Admin       UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name       string    `gorm:"size:100;not null" json:"name"`
	Email      string    `gorm:"size:100;unique;not null" json:"email"`
	Password   string    `gorm:"size:100;not null" json:"-"`
	Role       UserRole  `gorm:"type:enum('user','admin');default:'user'" json:"role"`
	RollNumber *int      `gorm:"unique" json:"rollNumber,omitempty"`
	Disabled   bool      `gorm:"default:false" json:"disabled"`
	LastLogin  time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastLogin"`
	Batches    []Batch   `gorm:"many2many:user_batches" json:"batches,omitempty"`
}

func (User) TableName() string {
	return "users"
}
