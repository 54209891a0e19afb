package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Firstname string    `gorm:"size:100;not null" json:"firstname"`
	Lastname  string    `gorm:"size:100;not null" json:"lastname"`
	Mail      string    `gorm:"size:255;uniqueIndex;not null" json:"mail"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash
	Picture   string    `json:"picture"`           // /uploads/... 或空
	IsAdmin   bool      `gorm:"not null;default:false" json:"isAdmin"`
	ServiceID *uint     `gorm:"index" json:"serviceId"`
	Service   *Service  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"service,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant is the sidebar view of a user linked to an idea.
type Participant struct {
	UserID    uint   `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Picture   string `json:"picture"`
	IsCreator bool   `json:"isCreator"`
}
