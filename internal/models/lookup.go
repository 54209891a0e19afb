package models

import (
	"time"
)

// Status IDs are seeded and stable.
const (
	StatusPending   uint = 1
	StatusValidated uint = 2
	StatusRejected  uint = 3
)

type Status struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Code  string `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Label string `gorm:"size:100;not null" json:"label"`
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
