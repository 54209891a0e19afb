package models

import (
	"time"
)

type Idea struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	Deadline      time.Time `gorm:"not null;index" json:"deadline"` // decision date chosen at submission
	StatusID      uint      `gorm:"not null;default:1;index" json:"statusId"`
	Status        Status    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"status"`
	Justification *string   `gorm:"size:250" json:"justification"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UserIdea links a user to an idea, either as its creator or as an invited participant.
type UserIdea struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_user_idea" json:"userId"`
	IdeaID    uint `gorm:"not null;uniqueIndex:idx_user_idea;index" json:"ideaId"`
	IsCreator bool `gorm:"not null;default:false" json:"isCreator"`
}

type CategoryIdea struct {
	CategoryID uint `gorm:"primaryKey" json:"categoryId"`
	IdeaID     uint `gorm:"primaryKey;index" json:"ideaId"`
}

type Media struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IdeaID    uint      `gorm:"not null;index" json:"ideaId"`
	URL       string    `gorm:"not null" json:"url"`
	Name      string    `json:"name"`
	Type      string    `gorm:"size:100" json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
