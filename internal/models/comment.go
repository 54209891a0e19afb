package models

import (
	"time"
)

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IdeaID    uint      `gorm:"not null;index" json:"ideaId"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	// 非数据库字段，渲染后的 HTML
	HTML string `gorm:"-" json:"html"`
}
