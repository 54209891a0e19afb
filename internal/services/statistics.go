package services

import (
	"context"
	"time"

	"ideabox/internal/models"

	"gorm.io/gorm"
)

type Statistics struct {
	SubmittedThisMonth int64 `json:"submittedThisMonth"`
	LikesAdded         int64 `json:"likesAdded"`
	IdeasValidated     int64 `json:"ideasValidated"`
}

type StatisticsService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStatisticsService(db *gorm.DB) *StatisticsService {
	return &StatisticsService{db: db, now: time.Now}
}

// Get counts ideas submitted this month, agree votes cast this year and ideas
// submitted this year that were validated.
func (s *StatisticsService) Get(ctx context.Context) (Statistics, error) {
	now := s.now()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	year := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	var st Statistics
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Idea{}).Where("created_at >= ?", month).Count(&st.SubmittedThisMonth).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.Vote{}).Where("agree = ? AND created_at >= ?", true, year).Count(&st.LikesAdded).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.Idea{}).
		Where("status_id = ? AND created_at >= ?", models.StatusValidated, year).
		Count(&st.IdeasValidated).Error; err != nil {
		return st, err
	}
	return st, nil
}
