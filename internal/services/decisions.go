package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"ideabox/internal/models"
	"ideabox/internal/utils"
	"ideabox/internal/workflow"

	"gorm.io/gorm"
)

type Verdict string

const (
	VerdictValidate Verdict = "validate"
	VerdictReject   Verdict = "reject"
	VerdictDelete   Verdict = "delete"
)

// VerdictForStatus maps the status id sent by the admin form to a verdict.
func VerdictForStatus(statusID uint) (Verdict, bool) {
	switch statusID {
	case models.StatusValidated:
		return VerdictValidate, true
	case models.StatusRejected:
		return VerdictReject, true
	}
	return "", false
}

const (
	minJustification = 5
	maxJustification = 250
)

// Decision is the administrator's verdict. Title, description and deadline may be
// corrected in the same step; nil leaves them unchanged.
type Decision struct {
	Verdict       Verdict
	Title         *string
	Description   *string
	Deadline      *time.Time
	Justification string
}

type DecisionService struct {
	db     *gorm.DB
	broker *AggregateBroker
	media  *MediaStore
}

func NewDecisionService(db *gorm.DB, broker *AggregateBroker, media *MediaStore) *DecisionService {
	return &DecisionService{db: db, broker: broker, media: media}
}

func validateJustification(verr *ValidationError, j string) {
	n := utf8.RuneCountInString(strings.TrimSpace(j))
	if n < minJustification || n > maxJustification {
		verr.Add("justification", fmt.Sprintf("must be between %d and %d characters", minJustification, maxJustification))
	}
}

// Record applies a verdict. Validate and reject move the idea to history and can be
// re-applied later with a new justification; delete removes the idea for good.
func (s *DecisionService) Record(ctx context.Context, ideaID uint, d Decision) error {
	verr := &ValidationError{}
	switch d.Verdict {
	case VerdictValidate, VerdictReject, VerdictDelete:
	default:
		verr.Add("status", "unknown verdict")
	}
	validateJustification(verr, d.Justification)
	if d.Title != nil {
		validateTitle(verr, *d.Title)
	}
	var description string
	if d.Description != nil {
		description = validateDescription(verr, *d.Description)
	}
	if err := verr.Err(); err != nil {
		return err
	}

	if d.Verdict == VerdictDelete {
		return s.Delete(ctx, ideaID)
	}

	idea, err := findIdea(s.db.WithContext(ctx), ideaID)
	if err != nil {
		return err
	}
	if d.Deadline != nil {
		if _, err := workflow.ComputePhases(idea.CreatedAt, *d.Deadline); errors.Is(err, workflow.ErrSpanTooLong) {
			return invalid("deadline", "is too far after the submission date")
		} else if err != nil {
			return invalid("deadline", "must be later than the submission date")
		}
	}

	status := models.StatusValidated
	if d.Verdict == VerdictReject {
		status = models.StatusRejected
	}
	updates := map[string]interface{}{
		"status_id":     status,
		"justification": d.Justification,
	}
	if d.Title != nil {
		updates["title"] = strings.TrimSpace(*d.Title)
	}
	if d.Description != nil {
		updates["description"] = description
	}
	if d.Deadline != nil {
		updates["deadline"] = *d.Deadline
	}

	return s.db.WithContext(ctx).Model(idea).Updates(updates).Error
}

// Delete removes the idea with its media, links, votes and comments.
func (s *DecisionService) Delete(ctx context.Context, ideaID uint) error {
	var urls []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		urls, err = deleteIdeaCascade(tx, ideaID)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.broker.Invalidate(ctx, ideaID); err != nil {
		log.Printf("invalidate aggregate for deleted idea %d: %v", ideaID, err)
	}
	if s.media != nil {
		for _, u := range urls {
			s.media.Remove(u)
		}
	}
	return nil
}

func deleteIdeaCascade(tx *gorm.DB, ideaID uint) ([]string, error) {
	var urls []string
	if err := tx.Model(&models.Media{}).Where("idea_id = ?", ideaID).Pluck("url", &urls).Error; err != nil {
		return nil, err
	}
	for _, model := range []interface{}{
		&models.Media{},
		&models.CategoryIdea{},
		&models.UserIdea{},
		&models.Vote{},
		&models.Comment{},
	} {
		if err := tx.Where("idea_id = ?", ideaID).Delete(model).Error; err != nil {
			return nil, err
		}
	}

	res := tx.Delete(&models.Idea{}, ideaID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return urls, nil
}

// History lists decided ideas, newest submission first.
func (s *DecisionService) History(ctx context.Context) ([]models.Idea, error) {
	ideas := []models.Idea{}
	err := s.db.WithContext(ctx).
		Preload("Status").
		Where("status_id IN ?", []uint{models.StatusValidated, models.StatusRejected}).
		Order("created_at DESC").Order("id DESC").
		Find(&ideas).Error
	return ideas, err
}

func validateTitle(verr *ValidationError, title string) {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < 3 || n > 255 {
		verr.Add("title", "must be between 3 and 255 characters")
	}
}

// validateDescription sanitizes the description and checks the visible text length.
func validateDescription(verr *ValidationError, description string) string {
	clean := utils.SanitizeDescription(strings.TrimSpace(description))
	if utf8.RuneCountInString(utils.PlainText(clean)) < 10 {
		verr.Add("description", "must contain at least 10 characters")
	}
	return clean
}
