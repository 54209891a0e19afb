package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ideabox/internal/models"
	"ideabox/internal/utils"
	"ideabox/internal/workflow"

	"gorm.io/gorm"
)

// Actor is the authenticated caller as seen by services.
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// CanActFor reports whether the actor may act on behalf of userID.
func (a Actor) CanActFor(userID uint) bool {
	return a.IsAdmin || a.UserID == userID
}

const excerptLength = 180

type CreatorName struct {
	ID        uint   `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Mail      string `json:"mail"`
}

// IdeaCard is one entry of an idea list.
type IdeaCard struct {
	models.Idea
	Excerpt     string               `json:"excerpt"`
	Permissions workflow.Permissions `json:"permissions"`
	Votes       models.VoteTotals    `json:"votes"`
	Creator     *CreatorName         `json:"creator,omitempty"`
}

// IdeaDetail is the full idea page payload. Phases is nil when the stored deadline
// cannot produce phases.
type IdeaDetail struct {
	models.Idea
	Phases      *workflow.Phases     `json:"phases"`
	Stage       workflow.Stage       `json:"stage,omitempty"`
	Permissions workflow.Permissions `json:"permissions"`
	Votes       models.VoteTotals    `json:"votes"`
	Categories  []models.Category    `json:"categories"`
	Creator     *CreatorName         `json:"creator"`
}

type NewIdea struct {
	Title          string
	Description    string
	Deadline       time.Time
	CategoryIDs    []uint
	ParticipantIDs []uint
	// CreatorID is optional; when sent it must name the caller.
	CreatorID *uint
}

type ListQuery struct {
	UserID     *uint
	StatusID   *uint
	Sort       string
	ToValidate bool
}

type IdeaService struct {
	db            *gorm.DB
	broker        *AggregateBroker
	orphanOwnerID uint
	now           func() time.Time
}

func NewIdeaService(db *gorm.DB, broker *AggregateBroker, orphanOwnerID uint) *IdeaService {
	return &IdeaService{db: db, broker: broker, orphanOwnerID: orphanOwnerID, now: time.Now}
}

func (s *IdeaService) Create(ctx context.Context, actor Actor, in NewIdea) (*models.Idea, error) {
	if in.CreatorID != nil && *in.CreatorID != actor.UserID {
		return nil, ErrForbidden
	}

	now := s.now()
	verr := &ValidationError{}
	validateTitle(verr, in.Title)
	description := validateDescription(verr, in.Description)
	if !in.Deadline.After(now) {
		verr.Add("deadline", "must be in the future")
	} else if _, err := workflow.ComputePhases(now, in.Deadline); errors.Is(err, workflow.ErrSpanTooLong) {
		verr.Add("deadline", "is too far in the future")
	} else if err != nil {
		verr.Add("deadline", "leaves no room for the comment and vote phases")
	}
	categoryIDs := uniqueIDs(in.CategoryIDs, 0)
	if len(categoryIDs) == 0 {
		verr.Add("categories", "select at least one category")
	}
	participantIDs := uniqueIDs(in.ParticipantIDs, actor.UserID)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := expectCount(db.Model(&models.Category{}).Where("id IN ?", categoryIDs), len(categoryIDs)); err != nil {
		return nil, invalid("categories", "unknown category")
	}
	if len(participantIDs) > 0 {
		if err := expectCount(db.Model(&models.User{}).Where("id IN ?", participantIDs), len(participantIDs)); err != nil {
			return nil, invalid("participants", "unknown participant")
		}
	}

	idea := models.Idea{
		Title:       strings.TrimSpace(in.Title),
		Description: description,
		Deadline:    in.Deadline,
		StatusID:    models.StatusPending,
		CreatedAt:   now,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&idea).Error; err != nil {
			return err
		}
		links := []models.UserIdea{{UserID: actor.UserID, IdeaID: idea.ID, IsCreator: true}}
		for _, id := range participantIDs {
			links = append(links, models.UserIdea{UserID: id, IdeaID: idea.ID})
		}
		if err := tx.Create(&links).Error; err != nil {
			return err
		}
		cats := make([]models.CategoryIdea, 0, len(categoryIDs))
		for _, id := range categoryIDs {
			cats = append(cats, models.CategoryIdea{CategoryID: id, IdeaID: idea.ID})
		}
		return tx.Create(&cats).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create idea: %w", err)
	}
	log.Printf("idea %d created by user %d", idea.ID, actor.UserID)
	return &idea, nil
}

func (s *IdeaService) validateQuery(q ListQuery) error {
	verr := &ValidationError{}
	if q.Sort != "" && q.Sort != "recent" {
		verr.Add("sort", "must be empty or recent")
	}
	if q.StatusID != nil && (*q.StatusID < models.StatusPending || *q.StatusID > models.StatusRejected) {
		verr.Add("statut", "unknown status")
	}
	return verr.Err()
}

// List returns idea cards filtered by creator and status. ToValidate returns the
// pending ideas whose decision day has come, with their creator's name.
func (s *IdeaService) List(ctx context.Context, q ListQuery) ([]IdeaCard, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx).Model(&models.Idea{}).Preload("Status")
	switch {
	case q.ToValidate:
		now := s.now().UTC()
		tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		db = db.Where("ideas.status_id = ? AND ideas.deadline < ?", models.StatusPending, tomorrow)
	case q.UserID != nil:
		db = db.Joins("JOIN user_ideas ui ON ui.idea_id = ideas.id AND ui.is_creator = ?", true).
			Where("ui.user_id = ?", *q.UserID)
	}
	if q.StatusID != nil {
		db = db.Where("ideas.status_id = ?", *q.StatusID)
	}
	db = db.Order("ideas.created_at DESC").Order("ideas.id DESC")
	if q.Sort == "recent" {
		db = db.Limit(3)
	}

	var ideas []models.Idea
	if err := db.Find(&ideas).Error; err != nil {
		return nil, err
	}

	var creators map[uint]*CreatorName
	if q.ToValidate {
		var err error
		if creators, err = s.creatorNames(ctx, ideas); err != nil {
			return nil, err
		}
	}

	now := s.now()
	cards := make([]IdeaCard, 0, len(ideas))
	for _, idea := range ideas {
		totals, err := s.broker.Totals(ctx, idea.ID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, IdeaCard{
			Idea:        idea,
			Excerpt:     utils.Excerpt(idea.Description, excerptLength),
			Permissions: workflow.Evaluate(idea.CreatedAt, idea.Deadline, now),
			Votes:       totals,
			Creator:     creators[idea.ID],
		})
	}
	return cards, nil
}

func (s *IdeaService) creatorNames(ctx context.Context, ideas []models.Idea) (map[uint]*CreatorName, error) {
	ids := make([]uint, 0, len(ideas))
	for _, i := range ideas {
		ids = append(ids, i.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []struct {
		IdeaID uint
		CreatorName
	}
	err := s.db.WithContext(ctx).Table("user_ideas ui").
		Select("ui.idea_id, u.id, u.firstname, u.lastname, u.mail").
		Joins("JOIN users u ON u.id = ui.user_id").
		Where("ui.idea_id IN ? AND ui.is_creator = ?", ids, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*CreatorName, len(rows))
	for i := range rows {
		out[rows[i].IdeaID] = &rows[i].CreatorName
	}
	return out, nil
}

func (s *IdeaService) Get(ctx context.Context, id uint) (*IdeaDetail, error) {
	var idea models.Idea
	if err := s.db.WithContext(ctx).Preload("Status").First(&idea, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.now()
	detail := &IdeaDetail{
		Idea:        idea,
		Permissions: workflow.Evaluate(idea.CreatedAt, idea.Deadline, now),
	}
	if p, err := workflow.ComputePhases(idea.CreatedAt, idea.Deadline); err == nil {
		detail.Phases = &p
		detail.Stage = p.Current(now)
	}

	var err error
	if detail.Votes, err = s.broker.Totals(ctx, id); err != nil {
		return nil, err
	}
	if detail.Categories, err = s.categories(ctx, id); err != nil {
		return nil, err
	}
	if detail.Creator, err = s.creator(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// Creator returns the creator of the idea, or ErrNotFound when it has none.
func (s *IdeaService) Creator(ctx context.Context, id uint) (*CreatorName, error) {
	if _, err := findIdea(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	c, err := s.creator(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *IdeaService) creator(ctx context.Context, id uint) (*CreatorName, error) {
	var c CreatorName
	err := s.db.WithContext(ctx).Table("users u").
		Select("u.id, u.firstname, u.lastname, u.mail").
		Joins("JOIN user_ideas ui ON ui.user_id = u.id").
		Where("ui.idea_id = ? AND ui.is_creator = ?", id, true).
		Limit(1).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (s *IdeaService) Categories(ctx context.Context, id uint) ([]models.Category, error) {
	if _, err := findIdea(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	return s.categories(ctx, id)
}

func (s *IdeaService) categories(ctx context.Context, id uint) ([]models.Category, error) {
	cats := []models.Category{}
	err := s.db.WithContext(ctx).
		Joins("JOIN category_ideas ci ON ci.category_id = categories.id").
		Where("ci.idea_id = ?", id).
		Order("categories.id").
		Find(&cats).Error
	return cats, err
}

// Participants lists the users linked to the idea, creator first. The placeholder
// owner of deleted accounts is never shown.
func (s *IdeaService) Participants(ctx context.Context, id uint) ([]models.Participant, error) {
	if _, err := findIdea(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}

	participants := []models.Participant{}
	err := s.db.WithContext(ctx).Table("user_ideas ui").
		Select("u.id AS user_id, u.firstname, u.lastname, u.picture, ui.is_creator").
		Joins("JOIN users u ON u.id = ui.user_id").
		Where("ui.idea_id = ? AND ui.user_id <> ?", id, s.orphanOwnerID).
		Order("ui.is_creator DESC").Order("u.lastname").Order("u.firstname").
		Scan(&participants).Error
	return participants, err
}

// Timeline assembles the workflow sidebar. A nil timeline means the idea's dates
// cannot be split into phases.
func (s *IdeaService) Timeline(ctx context.Context, id uint) (*workflow.Timeline, error) {
	idea, err := findIdea(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	participants, err := s.Participants(ctx, id)
	if err != nil {
		return nil, err
	}
	totals, err := s.broker.Totals(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.BuildTimeline(idea.CreatedAt, idea.Deadline, participants, totals), nil
}

// TransferToOwner hands every idea created by fromUserID to the placeholder owner.
func (s *IdeaService) TransferToOwner(ctx context.Context, fromUserID uint) (int, error) {
	var moved int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if moved, err = transferCreatorLinks(tx, fromUserID, s.orphanOwnerID); err != nil {
			return err
		}
		_, err = fixOrphanedIdeas(tx, s.orphanOwnerID)
		return err
	})
	return moved, err
}

func transferCreatorLinks(tx *gorm.DB, fromUserID, toUserID uint) (int, error) {
	if fromUserID == toUserID {
		return 0, nil
	}
	var ideaIDs []uint
	if err := tx.Model(&models.UserIdea{}).
		Where("user_id = ? AND is_creator = ?", fromUserID, true).
		Pluck("idea_id", &ideaIDs).Error; err != nil {
		return 0, err
	}

	for _, ideaID := range ideaIDs {
		var link models.UserIdea
		err := tx.Where("user_id = ? AND idea_id = ?", toUserID, ideaID).First(&link).Error
		switch {
		case err == nil:
			if err := tx.Model(&link).Update("is_creator", true).Error; err != nil {
				return 0, err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.UserIdea{UserID: toUserID, IdeaID: ideaID, IsCreator: true}).Error; err != nil {
				return 0, err
			}
		default:
			return 0, err
		}
		if err := tx.Model(&models.UserIdea{}).
			Where("user_id = ? AND idea_id = ?", fromUserID, ideaID).
			Update("is_creator", false).Error; err != nil {
			return 0, err
		}
	}
	return len(ideaIDs), nil
}

// fixOrphanedIdeas gives every idea without a creator link to ownerID.
func fixOrphanedIdeas(tx *gorm.DB, ownerID uint) (int, error) {
	var orphaned []uint
	err := tx.Model(&models.Idea{}).
		Where("NOT EXISTS (SELECT 1 FROM user_ideas ui WHERE ui.idea_id = ideas.id AND ui.is_creator = ?)", true).
		Pluck("id", &orphaned).Error
	if err != nil {
		return 0, err
	}
	for _, ideaID := range orphaned {
		link := models.UserIdea{UserID: ownerID, IdeaID: ideaID, IsCreator: true}
		if err := tx.Where(models.UserIdea{UserID: ownerID, IdeaID: ideaID}).
			Assign(map[string]interface{}{"is_creator": true}).
			FirstOrCreate(&link).Error; err != nil {
			return 0, err
		}
	}
	return len(orphaned), nil
}

func uniqueIDs(ids []uint, exclude uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func expectCount(q *gorm.DB, want int) error {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n != int64(want) {
		return ErrNotFound
	}
	return nil
}
