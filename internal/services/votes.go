package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ideabox/internal/models"
	"ideabox/internal/workflow"

	"gorm.io/gorm"
)

// VoteService is the vote aggregator: one row per (idea, voter), totals computed
// by counting rows at read time.
type VoteService struct {
	db     *gorm.DB
	locker Locker
	broker *AggregateBroker
	now    func() time.Time
}

func NewVoteService(db *gorm.DB, locker Locker, broker *AggregateBroker) *VoteService {
	s := &VoteService{db: db, locker: locker, broker: broker, now: time.Now}
	broker.SetSource(s.countTotals)
	return s
}

// Upsert records the voter's current position on the idea. It returns the stored
// row and whether it was created. Votes are refused once the vote phase is over.
func (s *VoteService) Upsert(ctx context.Context, ideaID, voterID uint, agree, disagree bool) (*models.Vote, bool, error) {
	if agree && disagree {
		return nil, false, invalid("agree", "agree and disagree cannot both be set")
	}

	idea, err := findIdea(s.db.WithContext(ctx), ideaID)
	if err != nil {
		return nil, false, err
	}
	if !workflow.VotingAllowed(idea.CreatedAt, idea.Deadline, s.now()) {
		return nil, false, ErrPhaseClosed
	}
	if err := ensureUserExists(s.db.WithContext(ctx), voterID); err != nil {
		return nil, false, err
	}

	var (
		vote    *models.Vote
		created bool
	)
	key := fmt.Sprintf("vote:%d:%d", ideaID, voterID)
	err = s.locker.WithLock(ctx, key, func() error {
		var err error
		vote, created, err = s.upsertOnce(ctx, ideaID, voterID, agree, disagree)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 另一个进程抢先插入, 再走一次更新分支
			vote, created, err = s.upsertOnce(ctx, ideaID, voterID, agree, disagree)
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.broker.Invalidate(ctx, ideaID); err != nil {
		log.Printf("invalidate aggregate for idea %d: %v", ideaID, err)
	}
	return vote, created, nil
}

func (s *VoteService) upsertOnce(ctx context.Context, ideaID, voterID uint, agree, disagree bool) (*models.Vote, bool, error) {
	var (
		vote    models.Vote
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("idea_id = ? AND user_id = ?", ideaID, voterID).First(&vote).Error
		switch {
		case err == nil:
			if err := tx.Model(&vote).Updates(map[string]interface{}{
				"agree":    agree,
				"disagree": disagree,
			}).Error; err != nil {
				return err
			}
			vote.Agree, vote.Disagree = agree, disagree
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote = models.Vote{IdeaID: ideaID, UserID: voterID, Agree: agree, Disagree: disagree}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
			created = true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return &vote, created, nil
}

// Aggregate returns the idea's totals and, when voterID is given, that voter's own
// flags. The voter's choice is always read from the database.
func (s *VoteService) Aggregate(ctx context.Context, ideaID uint, voterID *uint) (models.VoteAggregate, error) {
	if _, err := findIdea(s.db.WithContext(ctx), ideaID); err != nil {
		return models.VoteAggregate{}, err
	}

	totals, err := s.broker.Totals(ctx, ideaID)
	if err != nil {
		return models.VoteAggregate{}, err
	}
	agg := models.VoteAggregate{VoteTotals: totals}

	if voterID != nil {
		var v models.Vote
		err := s.db.WithContext(ctx).Where("idea_id = ? AND user_id = ?", ideaID, *voterID).First(&v).Error
		switch {
		case err == nil:
			agg.VoterChoice = &models.VoterChoice{Agree: v.Agree, Disagree: v.Disagree}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return models.VoteAggregate{}, err
		}
	}
	return agg, nil
}

// DeleteAllForVoter removes every vote of the voter in one transaction.
func (s *VoteService) DeleteAllForVoter(ctx context.Context, voterID uint) (int64, error) {
	var (
		ideaIDs []uint
		deleted int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ideaIDs, deleted, err = deleteVoterVotes(tx, voterID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete votes of user %d: %w", voterID, err)
	}

	if err := s.broker.Invalidate(ctx, ideaIDs...); err != nil {
		log.Printf("invalidate aggregates after deleting votes of user %d: %v", voterID, err)
	}
	return deleted, nil
}

// deleteVoterVotes runs inside the caller's transaction and reports the ideas it
// touched so the caller can invalidate them after commit.
func deleteVoterVotes(tx *gorm.DB, voterID uint) ([]uint, int64, error) {
	var ideaIDs []uint
	if err := tx.Model(&models.Vote{}).Where("user_id = ?", voterID).Distinct("idea_id").Pluck("idea_id", &ideaIDs).Error; err != nil {
		return nil, 0, err
	}
	res := tx.Where("user_id = ?", voterID).Delete(&models.Vote{})
	if res.Error != nil {
		return nil, 0, res.Error
	}
	return ideaIDs, res.RowsAffected, nil
}

func (s *VoteService) countTotals(ctx context.Context, ideaID uint) (models.VoteTotals, error) {
	var totals models.VoteTotals
	q := s.db.WithContext(ctx).Model(&models.Vote{})
	if err := q.Where("idea_id = ? AND agree = ?", ideaID, true).Count(&totals.AgreeCount).Error; err != nil {
		return totals, err
	}
	q = s.db.WithContext(ctx).Model(&models.Vote{})
	if err := q.Where("idea_id = ? AND disagree = ?", ideaID, true).Count(&totals.DisagreeCount).Error; err != nil {
		return totals, err
	}
	return totals, nil
}

func findIdea(db *gorm.DB, ideaID uint) (*models.Idea, error) {
	var idea models.Idea
	if err := db.First(&idea, ideaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &idea, nil
}

func ensureUserExists(db *gorm.DB, userID uint) error {
	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
