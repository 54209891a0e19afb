package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"ideabox/internal/models"
	"ideabox/internal/utils"
	"ideabox/internal/workflow"

	"gorm.io/gorm"
)

const maxCommentLength = 5000

type CommentService struct {
	db            *gorm.DB
	orphanOwnerID uint
	now           func() time.Time
}

func NewCommentService(db *gorm.DB, orphanOwnerID uint) *CommentService {
	return &CommentService{db: db, orphanOwnerID: orphanOwnerID, now: time.Now}
}

// Add posts a comment as the actor. Comments are refused once the comment phase
// of the idea is over.
func (s *CommentService) Add(ctx context.Context, actor Actor, ideaID uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	if n == 0 || n > maxCommentLength {
		return nil, invalid("content", "must be between 1 and 5000 characters")
	}

	db := s.db.WithContext(ctx)
	idea, err := findIdea(db, ideaID)
	if err != nil {
		return nil, err
	}
	if !workflow.CommentingAllowed(idea.CreatedAt, idea.Deadline, s.now()) {
		return nil, ErrPhaseClosed
	}
	// 账号已删除但会话还没撤销
	if err := ensureUserExists(db, actor.UserID); err != nil {
		return nil, err
	}

	comment := models.Comment{Content: content, IdeaID: ideaID, UserID: actor.UserID}
	if err := db.Create(&comment).Error; err != nil {
		return nil, err
	}
	if err := db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		return nil, err
	}
	comment.HTML = utils.RenderMarkdown(comment.Content)
	return &comment, nil
}

// ListForIdea returns the idea's comments, newest first.
func (s *CommentService) ListForIdea(ctx context.Context, ideaID uint) ([]models.Comment, error) {
	db := s.db.WithContext(ctx)
	if _, err := findIdea(db, ideaID); err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	if err := db.Preload("User").
		Where("idea_id = ?", ideaID).
		Order("created_at DESC").Order("id DESC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].HTML = utils.RenderMarkdown(comments[i].Content)
	}
	return comments, nil
}

// TransferToOwner reassigns every comment of fromUserID to the placeholder owner.
func (s *CommentService) TransferToOwner(ctx context.Context, fromUserID uint) (int64, error) {
	return reassignComments(s.db.WithContext(ctx), fromUserID, s.orphanOwnerID)
}

func reassignComments(tx *gorm.DB, fromUserID, toUserID uint) (int64, error) {
	if fromUserID == toUserID {
		return 0, nil
	}
	res := tx.Model(&models.Comment{}).Where("user_id = ?", fromUserID).Update("user_id", toUserID)
	return res.RowsAffected, res.Error
}
