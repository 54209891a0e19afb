package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"regexp"
	"strings"

	"ideabox/internal/models"
	"ideabox/internal/utils"

	"gorm.io/gorm"
)

var mailPattern = regexp.MustCompile(`^[\w\-.]+@([\w-]+\.)+[\w-]{2,4}$`)

type RegisterInput struct {
	Firstname string
	Lastname  string
	Mail      string
	Password  string
	ServiceID *uint
}

// UserUpdate holds the editable profile fields; nil leaves a field unchanged and an
// empty password keeps the current one.
type UserUpdate struct {
	Firstname *string
	Lastname  *string
	Mail      *string
	Password  *string
	ServiceID *uint
}

type UserService struct {
	db            *gorm.DB
	broker        *AggregateBroker
	media         *MediaStore
	orphanOwnerID uint
}

func NewUserService(db *gorm.DB, broker *AggregateBroker, media *MediaStore, orphanOwnerID uint) *UserService {
	return &UserService{db: db, broker: broker, media: media, orphanOwnerID: orphanOwnerID}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	verr := &ValidationError{}
	mail := strings.TrimSpace(in.Mail)
	if !mailPattern.MatchString(mail) {
		verr.Add("mail", "invalid email")
	}
	if len(in.Password) < 3 {
		verr.Add("password", "must be at least 3 characters")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Firstname: strings.TrimSpace(in.Firstname),
		Lastname:  strings.TrimSpace(in.Lastname),
		Mail:      mail,
		Password:  hash,
		ServiceID: in.ServiceID,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: mail already registered", ErrConflict)
		}
		return nil, err
	}
	return &user, nil
}

// Authenticate checks mail and password. Unknown mail and wrong password give the
// same error.
func (s *UserService) Authenticate(ctx context.Context, mail, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("mail = ?", strings.TrimSpace(mail)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBadLogin
		}
		return nil, err
	}
	if user.ID == s.orphanOwnerID || !utils.CheckPasswordHash(password, user.Password) {
		return nil, ErrBadLogin
	}
	return &user, nil
}

// List returns regular members, used to pick participants.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.WithContext(ctx).
		Where("is_admin = ? AND id <> ?", false, s.orphanOwnerID).
		Order("lastname").Order("firstname").
		Find(&users).Error
	return users, err
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Service").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// validateMailDetailed mirrors the per-rule messages shown on the profile form.
func validateMailDetailed(mail string) string {
	at := strings.Index(mail, "@")
	switch {
	case at == -1:
		return "an @ is required"
	case at < 1:
		return "at least 1 character before the @"
	case strings.Count(mail, "@") != 1:
		return "only one @ is allowed"
	}
	afterAt := mail[at+1:]
	if len(strings.SplitN(afterAt, ".", 2)[0]) < 2 {
		return "at least 2 characters after the @"
	}
	if !strings.Contains(afterAt, ".") {
		return "a . is required after the @"
	}
	if tld := afterAt[strings.LastIndex(afterAt, ".")+1:]; len(tld) < 2 {
		return "at least 2 characters after the last dot"
	}
	return ""
}

func (s *UserService) Update(ctx context.Context, actor Actor, id uint, in UserUpdate) (*models.User, error) {
	if !actor.CanActFor(id) {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	verr := &ValidationError{}
	if in.Firstname != nil {
		updates["firstname"] = strings.TrimSpace(*in.Firstname)
	}
	if in.Lastname != nil {
		updates["lastname"] = strings.TrimSpace(*in.Lastname)
	}
	if in.Mail != nil {
		mail := strings.TrimSpace(*in.Mail)
		if msg := validateMailDetailed(mail); msg != "" {
			verr.Add("mail", msg)
		}
		updates["mail"] = mail
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
		if len(*in.Password) < 3 {
			verr.Add("password", "must be at least 3 characters")
		} else {
			hash, err := utils.HashPassword(*in.Password)
			if err != nil {
				return nil, err
			}
			updates["password"] = hash
		}
	}
	if in.ServiceID != nil {
		updates["service_id"] = *in.ServiceID
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("%w: mail already registered", ErrConflict)
			}
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Service returns the service the user belongs to, or ErrNotFound when unset.
func (s *UserService) Service(ctx context.Context, id uint) (*models.Service, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Service == nil {
		return nil, ErrNotFound
	}
	return user.Service, nil
}

func (s *UserService) SetService(ctx context.Context, actor Actor, id uint, serviceID *uint) error {
	if !actor.CanActFor(id) {
		return ErrForbidden
	}
	db := s.db.WithContext(ctx)
	if serviceID != nil {
		if err := expectCount(db.Model(&models.Service{}).Where("id = ?", *serviceID), 1); err != nil {
			return invalid("serviceId", "unknown service")
		}
	}
	res := db.Model(&models.User{}).Where("id = ?", id).Update("service_id", serviceID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPicture stores a new profile picture and removes the previous file.
func (s *UserService) SetPicture(ctx context.Context, actor Actor, id uint, fh *multipart.FileHeader) (*models.User, error) {
	if !actor.CanActFor(id) {
		return nil, ErrForbidden
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stored, err := s.media.SaveAll([]*multipart.FileHeader{fh}, pictureTypes)
	if err != nil {
		return nil, err
	}
	old := user.Picture
	if err := s.db.WithContext(ctx).Model(user).Update("picture", stored[0].URL).Error; err != nil {
		s.media.removeStored(stored)
		return nil, err
	}
	user.Picture = stored[0].URL
	s.media.Remove(old)
	return user, nil
}

// Delete removes an account. Its ideas and comments go to the placeholder owner,
// its votes are deleted, and its participant links are dropped, all in one
// transaction.
func (s *UserService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.CanActFor(id) {
		return ErrForbidden
	}
	if id == s.orphanOwnerID {
		return ErrForbidden
	}

	var touched []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := expectCount(tx.Model(&models.User{}).Where("id = ?", id), 1); err != nil {
			return err
		}
		if _, err := transferCreatorLinks(tx, id, s.orphanOwnerID); err != nil {
			return fmt.Errorf("transfer ideas: %w", err)
		}
		if _, err := reassignComments(tx, id, s.orphanOwnerID); err != nil {
			return fmt.Errorf("transfer comments: %w", err)
		}
		var err error
		if touched, _, err = deleteVoterVotes(tx, id); err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserIdea{}).Error; err != nil {
			return err
		}
		if _, err := fixOrphanedIdeas(tx, s.orphanOwnerID); err != nil {
			return fmt.Errorf("fix orphaned ideas: %w", err)
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return err
	}

	if err := s.broker.Invalidate(ctx, touched...); err != nil {
		log.Printf("invalidate aggregates after deleting user %d: %v", id, err)
	}
	log.Printf("user %d deleted by user %d", id, actor.UserID)
	return nil
}
