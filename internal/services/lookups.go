package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ideabox/internal/models"

	"gorm.io/gorm"
)

// LookupService serves the seeded reference tables.
type LookupService struct {
	db *gorm.DB
}

func NewLookupService(db *gorm.DB) *LookupService {
	return &LookupService{db: db}
}

func (s *LookupService) Categories(ctx context.Context) ([]models.Category, error) {
	cats := []models.Category{}
	err := s.db.WithContext(ctx).Order("id").Find(&cats).Error
	return cats, err
}

func (s *LookupService) Category(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	return &c, first(s.db.WithContext(ctx), &c, id)
}

func (s *LookupService) Statuses(ctx context.Context) ([]models.Status, error) {
	statuses := []models.Status{}
	err := s.db.WithContext(ctx).Order("id").Find(&statuses).Error
	return statuses, err
}

func (s *LookupService) Status(ctx context.Context, id uint) (*models.Status, error) {
	var st models.Status
	return &st, first(s.db.WithContext(ctx), &st, id)
}

func (s *LookupService) Services(ctx context.Context) ([]models.Service, error) {
	services := []models.Service{}
	err := s.db.WithContext(ctx).Order("name").Find(&services).Error
	return services, err
}

func (s *LookupService) Service(ctx context.Context, id uint) (*models.Service, error) {
	var svc models.Service
	return &svc, first(s.db.WithContext(ctx), &svc, id)
}

func validateServiceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
		return "", invalid("name", "must be between 1 and 100 characters")
	}
	return name, nil
}

func (s *LookupService) CreateService(ctx context.Context, name string) (*models.Service, error) {
	name, err := validateServiceName(name)
	if err != nil {
		return nil, err
	}
	svc := models.Service{Name: name}
	if err := s.db.WithContext(ctx).Create(&svc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: service %q exists", ErrConflict, name)
		}
		return nil, err
	}
	return &svc, nil
}

func (s *LookupService) RenameService(ctx context.Context, id uint, name string) error {
	name, err := validateServiceName(name)
	if err != nil {
		return err
	}
	svc, err := s.Service(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(svc).Update("name", name).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: service %q exists", ErrConflict, name)
		}
		return err
	}
	return nil
}

// DeleteService detaches members from the service before removing it. Deleting an
// unknown service is not an error.
func (s *LookupService) DeleteService(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("service_id = ?", id).Update("service_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Service{}, id).Error
	})
}

func first(db *gorm.DB, dest interface{}, id uint) error {
	if err := db.First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
