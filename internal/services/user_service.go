package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"gorm.io/gorm"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// NormalizeEmail lower-cases and validates a mailbox address.
func NormalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid email %q: %w", raw, err)
	}
	return strings.ToLower(addr.Address), nil
}

func (s *UserService) Create(ctx context.Context, email string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u := models.User{Email: email}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreate returns the user for email, creating the row on first use.
func (s *UserService) GetOrCreate(ctx context.Context, email string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := s.DB.WithContext(ctx).Where(models.User{Email: email}).FirstOrCreate(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.DB.WithContext(ctx).Order("email ASC").Find(&users).Error
	return users, err
}

// TouchLastScan records when a scan for the user last completed.
func (s *UserService) TouchLastScan(ctx context.Context, id uint, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_scan_at", at).Error
}
