package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"gorm.io/gorm"
)

// Column sizes of models.Application.
const (
	nameColumnSize    = 255
	subjectColumnSize = 500
)

type ApplicationService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewApplicationService(db *gorm.DB) *ApplicationService {
	return &ApplicationService{DB: db, now: time.Now}
}

// ApplicationFilter narrows List. Zero values match everything.
type ApplicationFilter struct {
	Company  string
	Status   string
	Platform string
	Since    time.Time
	Limit    int
}

type Stats struct {
	Total      int64                     `json:"total"`
	ByStatus   map[models.Status]int64   `json:"by_status"`
	ByPlatform map[models.Platform]int64 `json:"by_platform"`
}

// Create inserts app and its CREATED event. An existing row for the same
// (user, source message id) yields ErrConflict.
func (s *ApplicationService) Create(ctx context.Context, app *models.Application) error {
	if app.Status == "" || app.Status == models.StatusUnknown {
		app.Status = models.StatusApplied
	}
	if !app.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, app.Status)
	}
	if app.StatusRefreshedAt.IsZero() {
		app.StatusRefreshedAt = s.now()
	}
	fitColumns(app)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return err
		}
		return tx.Create(&models.ApplicationEvent{
			ApplicationID: app.ID,
			EventType:     models.EventCreated,
			Details:       fmt.Sprintf("Tracked %s at %s (%s) from %q", app.JobTitle, app.CompanyName, app.Status, app.EmailSubject),
		}).Error
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *ApplicationService) GetByDedupKey(ctx context.Context, userID uint, messageID string) (*models.Application, error) {
	var app models.Application
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND source_message_id = ?", userID, messageID).
		First(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// Get loads one application with its event history, oldest event first.
func (s *ApplicationService) Get(ctx context.Context, userID, id uint) (*models.Application, error) {
	var app models.Application
	err := s.DB.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("user_id = ?", userID).
		First(&app, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// List returns the user's applications, most recently applied first.
func (s *ApplicationService) List(ctx context.Context, userID uint, f ApplicationFilter) ([]models.Application, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if f.Company != "" {
		q = q.Where("LOWER(company_name) LIKE ?", likePattern(f.Company))
	}
	if f.Status != "" {
		q = q.Where("LOWER(status) LIKE ?", likePattern(f.Status))
	}
	if f.Platform != "" {
		q = q.Where("LOWER(platform) LIKE ?", likePattern(f.Platform))
	}
	if !f.Since.IsZero() {
		q = q.Where("applied_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	apps := []models.Application{}
	if err := q.Order("applied_at DESC, id DESC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateStatus is the manual edit path. The row is flagged so that later
// scans leave the status alone when manual edits are preserved. Setting the
// status the row already has changes nothing.
func (s *ApplicationService) UpdateStatus(ctx context.Context, userID, id uint, status models.Status) (*models.Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.setStatus(ctx, userID, id, status, true)
}

// RefreshStatus is the automatic path used when a re-scan extracts a new status.
func (s *ApplicationService) RefreshStatus(ctx context.Context, userID, id uint, status models.Status) (*models.Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.setStatus(ctx, userID, id, status, false)
}

func (s *ApplicationService) setStatus(ctx context.Context, userID, id uint, status models.Status, manual bool) (*models.Application, error) {
	var app models.Application
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&app, id).Error; err != nil {
			return err
		}
		previous := app.Status
		if previous == status {
			return nil
		}

		now := s.now()
		updates := map[string]any{
			"status":              status,
			"status_refreshed_at": now,
		}
		eventType := models.EventEmailUpdate
		if manual {
			updates["manually_edited"] = true
			eventType = models.EventManualUpdate
		}
		if err := tx.Model(&app).Updates(updates).Error; err != nil {
			return err
		}
		app.Status, app.StatusRefreshedAt = status, now
		app.ManuallyEdited = app.ManuallyEdited || manual
		return tx.Create(&models.ApplicationEvent{
			ApplicationID: app.ID,
			EventType:     eventType,
			Details:       fmt.Sprintf("Status changed from %s to %s", previous, status),
		}).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// Events returns the audit trail of one application.
func (s *ApplicationService) Events(ctx context.Context, userID, id uint) ([]models.ApplicationEvent, error) {
	if _, err := s.GetByID(ctx, userID, id); err != nil {
		return nil, err
	}
	events := []models.ApplicationEvent{}
	err := s.DB.WithContext(ctx).
		Where("application_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// GetByID is Get without the event preload.
func (s *ApplicationService) GetByID(ctx context.Context, userID, id uint) (*models.Application, error) {
	var app models.Application
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&app, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (s *ApplicationService) Stats(ctx context.Context, userID uint) (Stats, error) {
	st := Stats{
		ByStatus:   map[models.Status]int64{},
		ByPlatform: map[models.Platform]int64{},
	}

	var byStatus []struct {
		Status models.Status
		Count  int64
	}
	err := s.DB.WithContext(ctx).Model(&models.Application{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return Stats{}, err
	}
	for _, row := range byStatus {
		st.ByStatus[row.Status] = row.Count
		st.Total += row.Count
	}

	var byPlatform []struct {
		Platform models.Platform
		Count    int64
	}
	err = s.DB.WithContext(ctx).Model(&models.Application{}).
		Select("platform, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("platform").
		Scan(&byPlatform).Error
	if err != nil {
		return Stats{}, err
	}
	for _, row := range byPlatform {
		st.ByPlatform[row.Platform] = row.Count
	}
	return st, nil
}

// fitColumns makes free text storable: valid UTF-8, no NUL, within the
// column size.
func fitColumns(app *models.Application) {
	app.CompanyName = clip(cleanText(app.CompanyName), nameColumnSize)
	app.JobTitle = clip(cleanText(app.JobTitle), nameColumnSize)
	app.EmailSubject = clip(cleanText(app.EmailSubject), subjectColumnSize)
	app.EmailSnippet = cleanText(app.EmailSnippet)
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation covers gorm's translated error plus raw postgres and
// sqlite errors in case translation is off.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
