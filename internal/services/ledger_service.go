package services

import (
	"context"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger outcomes stored with each processed message.
const (
	OutcomeCreated        = "created"
	OutcomeUpdated        = "updated"
	OutcomeUnchanged      = "unchanged"
	OutcomeSkipped        = "skipped"
	OutcomeNotApplication = "not-application"
	OutcomeParseError     = "parse-error"
)

// LedgerService remembers which messages already reached a final outcome,
// so a restarted scan resumes at message granularity.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

func (s *LedgerService) IsProcessed(ctx context.Context, userID uint, messageID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.ProcessedEmail{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed is idempotent; a repeat call overwrites the outcome.
func (s *LedgerService) MarkProcessed(ctx context.Context, userID uint, messageID, outcome string) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome"}),
	}).Create(&models.ProcessedEmail{UserID: userID, MessageID: messageID, Outcome: outcome}).Error
}
