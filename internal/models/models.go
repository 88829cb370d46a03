package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email string `gorm:"uniqueIndex;not null" json:"email"`

	// Ciphertext of the JSON encoded oauth2.Token. Never leaves the auth package in clear.
	GmailToken  []byte     `json:"-"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
}

// Connected reports whether the user has a stored mailbox grant.
func (u User) Connected() bool {
	return len(u.GmailToken) > 0
}

type Application struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// (UserID, SourceMessageID) is the dedup key.
	UserID          uint   `gorm:"not null;uniqueIndex:idx_user_message" json:"user_id"`
	SourceMessageID string `gorm:"size:255;not null;uniqueIndex:idx_user_message" json:"source_message_id"`

	CompanyName string    `gorm:"size:255;not null" json:"company_name"`
	JobTitle    string    `gorm:"size:255;not null" json:"job_title"`
	Platform    Platform  `gorm:"size:100;not null;index" json:"platform"`
	Status      Status    `gorm:"size:32;not null;default:'applied';index" json:"status"`
	AppliedAt   time.Time `gorm:"not null;index" json:"applied_at"`

	EmailSubject string    `gorm:"size:500" json:"email_subject"`
	EmailSnippet string    `gorm:"type:text" json:"email_snippet"`
	EmailDate    time.Time `json:"email_date"`

	ManuallyEdited    bool      `gorm:"not null;default:false" json:"manually_edited"`
	StatusRefreshedAt time.Time `json:"status_refreshed_at"`

	Events []ApplicationEvent `json:"events,omitempty"`
}

const (
	EventCreated      = "CREATED"
	EventEmailUpdate  = "EMAIL_UPDATE"
	EventManualUpdate = "MANUAL_UPDATE"
)

type ApplicationEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ApplicationID uint      `gorm:"index;not null" json:"application_id"`
	EventType     string    `gorm:"size:32" json:"event_type"`
	Details       string    `gorm:"type:text" json:"details"`
}

// ProcessedEmail records that a message reached a final outcome for a user,
// so a later scan can skip it without another model call.
type ProcessedEmail struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_processed_user_message"`
	MessageID string `gorm:"size:255;not null;uniqueIndex:idx_processed_user_message"`
	Outcome   string `gorm:"size:64"`
	CreatedAt time.Time
}

// All lists the models handled by AutoMigrate.
func All() []any {
	return []any{&User{}, &Application{}, &ApplicationEvent{}, &ProcessedEmail{}}
}
