package services

import (
	"context"
	"errors"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"go.uber.org/zap"
)

type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// Reasons attached to Unchanged and Skipped outcomes.
const (
	ReasonLowConfidence       = "low-confidence"
	ReasonSameStatus          = "same-status"
	ReasonUnknownStatus       = "unknown-status"
	ReasonManualEditPreserved = "manual-edit-preserved"
	ReasonConcurrentInsert    = "concurrent-insert"
)

type Outcome struct {
	Action        Action
	Reason        string
	ApplicationID uint
}

// Reconciler maps one extracted record onto the stored applications,
// keyed by (user, source message id).
type Reconciler struct {
	apps                *ApplicationService
	preserveManualEdits bool
	log                 *zap.Logger
}

func NewReconciler(apps *ApplicationService, preserveManualEdits bool, log *zap.Logger) *Reconciler {
	return &Reconciler{apps: apps, preserveManualEdits: preserveManualEdits, log: log.Named("reconciler")}
}

// Reconcile returns a *StorageError for anything the store did not expect;
// a duplicate insert is not one of those.
func (r *Reconciler) Reconcile(ctx context.Context, userID uint, rec Record) (Outcome, error) {
	log := r.log.With(zap.Uint("user_id", userID), zap.String("message_id", rec.SourceMessageID))

	if rec.LowConfidence() {
		log.Info("skipping low-confidence record", zap.String("subject", rec.EmailSubject))
		return Outcome{Action: ActionSkipped, Reason: ReasonLowConfidence}, nil
	}

	existing, err := r.apps.GetByDedupKey(ctx, userID, rec.SourceMessageID)
	if errors.Is(err, ErrNotFound) {
		return r.create(ctx, log, userID, rec)
	}
	if err != nil {
		return Outcome{}, &StorageError{Op: "lookup application", Err: err}
	}

	out := Outcome{Action: ActionUnchanged, ApplicationID: existing.ID}
	switch {
	case rec.Status == models.StatusUnknown:
		out.Reason = ReasonUnknownStatus
		return out, nil
	case rec.Status == existing.Status:
		out.Reason = ReasonSameStatus
		return out, nil
	case existing.ManuallyEdited && r.preserveManualEdits:
		log.Info("keeping manually edited status",
			zap.String("stored", string(existing.Status)), zap.String("extracted", string(rec.Status)))
		out.Reason = ReasonManualEditPreserved
		return out, nil
	}

	if _, err := r.apps.RefreshStatus(ctx, userID, existing.ID, rec.Status); err != nil {
		return Outcome{}, &StorageError{Op: "refresh status", Err: err}
	}
	log.Info("status updated", zap.Uint("application_id", existing.ID),
		zap.String("from", string(existing.Status)), zap.String("to", string(rec.Status)))
	return Outcome{Action: ActionUpdated, ApplicationID: existing.ID}, nil
}

func (r *Reconciler) create(ctx context.Context, log *zap.Logger, userID uint, rec Record) (Outcome, error) {
	app := &models.Application{
		UserID:          userID,
		SourceMessageID: rec.SourceMessageID,
		CompanyName:     rec.CompanyName,
		JobTitle:        rec.JobTitle,
		Platform:        rec.Platform,
		Status:          rec.Status,
		AppliedAt:       rec.AppliedAt,
		EmailSubject:    rec.EmailSubject,
		EmailSnippet:    rec.EmailSnippet,
		EmailDate:       rec.EmailDate,
	}
	err := r.apps.Create(ctx, app)
	if errors.Is(err, ErrConflict) {
		return Outcome{Action: ActionUnchanged, Reason: ReasonConcurrentInsert}, nil
	}
	if err != nil {
		return Outcome{}, &StorageError{Op: "create application", Err: err}
	}
	log.Info("application created", zap.Uint("application_id", app.ID),
		zap.String("company", app.CompanyName), zap.String("title", app.JobTitle), zap.String("status", string(app.Status)))
	return Outcome{Action: ActionCreated, ApplicationID: app.ID}, nil
}
