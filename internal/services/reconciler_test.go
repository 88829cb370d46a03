package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleRecord(msgID string, status models.Status) Record {
	return Record{
		SourceMessageID: msgID,
		CompanyName:     "Acme",
		JobTitle:        "Backend Engineer",
		Platform:        models.PlatformWorkday,
		Status:          status,
		AppliedAt:       time.Now(),
		EmailSubject:    "Thank you for applying",
		EmailDate:       time.Now(),
	}
}

func newTestReconciler(t *testing.T, preserve bool) (*Reconciler, *ApplicationService, uint) {
	db := newTestDB(t)
	apps := NewApplicationService(db)
	u := newTestUser(t, db, "ada@example.com")
	return NewReconciler(apps, preserve, zap.NewNop()), apps, u.ID
}

func TestReconciler_Idempotent(t *testing.T) {
	r, _, userID := newTestReconciler(t, true)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusApplied))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)
	assert.NotZero(t, first.ApplicationID)

	second, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusApplied))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, second.Action)
	assert.Equal(t, ReasonSameStatus, second.Reason)
	assert.Equal(t, first.ApplicationID, second.ApplicationID)
}

func TestReconciler_StatusOnlyUpdate(t *testing.T) {
	r, apps, userID := newTestReconciler(t, true)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusApplied))
	require.NoError(t, err)

	rec := sampleRecord("m-1", models.StatusInterview)
	rec.CompanyName = "Someone Else"
	rec.JobTitle = "Different Title"
	out, err := r.Reconcile(ctx, userID, rec)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)

	stored, err := apps.GetByDedupKey(ctx, userID, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterview, stored.Status)
	assert.Equal(t, "Acme", stored.CompanyName)
	assert.Equal(t, "Backend Engineer", stored.JobTitle)

	events, err := apps.Events(ctx, userID, stored.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventEmailUpdate, events[1].EventType)
}

func TestReconciler_UnknownStatusNeverOverwrites(t *testing.T) {
	r, apps, userID := newTestReconciler(t, true)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusRejected))
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusUnknown))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, out.Action)
	assert.Equal(t, ReasonUnknownStatus, out.Reason)

	stored, err := apps.GetByDedupKey(ctx, userID, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

func TestReconciler_UnknownStatusCreatesAsApplied(t *testing.T) {
	r, apps, userID := newTestReconciler(t, true)
	ctx := context.Background()

	out, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusUnknown))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)

	stored, err := apps.GetByDedupKey(ctx, userID, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, stored.Status)
}

func TestReconciler_LowConfidenceNeverStored(t *testing.T) {
	r, apps, userID := newTestReconciler(t, true)
	ctx := context.Background()

	rec := sampleRecord("m-1", models.StatusApplied)
	rec.CompanyName, rec.JobTitle = "unknown", "unknown"
	out, err := r.Reconcile(ctx, userID, rec)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, out.Action)
	assert.Equal(t, ReasonLowConfidence, out.Reason)

	_, err = apps.GetByDedupKey(ctx, userID, "m-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// one resolved field is enough
	rec.JobTitle = "SRE"
	out, err = r.Reconcile(ctx, userID, rec)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
}

func TestReconciler_ManualEdits(t *testing.T) {
	ctx := context.Background()

	t.Run("preserved", func(t *testing.T) {
		r, apps, userID := newTestReconciler(t, true)
		created, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusApplied))
		require.NoError(t, err)
		_, err = apps.UpdateStatus(ctx, userID, created.ApplicationID, models.StatusOffer)
		require.NoError(t, err)

		out, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusRejected))
		require.NoError(t, err)
		assert.Equal(t, ActionUnchanged, out.Action)
		assert.Equal(t, ReasonManualEditPreserved, out.Reason)

		stored, err := apps.GetByDedupKey(ctx, userID, "m-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusOffer, stored.Status)
	})

	t.Run("latest extraction wins when not preserved", func(t *testing.T) {
		r, apps, userID := newTestReconciler(t, false)
		created, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusApplied))
		require.NoError(t, err)
		_, err = apps.UpdateStatus(ctx, userID, created.ApplicationID, models.StatusOffer)
		require.NoError(t, err)

		out, err := r.Reconcile(ctx, userID, sampleRecord("m-1", models.StatusRejected))
		require.NoError(t, err)
		assert.Equal(t, ActionUpdated, out.Action)
	})
}

func TestReconciler_StorageErrors(t *testing.T) {
	r, apps, userID := newTestReconciler(t, true)
	sqlDB, err := apps.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = r.Reconcile(context.Background(), userID, sampleRecord("m-1", models.StatusApplied))
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Contains(t, err.Error(), "db error")
}
