package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/database"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect("sqlite://"+filepath.Join(t.TempDir(), "tracker.db"), zap.NewNop())
	require.NoError(t, err)
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u, err := NewUserService(db).Create(context.Background(), email)
	require.NoError(t, err)
	return u
}

// fakeSource serves a fixed mailbox, newest first, in pages of pageSize.
type fakeSource struct {
	mu       sync.Mutex
	messages []RawMessage
	listErr  error
	getErr   map[string]error
	gets     int
	queries  []string
}

func (f *fakeSource) List(_ context.Context, query, pageToken string, pageSize int64) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return Page{}, f.listErr
	}
	start := 0
	if pageToken != "" {
		start, _ = strconv.Atoi(pageToken)
	}
	end := min(start+int(pageSize), len(f.messages))
	page := Page{}
	for _, m := range f.messages[start:end] {
		page.IDs = append(page.IDs, m.ID)
	}
	if end < len(f.messages) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeSource) Get(_ context.Context, id string) (RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if err := f.getErr[id]; err != nil {
		return RawMessage{}, err
	}
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return RawMessage{}, fmt.Errorf("message %s not found", id)
}

func (f *fakeSource) factory() SourceFactory {
	return func(context.Context, *oauth2.Token) (Source, error) { return f, nil }
}

type staticTokens struct {
	err error
}

func (s staticTokens) Refresh(context.Context, uint) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "test", Expiry: time.Now().Add(time.Hour)}, nil
}

func jobMessage(id string, age time.Duration) RawMessage {
	return RawMessage{
		ID:      id,
		Sender:  "Acme Careers <acme@myworkday.com>",
		Subject: "Thank you for applying to Acme",
		Body:    "We received your application for Backend Engineer.",
		Date:    time.Now().Add(-age),
	}
}
