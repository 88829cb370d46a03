package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

func newTestReader(max int) *MailboxReader {
	return NewMailboxReader(NewPlatformMatcher(), MailboxReaderConfig{MaxMessages: max, Attempts: 3, Backoff: time.Millisecond}, zap.NewNop())
}

func collect(t *testing.T, scan *Scan) ([]RawMessage, error) {
	t.Helper()
	var out []RawMessage
	for msg, err := range scan.Messages(context.Background()) {
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func TestMailboxReader_FiltersAndTagsPlatform(t *testing.T) {
	newsletter := RawMessage{ID: "news", Sender: "Medium Daily Digest <noreply@medium.com>", Subject: "Top stories", Date: time.Now()}
	stale := jobMessage("stale", 20*24*time.Hour)
	src := &fakeSource{messages: []RawMessage{jobMessage("wd", time.Hour), newsletter, stale}}

	scan := newTestReader(50).Scan(src, 10)
	msgs, err := collect(t, scan)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "wd", msgs[0].ID)
	assert.Equal(t, models.PlatformWorkday, msgs[0].Platform)
	assert.Equal(t, 2, scan.Dropped())
	assert.False(t, scan.Truncated())

	require.NotEmpty(t, src.queries)
	assert.Contains(t, src.queries[0], "newer_than:10d")
}

func TestMailboxReader_CeilingTruncates(t *testing.T) {
	var mailbox []RawMessage
	for i := range 7 {
		mailbox = append(mailbox, jobMessage(fmt.Sprintf("m-%d", i), time.Duration(i)*time.Hour))
	}
	src := &fakeSource{messages: mailbox}

	scan := newTestReader(5).Scan(src, 10)
	msgs, err := collect(t, scan)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
	assert.Equal(t, "m-0", msgs[0].ID, "newest kept, oldest excluded")
	assert.True(t, scan.Truncated())
	assert.Equal(t, 5, src.gets)

	// exactly at the ceiling is not a truncation
	exact := &fakeSource{messages: mailbox[:5]}
	scan = newTestReader(5).Scan(exact, 10)
	msgs, err = collect(t, scan)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
	assert.False(t, scan.Truncated())
}

func TestMailboxReader_PagesLazily(t *testing.T) {
	var mailbox []RawMessage
	for i := range 4 {
		mailbox = append(mailbox, jobMessage(fmt.Sprintf("m-%d", i), time.Hour))
	}
	src := &fakeSource{messages: mailbox}

	scan := newTestReader(2).Scan(src, 10)
	for msg, err := range scan.Messages(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "m-0", msg.ID)
		break
	}
	assert.Equal(t, 1, src.gets)
	assert.Len(t, src.queries, 1)
}

func TestMailboxReader_RetriesTransientListErrors(t *testing.T) {
	src := &fakeSource{listErr: &googleapi.Error{Code: http.StatusServiceUnavailable}}

	_, err := collect(t, newTestReader(50).Scan(src, 10))
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Len(t, src.queries, 3)
	assert.NotErrorIs(t, err, ErrMailboxUnauthorized)
}

func TestMailboxReader_UnauthorizedIsNotRetried(t *testing.T) {
	src := &fakeSource{
		messages: []RawMessage{jobMessage("ok", time.Hour), jobMessage("denied", time.Hour)},
		getErr:   map[string]error{"denied": &googleapi.Error{Code: http.StatusUnauthorized}},
	}

	msgs, err := collect(t, newTestReader(50).Scan(src, 10))
	require.Len(t, msgs, 1, "messages before the failure stay valid")
	assert.ErrorIs(t, err, ErrMailboxUnauthorized)
	assert.Equal(t, 2, src.gets)
}
