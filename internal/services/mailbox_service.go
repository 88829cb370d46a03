package services

import (
	"context"
	"errors"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// ErrMailboxUnauthorized is returned when the provider rejects the grant (401/403).
var ErrMailboxUnauthorized = errors.New("mailbox rejected credentials")

const maxPageSize = 500

type MailboxReaderConfig struct {
	MaxMessages int           // per-scan ceiling
	Attempts    int           // per list/get call
	Backoff     time.Duration // first retry delay, doubled each attempt
}

// MailboxReader turns a mailbox query into a bounded, filtered message sequence.
type MailboxReader struct {
	matcher *PlatformMatcher
	cfg     MailboxReaderConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewMailboxReader(matcher *PlatformMatcher, cfg MailboxReaderConfig, log *zap.Logger) *MailboxReader {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	return &MailboxReader{matcher: matcher, cfg: cfg, log: log.Named("mailbox"), now: time.Now}
}

// Scan is one pass over the lookback window. Iterating Messages again
// starts over from the newest message.
type Scan struct {
	reader     *MailboxReader
	src        Source
	windowDays int

	truncated bool
	yielded   int
	dropped   int
}

func (r *MailboxReader) Scan(src Source, windowDays int) *Scan {
	return &Scan{reader: r, src: src, windowDays: windowDays}
}

// Truncated reports whether the ceiling cut the sequence short. The
// provider returns newest first, so the excluded messages are the oldest.
func (s *Scan) Truncated() bool { return s.truncated }

// Yielded is the number of candidate messages handed out so far.
func (s *Scan) Yielded() int { return s.yielded }

// Dropped counts messages removed by the allow-list or the window check.
func (s *Scan) Dropped() int { return s.dropped }

// Messages pages through the mailbox lazily. A fetch failure is yielded as
// the final element; everything yielded before it stays valid.
func (s *Scan) Messages(ctx context.Context) iter.Seq2[RawMessage, error] {
	return func(yield func(RawMessage, error) bool) {
		s.truncated, s.yielded, s.dropped = false, 0, 0

		r := s.reader
		since := r.now().AddDate(0, 0, -s.windowDays)
		query := r.matcher.Query(s.windowDays)
		pageSize := int64(min(r.cfg.MaxMessages, maxPageSize))
		pageToken := ""

		for {
			var page Page
			err := r.withRetry(ctx, func(ctx context.Context) error {
				var err error
				page, err = s.src.List(ctx, query, pageToken, pageSize)
				return err
			})
			if err != nil {
				yield(RawMessage{}, wrapFetchError("list", err))
				return
			}

			for _, id := range page.IDs {
				if s.yielded >= r.cfg.MaxMessages {
					s.truncated = true
					return
				}

				var msg RawMessage
				err := r.withRetry(ctx, func(ctx context.Context) error {
					var err error
					msg, err = s.src.Get(ctx, id)
					return err
				})
				if err != nil {
					yield(RawMessage{}, wrapFetchError("get "+id, err))
					return
				}

				if !msg.Date.IsZero() && msg.Date.Before(since) {
					s.dropped++
					continue
				}
				platform, ok := r.matcher.Classify(msg.Sender, msg.Subject)
				if !ok {
					s.dropped++
					r.log.Debug("dropped by allow-list", zap.String("message_id", msg.ID), zap.String("subject", msg.Subject))
					continue
				}
				msg.Platform = platform

				s.yielded++
				if !yield(msg, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			if s.yielded >= r.cfg.MaxMessages {
				s.truncated = true
				return
			}
			pageToken = page.NextPageToken
		}
	}
}

func (r *MailboxReader) withRetry(ctx context.Context, f func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(r.cfg.Attempts-1), retry.NewExponential(r.cfg.Backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := f(ctx)
		if err != nil && isRetryableFetch(err) {
			r.log.Warn("mailbox API error, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryableFetch(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapFetchError(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && (gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden) {
		return &FetchError{Op: op, Err: errors.Join(ErrMailboxUnauthorized, err)}
	}
	return &FetchError{Op: op, Err: err}
}
