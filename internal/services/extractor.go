package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

const (
	unknownValue = "unknown"
	snippetLimit = 500
)

// Record is a fully populated extraction. Fields the model could not
// resolve hold "unknown"; nothing is left half-set.
type Record struct {
	SourceMessageID string
	CompanyName     string
	JobTitle        string
	Platform        models.Platform
	Status          models.Status
	AppliedAt       time.Time
	EmailSubject    string
	EmailSnippet    string
	EmailDate       time.Time
}

// LowConfidence is true when neither company nor title could be resolved.
func (r Record) LowConfidence() bool {
	return r.CompanyName == unknownValue && r.JobTitle == unknownValue
}

type ExtractorConfig struct {
	BodyLimit         int
	MaxAttempts       int
	Backoff           time.Duration
	RequestsPerMinute int // 0 disables pacing
}

// Extractor turns one message into a Record with a single model call
// (plus bounded retries on rate limiting).
type Extractor struct {
	llm     Completer
	cfg     ExtractorConfig
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
}

func NewExtractor(llm Completer, cfg ExtractorConfig, log *zap.Logger) *Extractor {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 2000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Extractor{llm: llm, cfg: cfg, limiter: limiter, log: log.Named("extractor"), now: time.Now}
}

const extractionPrompt = `You are an AI assistant that extracts job application information from emails.

Decide whether the email below is about a job or internship application the recipient made:
a confirmation that an application was received, an interview or assessment invitation,
a rejection, an offer, or a withdrawal confirmation. Newsletters, job alerts, marketing,
account notifications and anything else are NOT job applications.

Return ONLY a JSON object, no markdown, no explanation:
{
    "is_job_application": true or false,
    "company_name": "Name of the hiring company, or null",
    "job_title": "Title of the position applied for, or null",
    "platform": "Applicant tracking platform (workday, greenhouse, lever, ...) or null",
    "status": "one of: applied, interview, rejected, offer, withdrawn, unknown",
    "date_applied": "YYYY-MM-DD if the email states it, otherwise null"
}

Rules:
1. Extract only information explicitly present in the email. Do not guess.
2. For platform, use the sender domain or email content.
3. "Application received" or "thank you for applying" means status "applied".

Email:
From: %s
Subject: %s
Received: %s
Platform hint: %s
Body:
%s
`

// Extract returns a Record, or one of ErrNotApplication, ErrMalformedResponse,
// ErrRateLimited, or a wrapped model error.
func (e *Extractor) Extract(ctx context.Context, msg RawMessage) (Record, error) {
	prompt := e.buildPrompt(msg)

	var resp string
	b := retry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), retry.NewExponential(e.cfg.Backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		resp, err = e.llm.Complete(ctx, prompt)
		if err != nil && isRateLimited(err) {
			e.log.Warn("model rate limited, backing off", zap.String("message_id", msg.ID), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if isRateLimited(err) {
			return Record{}, fmt.Errorf("%w after %d attempts: %w", ErrRateLimited, e.cfg.MaxAttempts, err)
		}
		return Record{}, fmt.Errorf("model call: %w", err)
	}

	return e.parse(resp, msg)
}

func (e *Extractor) buildPrompt(msg RawMessage) string {
	hint := string(msg.Platform)
	if hint == "" {
		hint = unknownValue
	}
	received := "unknown"
	if !msg.Date.IsZero() {
		received = msg.Date.Format("2006-01-02")
	}
	return fmt.Sprintf(extractionPrompt, cleanText(msg.Sender), cleanText(msg.Subject), received, hint, truncate(cleanText(msg.Body), e.cfg.BodyLimit))
}

// parse is strict: either every field of Record is set or an error comes back.
func (e *Extractor) parse(resp string, msg RawMessage) (Record, error) {
	raw, ok := extractJSONObject(resp)
	if !ok {
		return Record{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(resp, 200))
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	isApp, known := boolField(fields, "is_job_application")
	if !known {
		return Record{}, fmt.Errorf("%w: missing is_job_application", ErrMalformedResponse)
	}
	if !isApp {
		return Record{}, ErrNotApplication
	}

	rec := Record{
		SourceMessageID: msg.ID,
		CompanyName:     clip(cleanName(cleanText(stringField(fields, "company_name"))), nameColumnSize),
		JobTitle:        clip(cleanName(cleanText(stringField(fields, "job_title"))), nameColumnSize),
		Platform:        models.ParsePlatform(stringField(fields, "platform")),
		Status:          NormalizeStatus(stringField(fields, "status")),
		EmailSubject:    clip(cleanText(msg.Subject), subjectColumnSize),
		EmailSnippet:    truncate(cleanText(msg.Body), snippetLimit),
		EmailDate:       msg.Date,
	}
	if rec.Platform == models.PlatformUnknown && msg.Platform != "" {
		rec.Platform = msg.Platform
	}

	rec.AppliedAt = msg.Date
	if d := stringField(fields, "date_applied"); d != "" {
		if t, err := dateparse.ParseAny(d); err == nil {
			rec.AppliedAt = t
		}
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = e.now()
	}
	if rec.EmailDate.IsZero() {
		rec.EmailDate = rec.AppliedAt
	}
	return rec, nil
}

// NormalizeStatus maps free-text status onto the enum, keyword first.
// Interview wording wins over "offer" ("offer you an interview").
func NormalizeStatus(raw string) models.Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if st, err := models.ParseStatus(s); err == nil {
		return st
	}
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
	switch {
	case s == "":
		return models.StatusUnknown
	case has("reject", "not moving forward", "not selected", "unsuccessful", "regret", "unfortunately", "unable to offer", "no longer"):
		return models.StatusRejected
	case has("withdr"):
		return models.StatusWithdrawn
	case has("interview", "assessment", "screen", "next step", "phone call"):
		return models.StatusInterview
	case has("offer"):
		return models.StatusOffer
	case has("appl", "received", "submitted", "confirm", "review", "pending"):
		return models.StatusApplied
	default:
		return models.StatusUnknown
	}
}

// extractJSONObject strips markdown fences and returns the outermost {...}.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func boolField(m map[string]any, key string) (value, known bool) {
	switch v := m[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func cleanName(s string) string {
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "unknown", "unknown company", "unknown position", "not specified", "not mentioned":
		return unknownValue
	}
	return s
}

// isRateLimited recognises quota and overload errors from the Gemini and
// OpenAI clients.
func isRateLimited(err error) bool {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPCode() == http.StatusTooManyRequests || apiErr.HTTPCode() == http.StatusServiceUnavailable {
			return true
		}
		if st := apiErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.ResourceExhausted, codes.Unavailable:
				return true
			}
		}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests || gErr.Code == http.StatusServiceUnavailable
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "resource_exhausted", "resource has been exhausted", "rate limit", "quota", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// cleanText replaces invalid UTF-8 and drops NUL bytes; Postgres rejects
// both in text columns.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// clip cuts s to at most n runes, without a marker.
func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
