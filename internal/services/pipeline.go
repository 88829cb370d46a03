package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// TokenProvider hands out a currently valid mailbox token for a user.
type TokenProvider interface {
	Refresh(ctx context.Context, userID uint) (*oauth2.Token, error)
}

type Options struct {
	WindowDays int // 0 means the configured lookback
	Reprocess  bool
}

// ScanReport summarises one user's run. Counts stay valid when Err is set:
// everything processed before the failure has been committed.
type ScanReport struct {
	RunID      string    `json:"run_id"`
	UserID     uint      `json:"user_id"`
	WindowDays int       `json:"window_days"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched          int  `json:"fetched"`
	Created          int  `json:"created"`
	Updated          int  `json:"updated"`
	Unchanged        int  `json:"unchanged"`
	Skipped          int  `json:"skipped"`
	NotApplications  int  `json:"not_applications"`
	ParseErrors      int  `json:"parse_errors"`
	Deferred         int  `json:"deferred"`
	AlreadyProcessed int  `json:"already_processed"`
	Truncated        bool `json:"truncated"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

func (r *ScanReport) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

type PipelineConfig struct {
	LookbackDays int
	Parallelism  int
}

// Pipeline runs credential -> mailbox -> extraction -> reconciliation for
// one user at a time, one message at a time.
type Pipeline struct {
	users      *UserService
	creds      TokenProvider
	sources    SourceFactory
	reader     *MailboxReader
	extractor  *Extractor
	reconciler *Reconciler
	ledger     *LedgerService
	cfg        PipelineConfig
	log        *zap.Logger
	now        func() time.Time
}

func NewPipeline(
	users *UserService,
	creds TokenProvider,
	sources SourceFactory,
	reader *MailboxReader,
	extractor *Extractor,
	reconciler *Reconciler,
	ledger *LedgerService,
	cfg PipelineConfig,
	log *zap.Logger,
) *Pipeline {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 10
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Pipeline{
		users:      users,
		creds:      creds,
		sources:    sources,
		reader:     reader,
		extractor:  extractor,
		reconciler: reconciler,
		ledger:     ledger,
		cfg:        cfg,
		log:        log.Named("pipeline"),
		now:        time.Now,
	}
}

// Run scans one user's mailbox. Per-message problems are counted and
// skipped; credential, mailbox and storage failures end the run early.
func (p *Pipeline) Run(ctx context.Context, userID uint, opts Options) (report ScanReport) {
	report = ScanReport{
		RunID:      uuid.NewString(),
		UserID:     userID,
		WindowDays: opts.WindowDays,
		StartedAt:  p.now(),
	}
	if report.WindowDays <= 0 {
		report.WindowDays = p.cfg.LookbackDays
	}
	log := p.log.With(zap.String("run_id", report.RunID), zap.Uint("user_id", userID))
	defer func() {
		report.FinishedAt = p.now()
		p.logReport(log, report)
	}()

	tok, err := p.creds.Refresh(ctx, userID)
	if err != nil {
		report.fail(credentialError(err))
		return report
	}
	src, err := p.sources(ctx, tok)
	if err != nil {
		report.fail(&FetchError{Op: "connect", Err: err})
		return report
	}

	log.Info("scan started", zap.Int("window_days", report.WindowDays), zap.Bool("reprocess", opts.Reprocess))

	scan := p.reader.Scan(src, report.WindowDays)
	for msg, err := range scan.Messages(ctx) {
		if err != nil {
			if errors.Is(err, ErrMailboxUnauthorized) {
				err = &auth.AuthError{UserID: userID, Err: err}
			}
			report.fail(err)
			break
		}
		report.Fetched++

		if err := p.process(ctx, log, userID, msg, opts, &report); err != nil {
			report.fail(err)
			break
		}
	}
	report.Truncated = scan.Truncated()

	if report.Err == nil {
		if err := p.users.TouchLastScan(ctx, userID, p.now()); err != nil {
			log.Warn("failed to record scan time", zap.Error(err))
		}
	}
	return report
}

// process handles one message. A non-nil return aborts the run.
func (p *Pipeline) process(ctx context.Context, log *zap.Logger, userID uint, msg RawMessage, opts Options, report *ScanReport) error {
	log = log.With(zap.String("message_id", msg.ID))

	if !opts.Reprocess {
		done, err := p.ledger.IsProcessed(ctx, userID, msg.ID)
		if err != nil {
			return &StorageError{Op: "check ledger", Err: err}
		}
		if done {
			report.AlreadyProcessed++
			return nil
		}
	}

	rec, err := p.extractor.Extract(ctx, msg)
	var outcome string
	switch {
	case errors.Is(err, ErrNotApplication):
		report.NotApplications++
		outcome = OutcomeNotApplication
		log.Debug("not a job application", zap.String("subject", msg.Subject))
	case errors.Is(err, ErrMalformedResponse):
		report.ParseErrors++
		outcome = OutcomeParseError
		log.Warn("unparseable model response", zap.String("subject", msg.Subject), zap.Error(err))
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Not marked processed: the next scan tries this message again.
		report.Deferred++
		log.Warn("extraction deferred", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	default:
		out, err := p.reconciler.Reconcile(ctx, userID, rec)
		if err != nil {
			return err
		}
		switch out.Action {
		case ActionCreated:
			report.Created++
		case ActionUpdated:
			report.Updated++
		case ActionUnchanged:
			report.Unchanged++
		case ActionSkipped:
			report.Skipped++
		}
		outcome = string(out.Action)
		if out.Reason != "" {
			outcome += ":" + out.Reason
		}
	}

	if err := p.ledger.MarkProcessed(ctx, userID, msg.ID, outcome); err != nil {
		return &StorageError{Op: "mark processed", Err: err}
	}
	return nil
}

// Sweep runs every user, at most Parallelism at a time. Per-user failures
// live in the reports; only failing to list users is returned.
func (p *Pipeline) Sweep(ctx context.Context, opts Options) ([]ScanReport, error) {
	users, err := p.users.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list users", Err: err}
	}

	reports := make([]ScanReport, len(users))
	var g errgroup.Group
	g.SetLimit(p.cfg.Parallelism)
	for i, u := range users {
		g.Go(func() error {
			reports[i] = p.Run(ctx, u.ID, opts)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	p.log.Info("sweep finished", zap.Int("users", len(users)), zap.Int("failed", failed))
	return reports, nil
}

// credentialError keeps an *auth.AuthError for a grant that needs
// reconnecting and classifies everything else as fetch or storage trouble.
func credentialError(err error) error {
	switch {
	case auth.IsAuthError(err):
		return err
	case errors.Is(err, auth.ErrTokenEndpoint):
		return &FetchError{Op: "refresh token", Err: err}
	default:
		return &StorageError{Op: "load credential", Err: err}
	}
}

func (p *Pipeline) logReport(log *zap.Logger, r ScanReport) {
	fields := []zap.Field{
		zap.Int("fetched", r.Fetched),
		zap.Int("created", r.Created),
		zap.Int("updated", r.Updated),
		zap.Int("unchanged", r.Unchanged),
		zap.Int("skipped", r.Skipped),
		zap.Int("not_applications", r.NotApplications),
		zap.Int("parse_errors", r.ParseErrors),
		zap.Int("deferred", r.Deferred),
		zap.Int("already_processed", r.AlreadyProcessed),
		zap.Bool("truncated", r.Truncated),
		zap.Duration("took", r.FinishedAt.Sub(r.StartedAt)),
	}
	switch {
	case auth.IsAuthError(r.Err):
		log.Warn("scan aborted: Gmail authorization needed", append(fields, zap.Error(r.Err))...)
	case r.Err != nil:
		log.Error("scan aborted", append(fields, zap.Error(r.Err))...)
	default:
		if r.Truncated {
			log.Warn("scan hit the per-check message ceiling; older messages were not read", fields...)
		}
		log.Info("scan finished", fields...)
	}
}
