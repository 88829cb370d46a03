// Package app wires configuration, storage and services together for the
// api and tracker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/justsurfingit/inbox-job-tracker/internal/auth"
	"github.com/justsurfingit/inbox-job-tracker/internal/config"
	"github.com/justsurfingit/inbox-job-tracker/internal/database"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type App struct {
	Config      *config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Users       *services.UserService
	Apps        *services.ApplicationService
	Ledger      *services.LedgerService
	Credentials *auth.CredentialStore

	// OAuth is nil when no client secret file could be loaded.
	OAuth *oauth2.Config

	// Sources opens a user's mailbox; tests swap it for a fake.
	Sources services.SourceFactory
	// Completer overrides the hosted model when set.
	Completer services.Completer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.EphemeralKey {
		log.Warn("ENCRYPTION_KEY not set, using a random key for this process; stored Gmail tokens will not survive a restart")
	}
	cipher, err := auth.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	oauthCfg, err := auth.OAuthConfig(cfg.GmailCredentialsFile, cfg.OAuthRedirectURL)
	if err != nil {
		log.Warn("Gmail OAuth client not configured; connect and token refresh are disabled", zap.Error(err))
		oauthCfg = nil
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		Users:       services.NewUserService(db),
		Apps:        services.NewApplicationService(db),
		Ledger:      services.NewLedgerService(db),
		Credentials: auth.NewCredentialStore(db, cipher, oauthCfg, log),
		OAuth:       oauthCfg,
		Sources:     services.NewGmailSourceFactory(),
	}, nil
}

// Pipeline builds the scanning pipeline. It needs a model API key, so
// read-only commands never call it.
func (a *App) Pipeline(ctx context.Context) (*services.Pipeline, error) {
	completer := a.Completer
	if completer == nil {
		llm, err := services.NewLLMService(ctx, a.Config)
		if err != nil {
			return nil, fmt.Errorf("init LLM: %w", err)
		}
		completer = llm
	}

	cfg := a.Config
	reader := services.NewMailboxReader(services.NewPlatformMatcher(), services.MailboxReaderConfig{
		MaxMessages: cfg.MaxEmailsPerCheck,
	}, a.Log)
	extractor := services.NewExtractor(completer, services.ExtractorConfig{
		BodyLimit:         cfg.LLMBodyLimit,
		MaxAttempts:       cfg.LLMMaxAttempts,
		RequestsPerMinute: cfg.LLMRequestsPerMinute,
	}, a.Log)
	reconciler := services.NewReconciler(a.Apps, cfg.PreserveManualEdits, a.Log)

	return services.NewPipeline(a.Users, a.Credentials, a.Sources, reader, extractor, reconciler, a.Ledger,
		services.PipelineConfig{LookbackDays: cfg.LookbackDays, Parallelism: cfg.ScanParallelism}, a.Log), nil
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
