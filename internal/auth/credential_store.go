package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// CredentialStore keeps one encrypted Gmail grant per user.
type CredentialStore struct {
	db       *gorm.DB
	cipher   *Cipher
	oauth    *oauth2.Config
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

// NewCredentialStore wires the store. oauthCfg may be nil when no client
// secret is configured; Refresh then only hands out still-valid tokens.
func NewCredentialStore(db *gorm.DB, cipher *Cipher, oauthCfg *oauth2.Config, log *zap.Logger) *CredentialStore {
	return &CredentialStore{
		db:       db,
		cipher:   cipher,
		oauth:    oauthCfg,
		log:      log.Named("credentials"),
		attempts: 3,
		backoff:  500 * time.Millisecond,
	}
}

// WithRetry sets the retry budget for token endpoint calls.
func (s *CredentialStore) WithRetry(attempts int, backoff time.Duration) *CredentialStore {
	if attempts > 0 {
		s.attempts = attempts
	}
	if backoff > 0 {
		s.backoff = backoff
	}
	return s
}

// Token returns the stored token without refreshing it.
// A blob that no longer decrypts is cleared and reported as ErrMissingToken.
func (s *CredentialStore) Token(ctx context.Context, userID uint) (*oauth2.Token, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrMissingToken)
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.Connected() {
		return nil, ErrMissingToken
	}

	plain, err := s.cipher.Decrypt(user.GmailToken)
	if err != nil {
		s.invalidate(ctx, userID, err)
		return nil, fmt.Errorf("%w: %w", ErrMissingToken, err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(plain, tok); err != nil {
		s.invalidate(ctx, userID, err)
		return nil, fmt.Errorf("%w: corrupt token: %w", ErrMissingToken, err)
	}
	return tok, nil
}

// Refresh returns a valid access token, exchanging the refresh token when
// the stored one has expired. Rotated tokens are persisted.
//
// Only a missing credential or a grant the provider rejects is an
// *AuthError. An unreachable or failing token endpoint is retried and then
// reported wrapping ErrTokenEndpoint; database errors come back as is.
func (s *CredentialStore) Refresh(ctx context.Context, userID uint) (*oauth2.Token, error) {
	tok, err := s.Token(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrMissingToken) {
			return nil, &AuthError{UserID: userID, Err: err}
		}
		return nil, err
	}

	if s.oauth == nil {
		if tok.Valid() {
			return tok, nil
		}
		return nil, &AuthError{UserID: userID, Err: errors.New("token expired and no OAuth client configured")}
	}

	var fresh *oauth2.Token
	b := retry.WithMaxRetries(uint64(s.attempts-1), retry.NewExponential(s.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		fresh, err = s.oauth.TokenSource(ctx, tok).Token()
		if err == nil || grantRejected(err) || ctx.Err() != nil {
			return err
		}
		s.log.Warn("token endpoint error, retrying", zap.Uint("user_id", userID), zap.Error(err))
		return retry.RetryableError(err)
	})
	if err != nil {
		if grantRejected(err) {
			return nil, &AuthError{UserID: userID, Err: fmt.Errorf("refresh token: %w", err)}
		}
		return nil, fmt.Errorf("refresh token for user %d: %w: %w", userID, ErrTokenEndpoint, err)
	}

	if fresh.AccessToken != tok.AccessToken || fresh.RefreshToken != tok.RefreshToken {
		if err := s.Save(ctx, userID, fresh); err != nil {
			return nil, err
		}
		s.log.Debug("token refreshed", zap.Uint("user_id", userID), zap.Time("expiry", fresh.Expiry))
	}
	return fresh, nil
}

// Save replaces the user's credential wholesale.
func (s *CredentialStore) Save(ctx context.Context, userID uint, tok *oauth2.Token) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	blob, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"gmail_token": blob, "token_expiry": expiry})
	if res.Error != nil {
		return fmt.Errorf("save token for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save token: user %d not found", userID)
	}
	return nil
}

// Clear drops the user's credential.
func (s *CredentialStore) Clear(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"gmail_token": nil, "token_expiry": nil}).Error
	if err != nil {
		return fmt.Errorf("clear token for user %d: %w", userID, err)
	}
	return nil
}

func (s *CredentialStore) invalidate(ctx context.Context, userID uint, cause error) {
	s.log.Warn("stored Gmail token is unreadable, clearing it; user must reconnect",
		zap.Uint("user_id", userID), zap.Error(cause))
	if err := s.Clear(ctx, userID); err != nil {
		s.log.Error("failed to clear unreadable token", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// grantRejected is true when the provider answered and refused the grant.
// Throttling and server errors are not a verdict on the grant.
func grantRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.Response != nil {
		code := re.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return false
		}
	}
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client", "invalid_scope":
		return true
	}
	return re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
}
