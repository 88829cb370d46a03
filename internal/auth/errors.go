package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken means the user has no usable mailbox grant and must reconnect.
	ErrMissingToken = errors.New("gmail not connected")
	// ErrDecrypt means a stored token could not be opened with the current key.
	ErrDecrypt = errors.New("token decryption failed")
	// ErrTokenEndpoint means the token endpoint could not be reached or kept
	// failing. The stored grant is left as it is.
	ErrTokenEndpoint = errors.New("token endpoint unavailable")
)

// AuthError aborts a single user's scan; the user has to re-authorize.
type AuthError struct {
	UserID uint
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for user %d: %v (reconnect Gmail to continue)", e.UserID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err carries an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
