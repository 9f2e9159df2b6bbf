package adapter

import (
	"errors"
	"fmt"
)

// AuthError means credentials are invalid or expired. Not retryable without
// user action; the orchestrator marks the channel unhealthy instead of
// retrying.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError means the channel configuration is malformed or incomplete.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid channel configuration: %s", e.Reason)
}

// CursorExpiredError means the provider can no longer resolve the incremental
// sync cursor. The caller falls back to a full windowed fetch.
type CursorExpiredError struct {
	Cursor string
}

func (e *CursorExpiredError) Error() string {
	return fmt.Sprintf("sync cursor %q expired", e.Cursor)
}

// TransientError wraps timeouts and rate-limit failures that are safe to
// retry with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsCursorExpired reports whether err means the sync cursor can no longer be
// resolved by the provider.
func IsCursorExpired(err error) bool {
	var cursorErr *CursorExpiredError
	return errors.As(err, &cursorErr)
}

// IsTransient reports whether err is retryable with backoff.
func IsTransient(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}
