package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("missing required input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountNotFound    = errors.New("account not found")
	ErrCSRF               = errors.New("csrf validation failed")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoSession          = errors.New("no session")
	ErrRateLimited        = errors.New("too many requests")

	ErrUpstreamUnavailable = errors.New("verification service unavailable")
	ErrUpstreamTimeout     = errors.New("verification service timed out")

	// ErrInvalidCredential covers every rejected local credential. The wrapped
	// variants below exist for logging only and are never shown to clients.
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrCredentialExpired   = fmt.Errorf("%w: expired", ErrInvalidCredential)
	ErrCredentialMalformed = fmt.Errorf("%w: malformed", ErrInvalidCredential)
	ErrCredentialKind      = fmt.Errorf("%w: wrong kind", ErrInvalidCredential)
)

// CredentialFailureReason returns a log-safe label for a credential error.
func CredentialFailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialExpired):
		return "expired"
	case errors.Is(err, ErrCredentialKind):
		return "wrong_kind"
	case errors.Is(err, ErrCredentialMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

// RejectionError carries the verification service's client-facing reason alongside
// one of the login sentinels.
type RejectionError struct {
	Err    error
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Err }
