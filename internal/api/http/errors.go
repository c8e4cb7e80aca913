package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/session-bff/internal/domain"
	apperrors "github.com/spec-kit/session-bff/pkg/util/errorutil"
)

type sentinelMapping struct {
	err     error
	code    string
	message string
	status  int
}

// Ordered: the credential variants wrap ErrInvalidCredential and must not shadow
// anything listed before it.
var sentinelMappings = []sentinelMapping{
	{domain.ErrAccountNotFound, "ACCOUNT_NOT_FOUND", "account not found", http.StatusUnauthorized},
	{domain.ErrAccountLocked, "ACCOUNT_LOCKED", "account locked", http.StatusUnauthorized},
	{domain.ErrInvalidCredentials, "INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized},
	{domain.ErrInvalidCredential, "INVALID_CREDENTIAL", "invalid or expired credential", http.StatusUnauthorized},
	{domain.ErrSessionExpired, "SESSION_EXPIRED", "session expired", http.StatusUnauthorized},
	{domain.ErrNoSession, "NO_SESSION", "no active session", http.StatusUnauthorized},
	{domain.ErrCSRF, "CSRF_FAILED", "csrf validation failed", http.StatusForbidden},
	{domain.ErrRateLimited, "RATE_LIMITED", "too many requests", http.StatusTooManyRequests},
	{domain.ErrUpstreamTimeout, "UPSTREAM_TIMEOUT", "verification service timed out", http.StatusGatewayTimeout},
	{domain.ErrUpstreamUnavailable, "UPSTREAM_UNAVAILABLE", "verification service unavailable", http.StatusBadGateway},
}

// translateError maps domain sentinels and fiber errors onto the DomainError envelope.
// Anything unrecognised becomes a 500 without leaking its text.
func translateError(err error) *apperrors.DomainError {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	if errors.Is(err, domain.ErrValidation) {
		return apperrors.NewDomainError("VALIDATION_FAILED", err.Error(), http.StatusBadRequest, nil).Wrap(err)
	}

	for _, m := range sentinelMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		var details map[string]any
		var rejection *domain.RejectionError
		if errors.As(err, &rejection) && rejection.Reason != "" {
			details = map[string]any{"reason": rejection.Reason}
		}
		return apperrors.NewDomainError(m.code, m.message, m.status, details).Wrap(err)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := "HTTP_ERROR"
		switch fiberErr.Code {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			code = "VALIDATION_FAILED"
		case http.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		}
		return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
	}

	return apperrors.ToDomainError(err)
}
