package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/session-bff/internal/domain"
)

const csrfTokenBytes = 24

// CheckCSRF reports whether the double-submitted values match byte for byte.
// An empty value on either side fails.
func CheckCSRF(cookieValue, headerValue string) bool {
	if cookieValue == "" || headerValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) == 1
}

// NewCSRFToken returns a random base64url token.
func NewCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsMutating reports whether the HTTP method changes server state.
func IsMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

// CSRFMiddleware enforces the double-submit check on mutating requests.
func CSRFMiddleware(cookieName, headerName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsMutating(c.Method()) {
			return c.Next()
		}
		if !CheckCSRF(c.Cookies(cookieName), c.Get(headerName)) {
			return domain.ErrCSRF
		}
		return c.Next()
	}
}
