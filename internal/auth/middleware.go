package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/domain"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Subject   string
	State     domain.SessionState
	ExpiresAt *time.Time
}

// CookieNames tells the middleware where session evidence lives.
type CookieNames struct {
	Access          string
	ExternalSession string
}

// SessionChecker re-verifies an external session id.
type SessionChecker interface {
	VerifySession(ctx context.Context, sessionID string) (bool, error)
}

// AuthMiddleware resolves the caller from session cookies.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions SessionChecker
	mode     domain.ValidateMode
	cookies  CookieNames
	logger   *zap.Logger
}

// NewAuthMiddleware constructs middleware. mode decides whether the external session
// cookie is trusted on presence or re-verified through sessions.
func NewAuthMiddleware(tokens *TokenManager, sessions SessionChecker, mode domain.ValidateMode, cookies CookieNames, logger *zap.Logger) *AuthMiddleware {
	if mode != domain.ValidatePresence {
		mode = domain.ValidateUpstream
	}
	return &AuthMiddleware{tokens: tokens, sessions: sessions, mode: mode, cookies: cookies, logger: logger}
}

// Handle enforces authentication for protected routes. A valid access credential
// wins; otherwise the external session cookie is checked according to the validate mode.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	var rejected error
	if token := c.Cookies(m.cookies.Access); token != "" && m.tokens.Enabled() {
		cred, err := m.tokens.VerifyKind(token, domain.CredentialAccess)
		if err == nil {
			c.Locals(principalKey, &Principal{
				Subject:   cred.Subject,
				State:     domain.StateAuthenticatedLocal,
				ExpiresAt: &cred.ExpiresAt,
			})
			return c.Next()
		}
		m.logger.Debug("access credential rejected", zap.String("reason", domain.CredentialFailureReason(err)))
		rejected = err
	}

	if id := c.Cookies(m.cookies.ExternalSession); id != "" {
		if !m.externalActive(c.UserContext(), id) {
			return domain.ErrNoSession
		}
		c.Locals(principalKey, &Principal{State: domain.StateAuthenticatedExternal})
		return c.Next()
	}

	if rejected != nil {
		return rejected
	}
	return domain.ErrNoSession
}

func (m *AuthMiddleware) externalActive(ctx context.Context, id string) bool {
	if m.mode == domain.ValidatePresence {
		return true
	}
	if m.sessions == nil {
		return false
	}
	ok, err := m.sessions.VerifySession(ctx, id)
	if err != nil {
		m.logger.Warn("external session check failed", zap.Error(err))
		return false
	}
	return ok
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
