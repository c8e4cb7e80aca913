package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/session-bff/internal/api/dto"
	"github.com/spec-kit/session-bff/internal/auth"
	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/domain"
	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/observability"
	"github.com/spec-kit/session-bff/internal/service"
)

const historyLimit = 20

// SessionHandler exposes the session lifecycle endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	audit    *service.AuditService
	cookies  config.CookieConfig
}

// NewSessionHandler constructs handler. audit may be nil.
func NewSessionHandler(sessions *service.SessionService, audit *service.AuditService, cookies config.CookieConfig) *SessionHandler {
	return &SessionHandler{sessions: sessions, audit: audit, cookies: cookies}
}

// Login handles POST /api/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return fmt.Errorf("%w: invalid payload", domain.ErrValidation)
		}
	}
	if err := c.QueryParser(&req); err != nil {
		return fmt.Errorf("%w: invalid query", domain.ErrValidation)
	}

	subject, secret := req.Credentials()
	result, err := h.sessions.Login(requestContext(c), subject, secret)
	if err != nil {
		return err
	}

	h.applyCookies(c, result.Cookies)
	return c.JSON(dto.LoginResponse{OK: true, User: result.Subject, ExpiresAt: result.ExpiresAt})
}

// Logout handles POST /api/logout. It always succeeds.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	result := h.sessions.Logout(requestContext(c), h.evidence(c))
	h.applyCookies(c, result.Cookies)
	return c.JSON(dto.OKResponse{OK: true})
}

// Session handles GET and POST /api/session.
func (h *SessionHandler) Session(c *fiber.Ctx) error {
	ok := h.sessions.Validate(requestContext(c), h.evidence(c))
	return c.JSON(dto.SessionResponse{Result: ok})
}

// Refresh handles POST /api/refresh.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	ev := h.evidence(c)
	ev.BodySessionKey = ""
	result, err := h.sessions.Refresh(requestContext(c), ev)
	if err != nil {
		return err
	}
	h.applyCookies(c, result.Cookies)
	return c.JSON(dto.OKResponse{OK: true})
}

// Me handles GET /api/me.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNoSession
	}
	resp := dto.MeResponse{ExpiresAt: principal.ExpiresAt, Source: "external"}
	if principal.State == domain.StateAuthenticatedLocal {
		subject := principal.Subject
		resp.User = &subject
		resp.Source = "local"
	}
	return c.JSON(resp)
}

// History handles GET /api/me/history. Principals known only by an external session
// have no subject to look up.
func (h *SessionHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.ErrNoSession
	}
	entries := []dto.AuditEntry{}
	if principal.Subject == "" || h.audit == nil {
		return c.JSON(fiber.Map{"data": entries})
	}

	records, err := h.audit.History(c.UserContext(), principal.Subject, historyLimit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		entries = append(entries, dto.AuditEntry{
			ID:        rec.ID,
			Event:     rec.EventType,
			Outcome:   rec.Outcome,
			RequestID: rec.RequestID,
			CreatedAt: rec.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": entries})
}

// RotateCSRF handles POST /api/csrf.
func (h *SessionHandler) RotateCSRF(c *fiber.Ctx) error {
	cookie, err := h.sessions.RotateCSRF()
	if err != nil {
		return err
	}
	h.applyCookies(c, []domain.CookieMutation{cookie})
	return c.JSON(dto.OKResponse{OK: true})
}

func (h *SessionHandler) evidence(c *fiber.Ctx) domain.SessionEvidence {
	ev := domain.SessionEvidence{
		AccessToken:       c.Cookies(h.cookies.AccessName),
		RefreshToken:      c.Cookies(h.cookies.RefreshName),
		CSRFToken:         c.Cookies(h.cookies.CSRFName),
		ExternalSessionID: c.Cookies(h.cookies.ExternalSessionName),
	}
	if len(c.Body()) > 0 {
		var req dto.SessionKeyRequest
		if err := parseBody(c, &req); err == nil {
			ev.BodySessionKey = strings.TrimSpace(req.SessionKey)
		}
	}
	return ev
}

func (h *SessionHandler) applyCookies(c *fiber.Ctx, mutations []domain.CookieMutation) {
	for _, m := range mutations {
		cookie := &fiber.Cookie{
			Name:     m.Name,
			Value:    m.Value,
			Path:     "/",
			HTTPOnly: m.HTTPOnly,
			Secure:   h.cookies.Secure,
			SameSite: h.cookies.SameSite,
			MaxAge:   m.MaxAge,
		}
		if m.Clear {
			cookie.Value = ""
			cookie.MaxAge = 0
			cookie.Expires = time.Unix(0, 0)
		}
		c.Cookie(cookie)
	}
}

// parseBody accepts JSON and form bodies; a body sent without a content type is
// tried as JSON.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Request().Header.ContentType()) == 0 {
		return json.Unmarshal(c.Body(), out)
	}
	return c.BodyParser(out)
}

func requestContext(c *fiber.Ctx) context.Context {
	requestID, _ := c.Locals(observability.RequestIDKey).(string)
	return events.WithMeta(c.UserContext(), events.Meta{ClientIP: c.IP(), RequestID: requestID})
}
