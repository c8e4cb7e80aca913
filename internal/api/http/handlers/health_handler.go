package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RuntimeInfo lists the non-secret settings shown by the debug endpoint.
type RuntimeInfo struct {
	ValidateMode        string `json:"validate_mode"`
	SigningMode         string `json:"signing_mode"`
	VerificationEnabled bool   `json:"verification_enabled"`
	TokensEnabled       bool   `json:"tokens_enabled"`
	SessionCache        string `json:"session_cache"`
	AuditStore          string `json:"audit_store"`
	CookieSameSite      string `json:"cookie_samesite"`
	CookieSecure        bool   `json:"cookie_secure"`
	LocalGate           bool   `json:"local_gate"`
	SessionCookie       string `json:"session_cookie"`
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    Pinger
	redis       Pinger
	debug       bool
	info        RuntimeInfo
}

// NewHealthHandler returns a new handler instance. A nil postgres or redis is reported
// as disabled rather than unavailable.
func NewHealthHandler(serviceName, version string, postgres, redis Pinger, debug bool, info RuntimeInfo) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		postgres:    postgres,
		redis:       redis,
		debug:       debug,
		info:        info,
	}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for name, dep := range map[string]Pinger{"postgres": h.postgres, "redis": h.redis} {
		if dep == nil {
			depStatus[name] = "disabled"
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			depStatus[name] = err.Error()
			ready = false
		} else {
			depStatus[name] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Debug handles GET /api/_debug; it is a 404 unless the app runs in debug mode.
func (h *HealthHandler) Debug(c *fiber.Ctx) error {
	if !h.debug {
		return fiber.ErrNotFound
	}
	return c.JSON(h.info)
}

// Echo handles GET /api/_echo in debug mode. It reports which cookies arrived, never their values.
func (h *HealthHandler) Echo(c *fiber.Ctx) error {
	if !h.debug {
		return fiber.ErrNotFound
	}

	names := []string{}
	c.Request().Header.VisitAllCookie(func(key, _ []byte) {
		names = append(names, string(key))
	})
	cookieHeader := "absent"
	if c.Get(fiber.HeaderCookie) != "" {
		cookieHeader = "present"
	}

	return c.JSON(fiber.Map{
		"cookie_name":     h.info.SessionCookie,
		"cookies_present": names,
		"has_cookie":      h.info.SessionCookie != "" && c.Cookies(h.info.SessionCookie) != "",
		"headers_subset": fiber.Map{
			"host":              c.Hostname(),
			"origin":            c.Get(fiber.HeaderOrigin),
			"cookie":            cookieHeader,
			"x-forwarded-proto": c.Get(fiber.HeaderXForwardedProto),
		},
	})
}
