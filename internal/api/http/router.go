package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/session-bff/internal/api/http/handlers"
	"github.com/spec-kit/session-bff/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	// Prefix mounts the session routes; "" serves them from the root.
	Prefix         string
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionHandler
	AuthMiddleware *auth.AuthMiddleware
	CSRF           fiber.Handler
	LoginLimiter   fiber.Handler
	Metrics        http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group(cfg.Prefix)
	api.Get("/health", cfg.Health.Health)
	api.Get("/_debug", cfg.Health.Debug)
	api.Get("/_echo", cfg.Health.Echo)

	if cfg.LoginLimiter != nil {
		api.Post("/login", cfg.LoginLimiter, cfg.Sessions.Login)
	} else {
		api.Post("/login", cfg.Sessions.Login)
	}
	api.Post("/logout", cfg.Sessions.Logout)
	api.Get("/session", cfg.Sessions.Session)
	api.Post("/session", cfg.Sessions.Session)
	api.Post("/refresh", cfg.Sessions.Refresh)

	// guarded per route so unknown paths under the prefix still 404
	guarded := func(h fiber.Handler) []fiber.Handler {
		chain := []fiber.Handler{cfg.AuthMiddleware.Handle}
		if cfg.CSRF != nil {
			chain = append(chain, cfg.CSRF)
		}
		return append(chain, h)
	}
	api.Get("/me", guarded(cfg.Sessions.Me)...)
	api.Get("/me/history", guarded(cfg.Sessions.History)...)
	api.Post("/csrf", guarded(cfg.Sessions.RotateCSRF)...)
}
