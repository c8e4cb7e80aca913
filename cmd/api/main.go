package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/session-bff/internal/api/http"
	"github.com/spec-kit/session-bff/internal/api/http/handlers"
	"github.com/spec-kit/session-bff/internal/auth"
	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/observability"
	"github.com/spec-kit/session-bff/internal/persistence"
	"github.com/spec-kit/session-bff/internal/repository"
	"github.com/spec-kit/session-bff/internal/service"
	"github.com/spec-kit/session-bff/internal/verification"
	"github.com/spec-kit/session-bff/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Debug)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var sessionCache repository.SessionCache
	var redisPinger, pgPinger handlers.Pinger
	if redis != nil {
		sessionCache = repository.NewRedisSessionCache(redis.Client, cfg.Redis.Timeout(), cfg.Session.CacheFailOpen, logger)
		redisPinger = redis
	} else {
		sessionCache = repository.NewNoopSessionCache()
	}

	var auditRepo repository.AuditRepository
	if pg.Configured() {
		auditRepo = repository.NewAuditRepository(pg.PoolHandle())
		pgPinger = pg
	}

	assertions, err := verification.NewAssertionChain(cfg.Verification)
	if err != nil {
		logger.Fatal("invalid verification signing config", zap.Error(err))
	}
	httpClient := verification.NewHTTPClient(cfg.Verification)
	defer httpClient.CloseIdleConnections()
	verifier := verification.NewClient(httpClient, cfg.Verification, assertions, logger)

	metrics := observability.NewMetrics("session_bff")
	dispatcher := events.NewInMemoryDispatcher()
	auditService := service.NewAuditService(dispatcher, auditRepo, logger)
	worker.StartAuditWorker(auditService)
	worker.StartMetricsWorker(dispatcher, metrics)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	localGate := auth.NewLocalGate(cfg.Auth.LocalSubject, cfg.Auth.LocalSecretHash)

	deps := service.SessionDependencies{
		Tokens:     tokens,
		Verifier:   verifier,
		Cache:      sessionCache,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	if localGate != nil {
		deps.Gate = localGate
	}
	sessions := service.NewSessionService(*cfg, deps)

	logger.Info("session settings",
		zap.String("validate_mode", string(sessions.ValidateMode())),
		zap.String("signing_mode", string(verifier.SigningMode())),
		zap.Bool("verification_enabled", verifier.Configured()),
		zap.Bool("tokens_enabled", tokens.Enabled()),
		zap.Bool("session_cache", redis != nil),
		zap.Bool("local_gate", localGate != nil))

	authMiddleware := auth.NewAuthMiddleware(tokens, verifier, sessions.ValidateMode(), auth.CookieNames{
		Access:          cfg.Cookie.AccessName,
		ExternalSession: cfg.Cookie.ExternalSessionName,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024,
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:  logger,
		Metrics: metrics,
		Timeout: cfg.App.RequestTimeout(),
		Debug:   cfg.App.Debug,
		CORS:    cfg.CORS,
	})

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pgPinger, redisPinger, cfg.App.Debug, handlers.RuntimeInfo{
		ValidateMode:        string(sessions.ValidateMode()),
		SigningMode:         string(verifier.SigningMode()),
		VerificationEnabled: verifier.Configured(),
		TokensEnabled:       tokens.Enabled(),
		SessionCache:        cacheLabel(redis != nil),
		AuditStore:          auditLabel(pg.Configured()),
		CookieSameSite:      cfg.Cookie.SameSite,
		CookieSecure:        cfg.Cookie.Secure,
		LocalGate:           localGate != nil,
		SessionCookie:       cfg.Cookie.ExternalSessionName,
	})
	sessionHandler := handlers.NewSessionHandler(sessions, auditService, cfg.Cookie)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Prefix:         cfg.App.APIPrefix,
		Health:         healthHandler,
		Sessions:       sessionHandler,
		AuthMiddleware: authMiddleware,
		CSRF:           auth.CSRFMiddleware(cfg.Cookie.CSRFName, cfg.Cookie.CSRFHeader),
		LoginLimiter:   httptransport.LoginRateLimiter(cfg.RateLimit, logger),
		Metrics:        metrics.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

func cacheLabel(redis bool) string {
	if redis {
		return "redis"
	}
	return "none"
}

func auditLabel(postgres bool) string {
	if postgres {
		return "postgres"
	}
	return "log"
}
