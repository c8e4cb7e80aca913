package http

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/domain"
)

const limiterCleanupInterval = 5 * time.Minute

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. idle clients.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.lastCleanup) < limiterCleanupInterval {
		return
	}
	rl.lastCleanup = time.Now()
	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// LoginRateLimiter throttles requests per client IP. A non-positive request count
// disables it.
func LoginRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) fiber.Handler {
	if cfg.LoginRequests <= 0 || cfg.Window() <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = cfg.LoginRequests
	}
	rl := &rateLimiter{
		rate:        rate.Limit(float64(cfg.LoginRequests) / cfg.Window().Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}

	return func(c *fiber.Ctx) error {
		limiter := rl.getLimiter(c.IP())
		if limiter.Allow() {
			return c.Next()
		}

		reservation := limiter.Reserve()
		retryAfter := max(int(reservation.Delay().Seconds()), 1)
		reservation.Cancel()

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		logger.Warn("rate limit exceeded", zap.String("route", c.Path()), zap.Int("retry_after", retryAfter))
		return domain.ErrRateLimited
	}
}
