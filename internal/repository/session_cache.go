package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "sess:"

// SessionCache records which subjects hold an active session.
type SessionCache interface {
	SetActive(ctx context.Context, subject string, ttl time.Duration) error
	// Exists never fails; when the store cannot answer it returns the configured default.
	Exists(ctx context.Context, subject string) bool
	Remove(ctx context.Context, subject string) error
}

type sessionEntry struct {
	Active bool `json:"active"`
}

type redisSessionCache struct {
	client   redis.UniversalClient
	timeout  time.Duration
	failOpen bool
	logger   *zap.Logger
}

// NewRedisSessionCache returns a Redis-backed cache. failOpen is the answer Exists gives
// when Redis is unreachable.
func NewRedisSessionCache(client redis.UniversalClient, timeout time.Duration, failOpen bool, logger *zap.Logger) SessionCache {
	return &redisSessionCache{client: client, timeout: timeout, failOpen: failOpen, logger: logger}
}

func (r *redisSessionCache) SetActive(ctx context.Context, subject string, ttl time.Duration) error {
	if subject == "" {
		return errors.New("session cache: empty subject")
	}
	payload, err := json.Marshal(sessionEntry{Active: true})
	if err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Set(ctx, sessionKey(subject), payload, ttl).Err(); err != nil {
		return fmt.Errorf("session cache set: %w", err)
	}
	return nil
}

func (r *redisSessionCache) Exists(ctx context.Context, subject string) bool {
	if subject == "" {
		return false
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.Exists(ctx, sessionKey(subject)).Result()
	if err != nil {
		r.logger.Warn("session cache unavailable; using default", zap.Bool("default", r.failOpen), zap.Error(err))
		return r.failOpen
	}
	return n == 1
}

func (r *redisSessionCache) Remove(ctx context.Context, subject string) error {
	if subject == "" {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Del(ctx, sessionKey(subject)).Err(); err != nil {
		return fmt.Errorf("session cache delete: %w", err)
	}
	return nil
}

func (r *redisSessionCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func sessionKey(subject string) string {
	return sessionKeyPrefix + subject
}

type noopSessionCache struct{}

// NewNoopSessionCache is used when no cache is configured; every subject counts as active.
func NewNoopSessionCache() SessionCache {
	return noopSessionCache{}
}

func (noopSessionCache) SetActive(context.Context, string, time.Duration) error { return nil }
func (noopSessionCache) Exists(context.Context, string) bool                    { return true }
func (noopSessionCache) Remove(context.Context, string) error                   { return nil }
