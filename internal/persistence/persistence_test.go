package persistence

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/config"
)

func TestEmbeddedMigrationsCreateAuditTable(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	content, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+entries[0].Name())
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), "CREATE TABLE IF NOT EXISTS session_audit"))
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
}

func TestNewRedisDisabledWithoutAddr(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	require.Nil(t, r)
	require.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestNewRedisPing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	r := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), TimeoutMS: 500}, zap.NewNop())
	t.Cleanup(r.Close)
	require.NoError(t, r.Ping(context.Background()))
}

func TestPostgresDisabledWithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, pg.Configured())
	require.Nil(t, pg.PoolHandle())
	require.Error(t, pg.Ping(context.Background()))
}
