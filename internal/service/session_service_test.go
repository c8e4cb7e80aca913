package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/auth"
	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/domain"
	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/repository"
)

type fakeVerifier struct {
	mu         sync.Mutex
	verdict    domain.LoginVerdict
	loginErr   error
	sessionOK  bool
	sessionErr error
	endErr     error
	loginCalls int
	checkedIDs []string
	endedIDs   []string
}

func (f *fakeVerifier) VerifyLogin(_ context.Context, _, _ string) (*domain.LoginVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	v := f.verdict
	return &v, nil
}

func (f *fakeVerifier) VerifySession(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkedIDs = append(f.checkedIDs, id)
	return f.sessionOK, f.sessionErr
}

func (f *fakeVerifier) EndSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedIDs = append(f.endedIDs, id)
	return f.endErr
}

type countingCodec struct {
	*auth.TokenManager
	verifies atomic.Int32
}

func (c *countingCodec) VerifyKind(token string, kind domain.CredentialKind) (*domain.Credential, error) {
	c.verifies.Add(1)
	return c.TokenManager.VerifyKind(token, kind)
}

type fixture struct {
	svc      *SessionService
	verifier *fakeVerifier
	codec    *countingCodec
	redis    *miniredis.Miniredis
	events   *[]events.Event
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:              "test-secret",
			AccessTokenTTLMinutes:  30,
			RefreshTokenTTLMinutes: 60,
		},
		Cookie: config.CookieConfig{
			AccessName:          "access_token",
			RefreshName:         "refresh_token",
			CSRFName:            "csrf-token",
			ExternalSessionName: "jsessionid",
			SameSite:            "Lax",
			ExternalMaxAgeSec:   86400,
		},
		Session: config.SessionConfig{TTLSeconds: 3600, CacheFailOpen: true, ValidateMode: "upstream"},
	}
}

func newFixture(t *testing.T, mutate func(*config.Config, *SessionDependencies)) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	verifier := &fakeVerifier{verdict: domain.LoginVerdict{Exists: true, Valid: true}}
	codec := &countingCodec{TokenManager: auth.NewTokenManager(cfg.Auth.JWTSecret)}

	var mu sync.Mutex
	published := []events.Event{}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range events.SessionEventTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, e)
			return nil
		})
	}

	deps := SessionDependencies{
		Tokens:     codec,
		Verifier:   verifier,
		Cache:      repository.NewRedisSessionCache(client, time.Second, true, zap.NewNop()),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	return &fixture{
		svc:      NewSessionService(cfg, deps),
		verifier: verifier,
		codec:    codec,
		redis:    mr,
		events:   &published,
	}
}

func cookieByName(t *testing.T, cookies []domain.CookieMutation, name string) domain.CookieMutation {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return domain.CookieMutation{}
}

func hasCookie(cookies []domain.CookieMutation, name string) bool {
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}

func TestLoginIssuesCookies(t *testing.T) {
	f := newFixture(t, nil)
	f.verifier.verdict.ExternalSessionID = "ABC.123"

	res, err := f.svc.Login(context.Background(), " alice ", "pw")
	require.NoError(t, err)
	require.Equal(t, "alice", res.Subject)

	access := cookieByName(t, res.Cookies, "access_token")
	require.True(t, access.HTTPOnly)
	require.Equal(t, 1800, access.MaxAge)
	cred, err := f.codec.TokenManager.VerifyKind(access.Value, domain.CredentialAccess)
	require.NoError(t, err)
	require.Equal(t, "alice", cred.Subject)

	refresh := cookieByName(t, res.Cookies, "refresh_token")
	_, err = f.codec.TokenManager.VerifyKind(refresh.Value, domain.CredentialRefresh)
	require.NoError(t, err)

	csrf := cookieByName(t, res.Cookies, "csrf-token")
	require.False(t, csrf.HTTPOnly)
	require.Len(t, csrf.Value, 32)

	external := cookieByName(t, res.Cookies, "jsessionid")
	require.Equal(t, "ABC.123", external.Value)
	require.True(t, external.HTTPOnly)
	require.Equal(t, 86400, external.MaxAge)

	require.True(t, f.redis.Exists("sess:alice"))
	require.Equal(t, time.Hour, f.redis.TTL("sess:alice"))
	require.Len(t, *f.events, 1)
	require.Equal(t, events.EventLoginSucceeded, (*f.events)[0].Type)
}

func TestLoginExternalCookieFollowsExpiry(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)
	f := newFixture(t, func(_ *config.Config, deps *SessionDependencies) {
		deps.Now = func() time.Time { return now }
	})
	f.verifier.verdict.ExternalSessionID = "sid"
	f.verifier.verdict.ExpiresAt = &expires

	res, err := f.svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, 600, cookieByName(t, res.Cookies, "jsessionid").MaxAge)
	require.Equal(t, &expires, res.ExpiresAt)
}

func TestLoginWithoutTokensSetsOnlyExternalAndCSRF(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, deps *SessionDependencies) {
		deps.Tokens = auth.NewTokenManager("")
	})
	f.verifier.verdict.ExternalSessionID = "sid"

	res, err := f.svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.False(t, hasCookie(res.Cookies, "access_token"))
	require.False(t, hasCookie(res.Cookies, "refresh_token"))
	require.True(t, hasCookie(res.Cookies, "csrf-token"))
	require.True(t, hasCookie(res.Cookies, "jsessionid"))
}

func TestLoginRejections(t *testing.T) {
	cases := []struct {
		name    string
		verdict domain.LoginVerdict
		want    error
	}{
		{"missing account wins over everything", domain.LoginVerdict{Exists: false, Locked: true, Valid: true}, domain.ErrAccountNotFound},
		{"locked", domain.LoginVerdict{Exists: true, Locked: true, Valid: true}, domain.ErrAccountLocked},
		{"invalid", domain.LoginVerdict{Exists: true, Valid: false, Reason: "bad password"}, domain.ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.verifier.verdict = tc.verdict

			res, err := f.svc.Login(context.Background(), "alice", "pw")
			require.Nil(t, res)
			require.ErrorIs(t, err, tc.want)
			require.False(t, f.redis.Exists("sess:alice"))
			require.Equal(t, events.EventLoginFailed, (*f.events)[0].Type)
		})
	}
}

func TestLoginRejectionCarriesReason(t *testing.T) {
	f := newFixture(t, nil)
	f.verifier.verdict = domain.LoginVerdict{Exists: true, Valid: false, Reason: "bad password"}

	_, err := f.svc.Login(context.Background(), "alice", "pw")
	var rejection *domain.RejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, "bad password", rejection.Reason)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Login(context.Background(), "  ", "pw")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, f.verifier.loginCalls)
}

func TestLoginUpstreamErrorsPassThrough(t *testing.T) {
	for _, want := range []error{domain.ErrUpstreamUnavailable, domain.ErrUpstreamTimeout} {
		f := newFixture(t, nil)
		f.verifier.loginErr = want

		_, err := f.svc.Login(context.Background(), "alice", "pw")
		require.ErrorIs(t, err, want)
		require.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	}
}

func TestLoginLocalGate(t *testing.T) {
	hash, err := auth.HashSecret("letmein", 4)
	require.NoError(t, err)

	f := newFixture(t, func(_ *config.Config, deps *SessionDependencies) {
		deps.Gate = auth.NewLocalGate("alice", hash)
	})

	_, err = f.svc.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.Zero(t, f.verifier.loginCalls)

	_, err = f.svc.Login(context.Background(), "alice", "letmein")
	require.NoError(t, err)
	require.Equal(t, 1, f.verifier.loginCalls)
}

func TestLoginCacheFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.redis.Close()

	_, err := f.svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
}

func TestConcurrentLoginsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)

	const n = 8
	results := make([]*domain.LoginResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Login(context.Background(), "alice", "pw")
		}(i)
	}
	wg.Wait()

	tokens := make([]string, 0, n)
	for i := range results {
		require.NoError(t, errs[i])
		tokens = append(tokens, cookieByName(t, results[i].Cookies, "access_token").Value)
	}

	seen := map[string]bool{}
	for _, tok := range tokens {
		require.False(t, seen[tok])
		seen[tok] = true
		_, err := f.codec.TokenManager.VerifyKind(tok, domain.CredentialAccess)
		require.NoError(t, err)
	}
	require.True(t, f.redis.Exists("sess:alice"))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("no evidence", func(t *testing.T) {
		f := newFixture(t, nil)
		require.False(t, f.svc.Validate(ctx, domain.SessionEvidence{}))
		require.Empty(t, f.verifier.checkedIDs)
	})

	t.Run("cookie checked upstream", func(t *testing.T) {
		f := newFixture(t, nil)
		f.verifier.sessionOK = true
		require.True(t, f.svc.Validate(ctx, domain.SessionEvidence{ExternalSessionID: "sid", BodySessionKey: "other"}))
		require.Equal(t, []string{"sid"}, f.verifier.checkedIDs)
	})

	t.Run("body key used without cookie", func(t *testing.T) {
		f := newFixture(t, nil)
		f.verifier.sessionOK = true
		require.True(t, f.svc.Validate(ctx, domain.SessionEvidence{BodySessionKey: "legacy"}))
		require.Equal(t, []string{"legacy"}, f.verifier.checkedIDs)
	})

	t.Run("upstream error is false", func(t *testing.T) {
		f := newFixture(t, nil)
		f.verifier.sessionErr = domain.ErrUpstreamTimeout
		require.False(t, f.svc.Validate(ctx, domain.SessionEvidence{ExternalSessionID: "sid"}))
	})

	t.Run("presence mode skips upstream", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config, _ *SessionDependencies) {
			cfg.Session.ValidateMode = "presence"
		})
		require.True(t, f.svc.Validate(ctx, domain.SessionEvidence{ExternalSessionID: "sid"}))
		require.Empty(t, f.verifier.checkedIDs)
	})

	t.Run("access credential alone", func(t *testing.T) {
		f := newFixture(t, nil)
		access, err := f.codec.Create("alice", domain.CredentialAccess, time.Minute)
		require.NoError(t, err)
		refresh, err := f.codec.Create("alice", domain.CredentialRefresh, time.Minute)
		require.NoError(t, err)

		require.True(t, f.svc.Validate(ctx, domain.SessionEvidence{AccessToken: access}))
		require.False(t, f.svc.Validate(ctx, domain.SessionEvidence{AccessToken: refresh}))
		require.False(t, f.svc.Validate(ctx, domain.SessionEvidence{AccessToken: "garbage"}))
	})
}

func TestRefreshWithExternalCookieSkipsCredentials(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Refresh(context.Background(), domain.SessionEvidence{ExternalSessionID: "sid", RefreshToken: "garbage"})
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticatedExternal, res.State)
	require.Empty(t, res.Cookies)
	require.Zero(t, f.codec.verifies.Load())
}

func TestRefreshMintsAccessCredential(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	refresh := cookieByName(t, login.Cookies, "refresh_token").Value

	res, err := f.svc.Refresh(ctx, domain.SessionEvidence{RefreshToken: refresh})
	require.NoError(t, err)
	require.Equal(t, "alice", res.Subject)
	require.Equal(t, domain.StateAuthenticatedLocal, res.State)
	require.Len(t, res.Cookies, 1)

	access := res.Cookies[0]
	require.Equal(t, "access_token", access.Name)
	cred, err := f.codec.TokenManager.VerifyKind(access.Value, domain.CredentialAccess)
	require.NoError(t, err)
	require.Equal(t, "alice", cred.Subject)
}

func TestRefreshRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("no evidence", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Refresh(ctx, domain.SessionEvidence{})
		require.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("access credential presented as refresh", func(t *testing.T) {
		f := newFixture(t, nil)
		access, err := f.codec.Create("alice", domain.CredentialAccess, time.Minute)
		require.NoError(t, err)
		_, err = f.svc.Refresh(ctx, domain.SessionEvidence{RefreshToken: access})
		require.ErrorIs(t, err, domain.ErrInvalidCredential)
		require.ErrorIs(t, err, domain.ErrCredentialKind)
	})

	t.Run("cache entry gone", func(t *testing.T) {
		f := newFixture(t, nil)
		refresh, err := f.codec.Create("alice", domain.CredentialRefresh, time.Hour)
		require.NoError(t, err)
		_, err = f.svc.Refresh(ctx, domain.SessionEvidence{RefreshToken: refresh})
		require.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("cache unreachable fails open", func(t *testing.T) {
		f := newFixture(t, nil)
		refresh, err := f.codec.Create("alice", domain.CredentialRefresh, time.Hour)
		require.NoError(t, err)
		f.redis.Close()
		_, err = f.svc.Refresh(ctx, domain.SessionEvidence{RefreshToken: refresh})
		require.NoError(t, err)
	})
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	require.True(t, f.redis.Exists("sess:alice"))

	res := f.svc.Logout(ctx, domain.SessionEvidence{
		RefreshToken:      cookieByName(t, login.Cookies, "refresh_token").Value,
		ExternalSessionID: "sid",
	})
	require.True(t, res.Notified)
	require.Equal(t, []string{"sid"}, f.verifier.endedIDs)
	require.False(t, f.redis.Exists("sess:alice"))

	require.Len(t, res.Cookies, 4)
	for _, c := range res.Cookies {
		require.True(t, c.Clear, c.Name)
		require.Empty(t, c.Value)
	}
}

func TestLogoutSucceedsWhenUpstreamFails(t *testing.T) {
	f := newFixture(t, nil)
	f.verifier.endErr = domain.ErrUpstreamTimeout

	res := f.svc.Logout(context.Background(), domain.SessionEvidence{BodySessionKey: "legacy"})
	require.False(t, res.Notified)
	require.Len(t, res.Cookies, 4)
	require.Equal(t, []string{"legacy"}, f.verifier.endedIDs)
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newFixture(t, nil)

	res := f.svc.Logout(context.Background(), domain.SessionEvidence{})
	require.Len(t, res.Cookies, 4)
	require.Empty(t, f.verifier.endedIDs)
}

func TestEventsCarryRequestMeta(t *testing.T) {
	f := newFixture(t, nil)
	ctx := events.WithMeta(context.Background(), events.Meta{ClientIP: "10.0.0.1", RequestID: "req-1"})

	_, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, "req-1", (*f.events)[0].Meta.RequestID)
	require.Equal(t, "alice", (*f.events)[0].Subject)
}

func TestRotateCSRF(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.svc.RotateCSRF()
	require.NoError(t, err)
	second, err := f.svc.RotateCSRF()
	require.NoError(t, err)
	require.Equal(t, "csrf-token", first.Name)
	require.NotEqual(t, first.Value, second.Value)
	require.False(t, first.HTTPOnly)
}
