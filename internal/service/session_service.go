package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/auth"
	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/domain"
	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/repository"
)

// TokenCodec issues and verifies local credentials.
type TokenCodec interface {
	Enabled() bool
	Create(subject string, kind domain.CredentialKind, ttl time.Duration) (string, error)
	VerifyKind(token string, kind domain.CredentialKind) (*domain.Credential, error)
}

// SessionVerifier is the external verification service.
type SessionVerifier interface {
	VerifyLogin(ctx context.Context, subject, secret string) (*domain.LoginVerdict, error)
	VerifySession(ctx context.Context, sessionID string) (bool, error)
	EndSession(ctx context.Context, sessionID string) error
}

// CredentialGate optionally screens logins before the verification service is asked.
type CredentialGate interface {
	Allow(subject, secret string) bool
}

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	Tokens     TokenCodec
	Verifier   SessionVerifier
	Cache      repository.SessionCache
	Gate       CredentialGate
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// SessionService runs the login / validate / refresh / logout lifecycle and decides
// which cookies the response carries.
type SessionService struct {
	tokens     TokenCodec
	verifier   SessionVerifier
	cache      repository.SessionCache
	gate       CredentialGate
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	cookies      config.CookieConfig
	accessTTL    time.Duration
	refreshTTL   time.Duration
	sessionTTL   time.Duration
	validateMode domain.ValidateMode
}

// NewSessionService builds the service.
func NewSessionService(cfg config.Config, deps SessionDependencies) *SessionService {
	s := &SessionService{
		tokens:       deps.Tokens,
		verifier:     deps.Verifier,
		cache:        deps.Cache,
		gate:         deps.Gate,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		now:          deps.Now,
		cookies:      cfg.Cookie,
		accessTTL:    cfg.Auth.AccessTTL(),
		refreshTTL:   cfg.Auth.RefreshTTL(),
		sessionTTL:   cfg.Session.TTL(),
		validateMode: domain.ValidateMode(cfg.Session.ValidateMode),
	}
	if s.cache == nil {
		s.cache = repository.NewNoopSessionCache()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.validateMode == "" {
		s.validateMode = domain.ValidateUpstream
	}
	return s
}

// ValidateMode reports how Validate treats the external session cookie.
func (s *SessionService) ValidateMode() domain.ValidateMode {
	return s.validateMode
}

// TokensEnabled reports whether local credentials are issued.
func (s *SessionService) TokensEnabled() bool {
	return s.tokens != nil && s.tokens.Enabled()
}

// Login verifies subject/secret upstream and returns every cookie the response must set.
func (s *SessionService) Login(ctx context.Context, subject, secret string) (*domain.LoginResult, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || secret == "" {
		return nil, fmt.Errorf("%w: subject and secret required", domain.ErrValidation)
	}

	if s.gate != nil && !s.gate.Allow(subject, secret) {
		s.publish(ctx, events.EventLoginFailed, subject, "local_gate")
		return nil, domain.ErrInvalidCredentials
	}

	verdict, err := s.verifier.VerifyLogin(ctx, subject, secret)
	if err != nil {
		outcome := "upstream_unavailable"
		if errors.Is(err, domain.ErrUpstreamTimeout) {
			outcome = "upstream_timeout"
		}
		s.logger.Warn("login verification failed", zap.String("outcome", outcome), zap.Error(err))
		s.publish(ctx, events.EventLoginFailed, subject, outcome)
		return nil, err
	}

	if rejection := rejectionFor(verdict); rejection != nil {
		s.logger.Info("login rejected",
			zap.String("outcome", rejectionOutcome(rejection)),
			zap.Bool("exists", verdict.Exists),
			zap.Bool("locked", verdict.Locked),
			zap.Bool("valid", verdict.Valid))
		s.publish(ctx, events.EventLoginFailed, subject, rejectionOutcome(rejection))
		return nil, rejection
	}

	cookies := make([]domain.CookieMutation, 0, 4)
	if s.TokensEnabled() {
		access, err := s.tokens.Create(subject, domain.CredentialAccess, s.accessTTL)
		if err != nil {
			return nil, fmt.Errorf("issue access credential: %w", err)
		}
		refresh, err := s.tokens.Create(subject, domain.CredentialRefresh, s.refreshTTL)
		if err != nil {
			return nil, fmt.Errorf("issue refresh credential: %w", err)
		}
		if access != "" && refresh != "" {
			cookies = append(cookies,
				s.cookie(s.cookies.AccessName, access, true, int(s.accessTTL.Seconds())),
				s.cookie(s.cookies.RefreshName, refresh, true, int(s.refreshTTL.Seconds())),
			)
		}
	}

	csrf, err := auth.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	cookies = append(cookies, s.cookie(s.cookies.CSRFName, csrf, false, int(s.sessionTTL.Seconds())))

	if verdict.ExternalSessionID != "" {
		cookies = append(cookies, s.cookie(s.cookies.ExternalSessionName, verdict.ExternalSessionID, true, s.externalMaxAge(verdict.ExpiresAt)))
	}

	if err := s.cache.SetActive(ctx, subject, s.sessionTTL); err != nil {
		s.logger.Warn("session cache write failed", zap.Error(err))
	}

	s.logger.Info("login succeeded",
		zap.Bool("local_tokens", s.TokensEnabled()),
		zap.Bool("external_session", verdict.ExternalSessionID != ""))
	s.publish(ctx, events.EventLoginSucceeded, subject, "ok")

	return &domain.LoginResult{Subject: subject, ExpiresAt: verdict.ExpiresAt, Cookies: cookies}, nil
}

// Validate answers "am I logged in". It never fails; missing evidence or an unreachable
// verification service yields false.
func (s *SessionService) Validate(ctx context.Context, ev domain.SessionEvidence) bool {
	if ev.ExternalSessionID != "" && s.validateMode == domain.ValidatePresence {
		return true
	}

	if id := ev.ExternalID(); id != "" {
		ok, err := s.verifier.VerifySession(ctx, id)
		if err != nil {
			s.logger.Warn("session check failed", zap.Bool("from_cookie", ev.ExternalSessionID != ""), zap.Error(err))
			return false
		}
		s.logger.Debug("session check", zap.Bool("from_cookie", ev.ExternalSessionID != ""), zap.Bool("ok", ok))
		return ok
	}

	if ev.AccessToken != "" && s.TokensEnabled() {
		if _, err := s.tokens.VerifyKind(ev.AccessToken, domain.CredentialAccess); err != nil {
			s.logger.Debug("access credential rejected", zap.String("reason", domain.CredentialFailureReason(err)))
			return false
		}
		return true
	}

	return false
}

// Refresh keeps the session alive. The external session cookie, when present, is
// sufficient on its own; otherwise a refresh credential mints a new access credential.
func (s *SessionService) Refresh(ctx context.Context, ev domain.SessionEvidence) (*domain.RefreshResult, error) {
	if ev.ExternalSessionID != "" {
		s.publish(ctx, events.EventSessionRefreshed, "", "external_session")
		return &domain.RefreshResult{State: domain.StateAuthenticatedExternal}, nil
	}

	if ev.RefreshToken == "" || !s.TokensEnabled() {
		s.publish(ctx, events.EventRefreshRejected, "", "no_session")
		return nil, domain.ErrNoSession
	}

	cred, err := s.tokens.VerifyKind(ev.RefreshToken, domain.CredentialRefresh)
	if err != nil {
		reason := domain.CredentialFailureReason(err)
		s.logger.Info("refresh credential rejected", zap.String("reason", reason))
		s.publish(ctx, events.EventRefreshRejected, "", reason)
		return nil, err
	}

	if !s.cache.Exists(ctx, cred.Subject) {
		s.publish(ctx, events.EventRefreshRejected, cred.Subject, "session_expired")
		return nil, domain.ErrSessionExpired
	}

	access, err := s.tokens.Create(cred.Subject, domain.CredentialAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access credential: %w", err)
	}

	s.publish(ctx, events.EventSessionRefreshed, cred.Subject, "local_credential")
	return &domain.RefreshResult{
		Subject: cred.Subject,
		State:   domain.StateAuthenticatedLocal,
		Cookies: []domain.CookieMutation{s.cookie(s.cookies.AccessName, access, true, int(s.accessTTL.Seconds()))},
	}, nil
}

// Logout clears every session cookie. Upstream notification and cache removal are
// best effort and never change the result.
func (s *SessionService) Logout(ctx context.Context, ev domain.SessionEvidence) *domain.LogoutResult {
	result := &domain.LogoutResult{Cookies: []domain.CookieMutation{
		s.clearCookie(s.cookies.AccessName, true),
		s.clearCookie(s.cookies.RefreshName, true),
		s.clearCookie(s.cookies.CSRFName, false),
		s.clearCookie(s.cookies.ExternalSessionName, true),
	}}

	if id := ev.ExternalID(); id != "" {
		if err := s.verifier.EndSession(ctx, id); err != nil {
			s.logger.Warn("upstream logout notification failed", zap.Error(err))
		} else {
			result.Notified = true
		}
	}

	subject := s.subjectFromEvidence(ev)
	if subject != "" {
		if err := s.cache.Remove(ctx, subject); err != nil {
			s.logger.Warn("session cache delete failed", zap.Error(err))
		}
	}

	s.logger.Info("logout", zap.Bool("had_external_session", ev.ExternalID() != ""), zap.Bool("notified", result.Notified))
	s.publish(ctx, events.EventLoggedOut, subject, "ok")
	return result
}

// RotateCSRF issues a fresh CSRF cookie.
func (s *SessionService) RotateCSRF() (domain.CookieMutation, error) {
	csrf, err := auth.NewCSRFToken()
	if err != nil {
		return domain.CookieMutation{}, err
	}
	return s.cookie(s.cookies.CSRFName, csrf, false, int(s.sessionTTL.Seconds())), nil
}

func (s *SessionService) subjectFromEvidence(ev domain.SessionEvidence) string {
	if !s.TokensEnabled() {
		return ""
	}
	if ev.RefreshToken != "" {
		if cred, err := s.tokens.VerifyKind(ev.RefreshToken, domain.CredentialRefresh); err == nil {
			return cred.Subject
		}
	}
	if ev.AccessToken != "" {
		if cred, err := s.tokens.VerifyKind(ev.AccessToken, domain.CredentialAccess); err == nil {
			return cred.Subject
		}
	}
	return ""
}

func (s *SessionService) externalMaxAge(expiresAt *time.Time) int {
	if expiresAt != nil {
		secs := int(expiresAt.Sub(s.now()).Seconds())
		if secs < 1 {
			secs = 1
		}
		return secs
	}
	return s.cookies.ExternalMaxAgeSec
}

func (s *SessionService) cookie(name, value string, httpOnly bool, maxAge int) domain.CookieMutation {
	return domain.CookieMutation{Name: name, Value: value, HTTPOnly: httpOnly, MaxAge: maxAge}
}

func (s *SessionService) clearCookie(name string, httpOnly bool) domain.CookieMutation {
	return domain.CookieMutation{Name: name, HTTPOnly: httpOnly, Clear: true}
}

func (s *SessionService) publish(ctx context.Context, eventType events.EventType, subject, outcome string) {
	if s.dispatcher == nil {
		return
	}
	event := events.NewEvent(eventType, subject, outcome, events.MetaFromContext(ctx))
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Debug("event handler failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func rejectionFor(v *domain.LoginVerdict) error {
	switch {
	case !v.Exists:
		return &domain.RejectionError{Err: domain.ErrAccountNotFound, Reason: v.Reason}
	case v.Locked:
		return &domain.RejectionError{Err: domain.ErrAccountLocked, Reason: v.Reason}
	case !v.Valid:
		return &domain.RejectionError{Err: domain.ErrInvalidCredentials, Reason: v.Reason}
	}
	return nil
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrAccountLocked):
		return "account_locked"
	default:
		return "invalid_credentials"
	}
}
