package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/session-bff/internal/domain"
)

// TokenManager handles issuing and validating access and refresh credentials.
// A manager built without a secret is disabled: it issues nothing and verifies nothing.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Claims describes the JWT payload.
type Claims struct {
	Kind domain.CredentialKind `json:"typ"`
	jwt.RegisteredClaims
}

// Enabled reports whether a signing key is configured.
func (tm *TokenManager) Enabled() bool {
	return tm != nil && len(tm.secret) > 0
}

// Create signs a credential for subject with the given kind and lifetime.
// It returns an empty string when the manager is disabled.
func (tm *TokenManager) Create(subject string, kind domain.CredentialKind, ttl time.Duration) (string, error) {
	if !tm.Enabled() {
		return "", nil
	}
	if subject == "" {
		return "", errors.New("credential subject is required")
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown credential kind %q", kind)
	}
	if ttl < time.Second {
		return "", fmt.Errorf("credential ttl must be at least one second, got %s", ttl)
	}

	issuedAt := tm.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify validates signature and expiry and returns the credential content.
// Every failure wraps domain.ErrInvalidCredential.
func (tm *TokenManager) Verify(tokenStr string) (*domain.Credential, error) {
	if !tm.Enabled() {
		return nil, fmt.Errorf("%w: token issuance disabled", domain.ErrInvalidCredential)
	}
	if tokenStr == "" {
		return nil, domain.ErrCredentialMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCredentialExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrCredentialMalformed
	}
	if claims.Subject == "" || claims.IssuedAt == nil || !claims.Kind.Valid() {
		return nil, domain.ErrCredentialMalformed
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, domain.ErrCredentialMalformed
	}

	return &domain.Credential{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyKind verifies the token and rejects credentials of any other kind.
func (tm *TokenManager) VerifyKind(tokenStr string, kind domain.CredentialKind) (*domain.Credential, error) {
	cred, err := tm.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if cred.Kind != kind {
		return nil, domain.ErrCredentialKind
	}
	return cred, nil
}
