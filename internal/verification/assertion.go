package verification

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/session-bff/internal/config"
)

// SigningMode names the way the BFF authenticates itself to the verification service.
type SigningMode string

const (
	ModeHMAC   SigningMode = "HS"
	ModeRSA    SigningMode = "RS"
	ModeStatic SigningMode = "STATIC"
	ModeNone   SigningMode = "NONE"
)

// AssertionStrategy produces the bearer value for one signing mode.
type AssertionStrategy interface {
	Mode() SigningMode
	Configured() bool
	Assertion(now time.Time) (string, error)
}

// AssertionChain evaluates its strategies in order; the first configured one wins.
type AssertionChain struct {
	strategies []AssertionStrategy
	now        func() time.Time
}

// NewAssertionChain wires the HMAC, RSA and static strategies in priority order.
func NewAssertionChain(cfg config.VerificationConfig) (*AssertionChain, error) {
	claims := assertionClaims{issuer: cfg.JWTIssuer, audience: cfg.JWTAudience, ttl: cfg.AssertionTTL}
	if claims.ttl <= 0 {
		claims.ttl = 2 * time.Minute
	}

	hmacStrategy := &hmacAssertion{claims: claims}
	if cfg.JWTSecret != "" && strings.HasPrefix(cfg.JWTAlg, "HS") {
		method := jwt.GetSigningMethod(cfg.JWTAlg)
		if method == nil {
			return nil, fmt.Errorf("unsupported VERIFY_JWT_ALG %q", cfg.JWTAlg)
		}
		hmacStrategy.method = method
		hmacStrategy.secret = []byte(cfg.JWTSecret)
	}

	rsaStrategy := &rsaAssertion{claims: claims}
	if cfg.JWTPrivateKey != "" && strings.HasPrefix(cfg.JWTAlg, "RS") {
		method := jwt.GetSigningMethod(cfg.JWTAlg)
		if method == nil {
			return nil, fmt.Errorf("unsupported VERIFY_JWT_ALG %q", cfg.JWTAlg)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(cfg.JWTPrivateKey)))
		if err != nil {
			return nil, fmt.Errorf("parse VERIFY_JWT_PRIVATE_KEY: %w", err)
		}
		rsaStrategy.method = method
		rsaStrategy.key = key
	}

	return NewAssertionChainFrom(hmacStrategy, rsaStrategy, staticAssertion(cfg.StaticToken)), nil
}

// NewAssertionChainFrom builds a chain from explicit strategies.
func NewAssertionChainFrom(strategies ...AssertionStrategy) *AssertionChain {
	return &AssertionChain{strategies: strategies, now: time.Now}
}

// Mode returns the mode of the strategy that would be used right now.
func (c *AssertionChain) Mode() SigningMode {
	if s := c.active(); s != nil {
		return s.Mode()
	}
	return ModeNone
}

// Assertion returns the bearer value, or "" when no strategy is configured.
func (c *AssertionChain) Assertion() (string, SigningMode, error) {
	s := c.active()
	if s == nil {
		return "", ModeNone, nil
	}
	token, err := s.Assertion(c.now())
	if err != nil {
		return "", s.Mode(), err
	}
	return token, s.Mode(), nil
}

func (c *AssertionChain) active() AssertionStrategy {
	if c == nil {
		return nil
	}
	for _, s := range c.strategies {
		if s != nil && s.Configured() {
			return s
		}
	}
	return nil
}

type assertionClaims struct {
	issuer   string
	audience string
	ttl      time.Duration
}

func (a assertionClaims) build(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Audience:  jwt.ClaimStrings{a.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
}

type hmacAssertion struct {
	claims assertionClaims
	method jwt.SigningMethod
	secret []byte
}

func (h *hmacAssertion) Mode() SigningMode { return ModeHMAC }
func (h *hmacAssertion) Configured() bool  { return h.method != nil && len(h.secret) > 0 }

func (h *hmacAssertion) Assertion(now time.Time) (string, error) {
	return jwt.NewWithClaims(h.method, h.claims.build(now)).SignedString(h.secret)
}

type rsaAssertion struct {
	claims assertionClaims
	method jwt.SigningMethod
	key    *rsa.PrivateKey
}

func (r *rsaAssertion) Mode() SigningMode { return ModeRSA }
func (r *rsaAssertion) Configured() bool  { return r.method != nil && r.key != nil }

func (r *rsaAssertion) Assertion(now time.Time) (string, error) {
	return jwt.NewWithClaims(r.method, r.claims.build(now)).SignedString(r.key)
}

type staticAssertion string

func (s staticAssertion) Mode() SigningMode                   { return ModeStatic }
func (s staticAssertion) Configured() bool                    { return s != "" }
func (s staticAssertion) Assertion(time.Time) (string, error) { return string(s), nil }

// normalizePEM accepts keys whose newlines were escaped to fit in a single env var.
func normalizePEM(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}
