package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/session-bff/internal/config"
	"github.com/spec-kit/session-bff/internal/domain"
)

// Form discriminators understood by the verification service.
const (
	formLogin   = 111
	formLogout  = 222
	formSession = 333
)

const maxResponseBytes = 1 << 20

// Client talks to the external session-verification endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
	assertions *AssertionChain
	logger     *zap.Logger
}

// NewHTTPClient builds the pooled transport shared by every outbound call. Requests
// beyond MaxConnections wait for a free connection instead of failing.
func NewHTTPClient(cfg config.VerificationConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConnections > 0 {
		transport.MaxConnsPerHost = cfg.MaxConnections
	}
	if cfg.MaxKeepAlive > 0 {
		transport.MaxIdleConns = cfg.MaxKeepAlive
		transport.MaxIdleConnsPerHost = cfg.MaxKeepAlive
	}
	transport.ForceAttemptHTTP2 = false
	return &http.Client{Transport: transport}
}

// NewClient constructs a verification client around an injected HTTP client.
func NewClient(httpClient *http.Client, cfg config.VerificationConfig, assertions *AssertionChain, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}
	return &Client{
		httpClient: httpClient,
		url:        cfg.URL,
		timeout:    cfg.Timeout(),
		assertions: assertions,
		logger:     logger,
	}
}

// Configured reports whether an endpoint URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// SigningMode reports the assertion mode outbound calls currently use.
func (c *Client) SigningMode() SigningMode {
	return c.assertions.Mode()
}

type requestBody struct {
	Form       int    `json:"form"`
	Action     string `json:"action"`
	Subject    string `json:"subject,omitempty"`
	Secret     string `json:"secret,omitempty"`
	SessionKey string `json:"sessionkey,omitempty"`
}

type responseBody struct {
	Exists     *bool           `json:"exists"`
	Locked     *bool           `json:"locked"`
	Valid      *bool           `json:"valid"`
	Auth       *bool           `json:"auth"`
	Result     *bool           `json:"result"`
	JSessionID string          `json:"jsessionid"`
	SessionKey string          `json:"sessionkey"`
	ExpiresAt  string          `json:"expires_at"`
	Reason     json.RawMessage `json:"reason"`
	Error      json.RawMessage `json:"error"`
}

// VerifyLogin asks the service whether subject/secret may open a session.
// Without a configured endpoint every login is accepted and no external id is issued.
func (c *Client) VerifyLogin(ctx context.Context, subject, secret string) (*domain.LoginVerdict, error) {
	if !c.Configured() {
		return &domain.LoginVerdict{Exists: true, Valid: true}, nil
	}

	body, err := c.call(ctx, requestBody{Form: formLogin, Action: "login", Subject: subject, Secret: secret})
	if err != nil {
		return nil, err
	}

	verdict := &domain.LoginVerdict{
		Exists: boolOr(body.Exists, true),
		Locked: boolOr(body.Locked, false),
		Valid:  boolOr(body.Valid, boolOr(body.Auth, true)),
		Reason: reasonText(body.Reason, body.Error),
	}
	verdict.ExternalSessionID = body.JSessionID
	if verdict.ExternalSessionID == "" {
		verdict.ExternalSessionID = body.SessionKey
	}
	if body.ExpiresAt != "" {
		if exp, err := time.Parse(time.RFC3339, body.ExpiresAt); err == nil {
			verdict.ExpiresAt = &exp
		} else {
			c.logger.Debug("ignoring unparseable expires_at from verification service")
		}
	}
	return verdict, nil
}

// VerifySession asks whether an external session id is still active.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (bool, error) {
	if !c.Configured() || sessionID == "" {
		return false, nil
	}
	body, err := c.call(ctx, requestBody{Form: formSession, Action: "session", SessionKey: sessionID})
	if err != nil {
		return false, err
	}
	return boolOr(body.Result, false) || boolOr(body.Auth, false) || boolOr(body.Valid, false), nil
}

// EndSession tells the service to invalidate an external session id.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if !c.Configured() || sessionID == "" {
		return nil
	}
	_, err := c.call(ctx, requestBody{Form: formLogout, Action: "logout", SessionKey: sessionID})
	return err
}

func (c *Client) call(ctx context.Context, payload requestBody) (*responseBody, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode verification request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, mode, err := c.assertions.Assertion()
	if err != nil {
		c.logger.Warn("verification assertion build failed", zap.String("mode", string(mode)), zap.Error(err))
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	c.logger.Debug("verification call",
		zap.String("action", payload.Action),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("auth_header", token != ""))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body responseBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return &body, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// reasonText flattens the service's reason or error field into a short string.
func reasonText(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return strings.TrimSpace(string(trimmed))
	}
	return ""
}
