package domain

import "time"

// SessionState names the per-request position in the session lifecycle.
type SessionState string

const (
	StateAnonymous             SessionState = "anonymous"
	StateAuthenticating        SessionState = "authenticating"
	StateAuthenticatedLocal    SessionState = "authenticated_local"
	StateAuthenticatedExternal SessionState = "authenticated_external"
	StateExpired               SessionState = "expired"
)

// ValidateMode selects how the session check treats the external session cookie.
type ValidateMode string

const (
	// ValidatePresence trusts the cookie's presence without a network round-trip.
	ValidatePresence ValidateMode = "presence"
	// ValidateUpstream re-verifies the external id against the verification service.
	ValidateUpstream ValidateMode = "upstream"
)

// SessionEvidence holds what the inbound request carries about its session.
type SessionEvidence struct {
	AccessToken       string
	RefreshToken      string
	CSRFToken         string
	ExternalSessionID string
	// BodySessionKey is the legacy `sessionkey` body field, used only when the cookie is absent.
	BodySessionKey string
}

// ExternalID returns the external session id, preferring the cookie.
func (e SessionEvidence) ExternalID() string {
	if e.ExternalSessionID != "" {
		return e.ExternalSessionID
	}
	return e.BodySessionKey
}

// LoginVerdict is the verification service's answer to a login attempt.
type LoginVerdict struct {
	Exists            bool
	Locked            bool
	Valid             bool
	ExternalSessionID string
	ExpiresAt         *time.Time
	Reason            string
}

// CookieMutation describes one cookie to set or clear on the response.
type CookieMutation struct {
	Name     string
	Value    string
	HTTPOnly bool
	MaxAge   int
	Clear    bool
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Subject   string
	ExpiresAt *time.Time
	Cookies   []CookieMutation
}

// RefreshResult is returned by a successful refresh.
type RefreshResult struct {
	Subject string
	State   SessionState
	Cookies []CookieMutation
}

// LogoutResult is returned by logout, which never fails.
type LogoutResult struct {
	Cookies  []CookieMutation
	Notified bool
}
