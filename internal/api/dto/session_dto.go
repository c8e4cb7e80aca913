package dto

import (
	"strings"
	"time"
)

// LoginRequest payload for login. Legacy clients send `email` or `usuario` with
// `password`; the canonical fields win when both are present.
type LoginRequest struct {
	Subject  string `json:"subject" form:"subject" query:"subject"`
	Secret   string `json:"secret" form:"secret" query:"secret"`
	Email    string `json:"email" form:"email" query:"email"`
	Usuario  string `json:"usuario" form:"usuario" query:"usuario"`
	Password string `json:"password" form:"password" query:"password"`
}

// Credentials resolves the subject and secret across the accepted aliases.
func (r LoginRequest) Credentials() (subject, secret string) {
	subject = firstNonEmpty(r.Subject, r.Email, r.Usuario)
	secret = r.Secret
	if secret == "" {
		secret = r.Password
	}
	return strings.TrimSpace(subject), secret
}

// SessionKeyRequest is the optional body of session and logout calls.
type SessionKeyRequest struct {
	SessionKey string `json:"sessionkey" form:"sessionkey"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	OK        bool       `json:"ok"`
	User      string     `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OKResponse is the body of endpoints that only acknowledge.
type OKResponse struct {
	OK bool `json:"ok"`
}

// SessionResponse answers "am I logged in".
type SessionResponse struct {
	Result bool `json:"result"`
}

// MeResponse describes the authenticated principal.
type MeResponse struct {
	User      *string    `json:"user"`
	Source    string     `json:"source"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AuditEntry is one row of a subject's session history.
type AuditEntry struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Outcome   string    `json:"outcome"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
