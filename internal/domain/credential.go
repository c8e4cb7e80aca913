package domain

import "time"

// CredentialKind differentiates access vs refresh credentials.
type CredentialKind string

const (
	CredentialAccess  CredentialKind = "access"
	CredentialRefresh CredentialKind = "refresh"
)

// Valid reports whether the kind is one the codec issues.
func (k CredentialKind) Valid() bool {
	return k == CredentialAccess || k == CredentialRefresh
}

// Credential is the verified content of a locally signed token.
type Credential struct {
	ID        string
	Subject   string
	Kind      CredentialKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}
