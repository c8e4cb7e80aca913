package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// LocalGate checks login attempts against a single configured development credential.
type LocalGate struct {
	subject string
	hash    []byte
}

// NewLocalGate returns nil when no local credential is configured.
func NewLocalGate(subject, secretHash string) *LocalGate {
	if subject == "" || secretHash == "" {
		return nil
	}
	return &LocalGate{subject: subject, hash: []byte(secretHash)}
}

// Allow reports whether subject and secret match the configured credential.
func (g *LocalGate) Allow(subject, secret string) bool {
	if g == nil {
		return true
	}
	subjectOK := subtle.ConstantTimeCompare([]byte(g.subject), []byte(subject)) == 1
	secretOK := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)) == nil
	return subjectOK && secretOK
}

// HashSecret hashes a plaintext secret for AUTH_LOCAL_SECRET_HASH.
func HashSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
