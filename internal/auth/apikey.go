package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey hashes a plaintext API key with the given bcrypt cost.
func HashAPIKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// APIKeyVerifier checks presented keys against a stored bcrypt hash.
// Accepted keys are remembered by digest so bcrypt runs once per key.
type APIKeyVerifier struct {
	hash     []byte
	accepted sync.Map
}

// NewAPIKeyVerifier returns a verifier; an empty hash disables verification.
func NewAPIKeyVerifier(hash string) *APIKeyVerifier {
	return &APIKeyVerifier{hash: []byte(hash)}
}

// Enabled reports whether a hash is configured.
func (v *APIKeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify reports whether key matches the stored hash.
func (v *APIKeyVerifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if _, ok := v.accepted.Load(digest); ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(key)) != nil {
		return false
	}
	v.accepted.Store(digest, struct{}{})
	return true
}
