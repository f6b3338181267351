package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenPrefix marks issued credentials so leaked tokens are recognizable
// in scanners and logs without being guessable.
const tokenPrefix = "fct_"

// tokenBytes is the entropy of an issued credential
const tokenBytes = 32

// GenerateToken creates a new opaque bearer credential. It returns the raw
// token (shown to the caller exactly once), the SHA-256 hex digest stored
// in the landlord registry, and a short prefix safe for audit logs.
func GenerateToken() (raw, hash, prefix string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate credential: %w", err)
	}
	raw = tokenPrefix + hex.EncodeToString(buf)
	hash = HashToken(raw)
	prefix = SafePrefix(raw)
	return raw, hash, prefix, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. The digest is
// the only form ever persisted or cached.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SafePrefix returns the first 8 characters of a credential, the only
// part permitted in warning logs for failed resolutions.
func SafePrefix(raw string) string {
	if len(raw) <= 8 {
		return raw
	}
	return raw[:8]
}

// ConstantTimeEqual compares two hex digests without leaking timing
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashPassword hashes a login password with bcrypt at the given cost
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a login password against its bcrypt hash
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
