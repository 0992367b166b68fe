// Package credential mints raw voting tokens and derives the digest that is
// the only token representation shared between the two authorities.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// TokenBytes is 256 bits of entropy.
	TokenBytes = 32
	// TokenLength is the encoded length of a raw token.
	TokenLength = 43
	// DigestLength is the hex length of a digest.
	DigestLength = 64

	digestDomain = "election-voting-token/v1:"
)

// Generate returns a fresh raw token, URL-safe base64 without padding.
func Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate voting token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest is the deterministic one-way SHA3-256 of a raw token, as lowercase hex.
func Digest(rawToken string) string {
	sum := sha3.Sum256([]byte(digestDomain + rawToken))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether s looks like a raw token from Generate.
func WellFormed(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

// ValidDigest reports whether s is a lowercase hex digest of the right length.
func ValidDigest(s string) bool {
	if len(s) != DigestLength || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Short renders a digest prefix for log lines.
func Short(digest string) string {
	if len(digest) <= 8 {
		return digest
	}
	return digest[:8]
}
