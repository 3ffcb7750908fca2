// Package auth generates and hashes API tokens for the control API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const tokenBytes = 32

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// MatchesHash reports whether key hashes to hash, in constant time.
func MatchesHash(key, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashKey(key)), []byte(strings.ToLower(hash))) == 1
}

// ValidHash reports whether s looks like a HashKey result.
func ValidHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// GenerateToken returns a random hex token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
