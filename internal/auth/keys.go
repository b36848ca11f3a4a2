// ABOUTME: Operator API key generation and verification
// ABOUTME: Keys are random, stored only as bcrypt hashes

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// keyBytes is the entropy of a generated operator key.
const keyBytes = 32

// NewOperatorKey generates a random operator API key. The raw key is
// shown once at bootstrap; only its hash is kept.
func NewOperatorKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return "tg_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the bcrypt hash of a key for storage.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(hash), nil
}

// CheckKey reports whether key matches the stored bcrypt hash.
func CheckKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
