package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 keeps key validation around 60ms per call.
	bcryptCost = 10

	// bcryptLimit is bcrypt's hard cap on input length. Generated keys
	// are 76 chars, so they always take the SHA-256 pre-hash path.
	bcryptLimit = 72
)

// bcryptInput prepares an API key for bcrypt, pre-hashing with SHA-256 when
// the key exceeds bcrypt's 72-byte input limit.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}

// HashAPIKey generates a bcrypt hash of the API key for secure storage.
// The API key is never stored in plaintext, only the bcrypt hash is persisted.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyStringEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash checks an API key against a stored bcrypt hash.
// Returns false for any error condition (empty inputs, invalid hash format).
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}
