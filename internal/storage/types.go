package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// API keys are "rootline_ak_" followed by 64 hex characters. The prefix
// makes leaked keys greppable and lets ParseAPIKey reject foreign tokens
// before any store lookup.
const (
	apiKeyPrefix    = "rootline_ak_"
	randomBytesSize = 32
	apiKeyLength    = len(apiKeyPrefix) + randomBytesSize*2

	// Masked keys keep enough of both ends to identify the key in logs
	// ("rootline_ak_1234...cdef") without exposing it.
	maskPrefixLen = 16
	maskSuffixLen = 4
)

var (
	ErrKeyAlreadyExists = errors.New("API key already exists")
	ErrKeyNotFound      = errors.New("API key not found")
	ErrKeyNil           = errors.New("API key cannot be nil")
	ErrClientIDEmpty    = errors.New("client ID cannot be empty")
	ErrKeyStringEmpty   = errors.New("key string cannot be empty")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// APIKey identifies one API client of the research service with its
// permissions.
type APIKey struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	ClientID    string     `json:"clientId"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
}

// KeyStore is the API-key persistence interface. MemoryKeyStore backs local
// development; PersistentKeyStore backs deployments.
type KeyStore interface {
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	Add(ctx context.Context, apiKey *APIKey) error
	Update(ctx context.Context, apiKey *APIKey) error
	Delete(ctx context.Context, keyID string) error
	ListByClient(ctx context.Context, clientID string) ([]*APIKey, error)
}

// ValidateKey reports whether providedKey matches this key and the key is
// usable: active, unexpired, and equal under constant-time comparison.
func (ak *APIKey) ValidateKey(providedKey string) bool {
	if providedKey == "" || ak.Key == "" {
		return false
	}

	if !ak.Active {
		return false
	}

	if ak.ExpiresAt != nil && time.Now().After(*ak.ExpiresAt) {
		return false
	}

	return SecureCompare(ak.Key, providedKey)
}

// HasPermission reports whether the key carries the named permission.
func (ak *APIKey) HasPermission(permission string) bool {
	return permission != "" && slices.Contains(ak.Permissions, permission)
}

// SecureCompare compares two strings in constant time. Unequal lengths still
// run a comparison against a zero buffer so the early exit does not leak
// length information through timing.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), make([]byte, len(a)))

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey renders a key safe for logging. Well-formed keys keep their first
// 16 and last 4 characters; anything else (dev keys, garbage) is starred out
// entirely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) != apiKeyLength {
		return strings.Repeat("*", len(key))
	}

	masked := len(key) - maskPrefixLen - maskSuffixLen

	return key[:maskPrefixLen] + strings.Repeat("*", masked) + key[len(key)-maskSuffixLen:]
}

// GenerateAPIKey mints a fresh key for a client from 32 bytes of
// crypto/rand entropy.
func GenerateAPIKey(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrClientIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return apiKeyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey validates a key taken from a header, tolerating a leading
// "Bearer ". It checks shape only — prefix and length — never existence;
// that is the store's job.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, apiKeyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
