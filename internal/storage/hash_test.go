package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// testAPIKey is a full-length generated key, so it exercises the SHA-256
// pre-hash path that production keys always take.
const testAPIKey = "rootline_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef" // pragma: allowlist secret

func TestHashAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{
			name:   "full-length API key",
			apiKey: testAPIKey,
		},
		{
			name:   "short API key below bcrypt limit",
			apiKey: "rootline_ak_1234",
		},
		{
			name:   "oversized API key",
			apiKey: strings.Repeat("a", 100),
		},
		{
			name:    "empty API key",
			apiKey:  "",
			wantErr: ErrKeyStringEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashAPIKey(tt.apiKey)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("HashAPIKey() error = %v, want %v", err, tt.wantErr)
				}

				if hash != "" {
					t.Errorf("HashAPIKey() hash = %q, want empty string on error", hash)
				}

				return
			}

			if err != nil {
				t.Errorf("HashAPIKey() unexpected error = %v", err)

				return
			}

			// Bcrypt hashes start with $2a$, $2b$ or $2y$ and are 60 chars
			if !strings.HasPrefix(hash, "$2") {
				t.Errorf("HashAPIKey() hash = %q, want bcrypt format starting with $2", hash)
			}

			if len(hash) != 60 {
				t.Errorf("HashAPIKey() hash length = %d, want 60", len(hash))
			}

			// Hash should be different each time (bcrypt includes salt)
			hash2, err := HashAPIKey(tt.apiKey)
			if err != nil {
				t.Errorf("HashAPIKey() second call error = %v", err)
			}

			if hash == hash2 {
				t.Error("HashAPIKey() produced identical hashes, should include random salt")
			}
		})
	}
}

func TestCompareAPIKeyHash(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	testHash, err := HashAPIKey(testAPIKey)
	if err != nil {
		t.Fatalf("Failed to generate test hash: %v", err)
	}

	tests := []struct {
		name   string
		hash   string
		apiKey string
		want   bool
	}{
		{
			name:   "correct key matches hash",
			hash:   testHash,
			apiKey: testAPIKey,
			want:   true,
		},
		{
			name:   "incorrect key does not match hash",
			hash:   testHash,
			apiKey: "rootline_ak_wrong-key-here",
			want:   false,
		},
		{
			name:   "empty hash",
			hash:   "",
			apiKey: testAPIKey,
			want:   false,
		},
		{
			name:   "empty api key",
			hash:   testHash,
			apiKey: "",
			want:   false,
		},
		{
			name:   "both empty",
			hash:   "",
			apiKey: "",
			want:   false,
		},
		{
			name:   "invalid hash format",
			hash:   "invalid-hash-format",
			apiKey: testAPIKey,
			want:   false,
		},
		{
			name:   "case sensitive comparison",
			hash:   testHash,
			apiKey: strings.ToUpper(testAPIKey),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareAPIKeyHash(tt.hash, tt.apiKey)

			if got != tt.want {
				t.Errorf("CompareAPIKeyHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Raw bcrypt silently truncates input at 72 bytes, which would make two
// 76-char keys sharing their first 72 bytes interchangeable. The SHA-256
// pre-hash must keep them distinct.
func TestCompareAPIKeyHash_DistinguishesBeyondBcryptLimit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	keyA := testAPIKey
	keyB := testAPIKey[:len(testAPIKey)-1] + "0"

	hashA, err := HashAPIKey(keyA)
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	if !CompareAPIKeyHash(hashA, keyA) {
		t.Error("CompareAPIKeyHash() = false for the hashed key")
	}

	if CompareAPIKeyHash(hashA, keyB) {
		t.Error("CompareAPIKeyHash() = true for a key differing after byte 72")
	}
}

func TestHashAPIKey_Performance(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Measure hashing time (should be ~60ms for cost 10)
	start := time.Now()
	hash, err := HashAPIKey(testAPIKey)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	if hash == "" {
		t.Fatal("HashAPIKey() returned empty hash")
	}

	t.Logf("Hashing took %v", duration)

	// For cost 10, expect 20-100ms (varies by hardware)
	if duration > 200*time.Millisecond {
		t.Errorf("HashAPIKey() took %v, expected < 200ms for cost 10", duration)
	}
}
