package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hourAgo := time.Now().Add(-time.Hour)
	inAnHour := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		key      APIKey
		provided string
		want     bool
	}{
		{
			name:     "matching key on an active record",
			key:      APIKey{Key: "test-key-123", Active: true},
			provided: "test-key-123",
			want:     true,
		},
		{
			name:     "wrong key",
			key:      APIKey{Key: "test-key-123", Active: true},
			provided: "wrong-key",
			want:     false,
		},
		{
			name:     "empty provided key",
			key:      APIKey{Key: "test-key-123", Active: true},
			provided: "",
			want:     false,
		},
		{
			name:     "empty stored key",
			key:      APIKey{Key: "", Active: true},
			provided: "test-key-123",
			want:     false,
		},
		{
			name:     "inactive record rejects its own key",
			key:      APIKey{Key: "inactive-key", Active: false},
			provided: "inactive-key",
			want:     false,
		},
		{
			name:     "expired record rejects its own key",
			key:      APIKey{Key: "expired-key", Active: true, ExpiresAt: &hourAgo},
			provided: "expired-key",
			want:     false,
		},
		{
			name:     "future expiry still validates",
			key:      APIKey{Key: "live-key", Active: true, ExpiresAt: &inAnHour},
			provided: "live-key",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.ValidateKey(tt.provided); got != tt.want {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.provided, got, tt.want)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key := APIKey{Permissions: []string{"jobs:write", "jobs:read", "export:read"}}

	tests := []struct {
		permission string
		want       bool
	}{
		{"jobs:write", true},
		{"jobs:read", true},
		{"export:read", true},
		{"settings:write", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := key.HasPermission(tt.permission); got != tt.want {
			t.Errorf("HasPermission(%q) = %v, want %v", tt.permission, got, tt.want)
		}
	}
}

func TestSecureCompare(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical strings", "rootline_ak_1234567890abcdef", "rootline_ak_1234567890abcdef", true},
		{"same length, different content", "rootline_ak_1234567890abcdef", "rootline_ak_abcdef1234567890", false},
		{"different lengths", "rootline_ak_1234567890abcdef", "rootline_ak_1234", false},
		{"both empty", "", "", true},
		{"one empty", "rootline_ak_1234", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecureCompare(tt.a, tt.b); got != tt.want {
				t.Errorf("SecureCompare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	wellFormed := "rootline_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "well-formed key keeps both ends",
			key:  wellFormed,
			want: "rootline_ak_1234" + strings.Repeat("*", len(wellFormed)-maskPrefixLen-maskSuffixLen) + "cdef",
		},
		{"dev key fully starred", "test-key-123", "************"},
		{"short string fully starred", "ab", "**"},
		{"empty string stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskKey(tt.key); got != tt.want {
				t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("generates well-formed distinct keys", func(t *testing.T) {
		first, err := GenerateAPIKey("research-portal")
		if err != nil {
			t.Fatalf("GenerateAPIKey: %v", err)
		}

		if !strings.HasPrefix(first, apiKeyPrefix) {
			t.Errorf("key %q missing %q prefix", first, apiKeyPrefix)
		}

		if len(first) != apiKeyLength {
			t.Errorf("key length = %d, want %d", len(first), apiKeyLength)
		}

		second, err := GenerateAPIKey("research-portal")
		if err != nil {
			t.Fatalf("GenerateAPIKey: %v", err)
		}

		if first == second {
			t.Error("two generated keys are identical")
		}
	})

	t.Run("rejects an empty client id", func(t *testing.T) {
		if _, err := GenerateAPIKey(""); !errors.Is(err, ErrClientIDEmpty) {
			t.Errorf("error = %v, want ErrClientIDEmpty", err)
		}
	})
}

func TestParseAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := "rootline_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"bare key", valid, valid, nil},
		{"bearer-prefixed key", "Bearer " + valid, valid, nil},
		{"foreign token", "invalid-key-format", "", ErrInvalidKeyFormat},
		{"truncated key", "rootline_ak_1234567890abcdef", "", ErrInvalidKeyLength},
		{"empty string", "", "", ErrKeyStringEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKey(tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseAPIKey(%q): %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("ParseAPIKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
