package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(serverURL string, maxRetries uint64) *transport {
	return newTransport(TransportConfig{
		BaseURL:           serverURL,
		APIKey:            "test-key",
		RequestsPerSecond: 100,
		Burst:             10,
		MaxRetries:        maxRetries,
	}, nil)
}

// TestTransport_RetriesTransientFailures verifies that 429 and 5xx
// responses are retried and a later success wins.
func TestTransport_RetriesTransientFailures(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 2)

	var out map[string]bool
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, out["ok"])
}

// TestTransport_PermanentStatusFailsFast verifies that a 4xx other than 429
// is not retried.
func TestTransport_PermanentStatusFailsFast(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 3)

	var out map[string]bool
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)

	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), calls.Load())
}

// TestTransport_RetryBudgetExhausted verifies that persistent transient
// failures eventually surface as ErrRequestFailed.
func TestTransport_RetryBudgetExhausted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 1)

	var out map[string]bool
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)

	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(2), calls.Load(), "one attempt plus one retry")
}

// TestTransport_MalformedResponseIsPermanent verifies that an undecodable
// body is not retried, since replaying it cannot help.
func TestTransport_MalformedResponseIsPermanent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 3)

	var out map[string]bool
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)

	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), calls.Load())
}

// TestTransport_HealthTracksFailureStreak verifies the availability flip
// after repeated failures and the reset on the next success.
func TestTransport_HealthTracksFailureStreak(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var failing atomic.Bool

	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 1)

	var out map[string]bool

	for i := 0; i < healthFailureThreshold; i++ {
		assert.True(t, tr.healthy(), "healthy until the streak reaches the threshold")

		err := tr.getJSON(context.Background(), "/v1/test", nil, &out)
		require.Error(t, err)
	}

	assert.False(t, tr.healthy(), "unhealthy after repeated failures")

	failing.Store(false)

	// The transport itself still accepts calls; only registry selection
	// consults health. A success clears the streak.
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)
	require.NoError(t, err)
	assert.True(t, tr.healthy())
}

// TestTransport_SetsRequestHeaders verifies the Accept and API key headers
// reach the backend.
func TestTransport_SetsRequestHeaders(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tr := newTestTransport(server.URL, 1)

	var out map[string]bool
	err := tr.getJSON(context.Background(), "/v1/test", nil, &out)

	require.NoError(t, err)
}

// TestNewTransport_AppliesDefaults verifies zero-value config falls back to
// the documented defaults.
func TestNewTransport_AppliesDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tr := newTransport(TransportConfig{BaseURL: "http://example.test"}, nil)

	assert.Equal(t, uint64(defaultMaxRetries), tr.maxRetries)
	assert.Equal(t, defaultRequestTimeout, tr.client.Timeout)
	assert.True(t, tr.healthy())
}
