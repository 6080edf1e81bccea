package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func breakerUnderTest(name string) *CircuitBreakerClient {
	cfg := DefaultCircuitBreakerConfig(name)
	cfg.Timeout = 100 * time.Millisecond
	return NewCircuitBreakerClient(New(Config{Timeout: 2 * time.Second, MaxConnsPerHost: 4}), cfg, quietLogger())
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func head(t *testing.T, cb *CircuitBreakerClient, target string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodHead, target, http.NoBody)
	require.NoError(t, err)
	return cb.Do(context.Background(), req)
}

func TestCircuitBreaker_PassesHealthyResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	defer srv.Close()

	cb := breakerUnderTest("cb-healthy")
	resp, err := head(t, cb, srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, gobreaker.StateClosed, cb.State(hostOf(t, srv.URL)))
	assert.Equal(t, 1, cb.Hosts())
}

func TestCircuitBreaker_ServerErrorsAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := head(t, breakerUnderTest("cb-5xx"), srv.URL)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestCircuitBreaker_OpensPerHost(t *testing.T) {
	var deadHits atomic.Int32
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		deadHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer alive.Close()

	cb := breakerUnderTest("cb-per-host")
	for i := 0; i < 3; i++ {
		_, err := head(t, cb, dead.URL)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State(hostOf(t, dead.URL)))

	_, err := head(t, cb, dead.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), deadHits.Load(), "open circuit must not reach the host")

	resp, err := head(t, cb, alive.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State(hostOf(t, alive.URL)))
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cb := breakerUnderTest("cb-recover")
	for i := 0; i < 3; i++ {
		_, _ = head(t, cb, srv.URL)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State(hostOf(t, srv.URL)))

	time.Sleep(150 * time.Millisecond)
	failing.Store(false)

	resp, err := head(t, cb, srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State(hostOf(t, srv.URL)))
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cb := breakerUnderTest("cb-4xx")
	for i := 0; i < 5; i++ {
		resp, err := head(t, cb, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State(hostOf(t, srv.URL)))
}

func TestCircuitBreaker_HostTableIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	cfg := DefaultCircuitBreakerConfig("cb-bounded")
	cfg.MaxHosts = 1
	cb := NewCircuitBreakerClient(New(DefaultConfig()), cfg, quietLogger())

	resp, err := head(t, cb, srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, _ = head(t, cb, "http://127.0.0.1:1/missing.png")
	assert.Equal(t, 1, cb.Hosts())
	assert.Equal(t, gobreaker.StateClosed, cb.State("unknown.example"))
}

func TestCircuitBreaker_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequest(http.MethodHead, srv.URL, http.NoBody)
	require.NoError(t, err)
	_, err = breakerUnderTest("cb-ctx").Do(ctx, req)
	require.Error(t, err)
}
