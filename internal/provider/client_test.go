package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePacer records backoffs and never blocks.
type fakePacer struct {
	waits    int
	backoffs []time.Duration
}

func (p *fakePacer) Wait(ctx context.Context) error { p.waits++; return ctx.Err() }
func (p *fakePacer) RecordBackoff(d time.Duration)  { p.backoffs = append(p.backoffs, d) }

// fakeTokens serves a fixed token and counts forced refreshes.
type fakeTokens struct {
	token     string
	refreshed int
	refreshFn func(ctx context.Context) (string, error)
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) { return f.token, nil }

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.refreshed++
	if f.refreshFn != nil {
		return f.refreshFn(ctx)
	}
	return f.token + "-refreshed", nil
}

func newTestClient(t *testing.T) (*Client, *fakePacer) {
	t.Helper()
	c, err := NewClient(5 * time.Second)
	require.NoError(t, err)
	pacer := &fakePacer{}
	c.limiter = pacer
	return c, pacer
}

func TestClient_Do_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, pacer := newTestClient(t)
	body, err := c.Do(context.Background(), &fakeTokens{token: "at-1"}, &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "Bearer at-1", gotAuth)
	assert.Equal(t, 1, pacer.waits)
}

func TestClient_Do_RateLimit(t *testing.T) {
	t.Run("Recovers within attempt budget", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c, pacer := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, pacer.backoffs)
	})

	t.Run("Persistent throttling yields ErrRateLimited", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, maxRateLimitAttempts, attempts)
	})

	t.Run("Missing Retry-After falls back to default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c, pacer := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		assert.ErrorIs(t, err, ErrRateLimited)
		require.NotEmpty(t, pacer.backoffs)
		assert.Equal(t, defaultRetryAfter, pacer.backoffs[0])
	})
}

func TestClient_Do_Unauthorized(t *testing.T) {
	t.Run("Forced refresh then success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer stale" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		tokens := &fakeTokens{token: "stale"}
		_, err := c.Do(context.Background(), tokens, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, tokens.refreshed)
	})

	t.Run("Second 401 yields ErrAuthFailed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		tokens := &fakeTokens{token: "stale"}
		_, err := c.Do(context.Background(), tokens, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		assert.ErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, 1, tokens.refreshed, "exactly one forced refresh")
	})

	t.Run("Refresh failure surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		tokens := &fakeTokens{
			token:     "stale",
			refreshFn: func(ctx context.Context) (string, error) { return "", ErrAuthFailed },
		}
		_, err := c.Do(context.Background(), tokens, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		assert.ErrorIs(t, err, ErrAuthFailed)
	})
}

func TestClient_Do_GatewayErrors(t *testing.T) {
	t.Run("GET replays once on 503", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("Persistent 503 on GET becomes APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	})

	t.Run("POST is never replayed on 503", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c, _ := newTestClient(t)
		_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
			Method: http.MethodPost,
			URL:    server.URL,
			Body:   []byte(`{"subject":"x"}`),
		})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 1, attempts)
	})
}

func TestClient_Do_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"accessDenied"}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t)
	_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Body, "accessDenied")
}

func TestClient_Do_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	c, _ := newTestClient(t)
	_, err := c.Do(context.Background(), &fakeTokens{token: "at"}, &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("-3"))

	// RFC 9110 also allows an HTTP-date.
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	wait := parseRetryAfter(future)
	assert.Greater(t, wait, 8*time.Second)
	assert.LessOrEqual(t, wait, 10*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(past))
}

func TestRateLimiter_Backoff(t *testing.T) {
	limiter := NewRateLimiterWithConfig(RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000})

	assert.True(t, limiter.Allow())

	limiter.RecordBackoff(200 * time.Millisecond)
	assert.False(t, limiter.Allow(), "backoff window blocks requests")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx), "wait honors context during backoff")

	time.Sleep(250 * time.Millisecond)
	assert.True(t, limiter.Allow(), "backoff window clears")
}
