package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
)

const (
	// maxRateLimitAttempts bounds the 429 retry loop: the initial
	// request plus two throttled retries.
	maxRateLimitAttempts = 3

	// defaultRetryAfter applies when a 429 carries no usable
	// Retry-After header.
	defaultRetryAfter = 5 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is
	// kept for diagnostics.
	maxErrorBodyBytes = 2048
)

// TokenSource supplies bearer tokens for outbound provider calls.
// Refresh must return a token minted after the call, not a cached one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Request is one outbound provider call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// requestPacer is the throttling seam between Client and RateLimiter.
type requestPacer interface {
	Wait(ctx context.Context) error
	RecordBackoff(retryAfter time.Duration)
}

// Client executes provider requests with the shared retry policy:
// bounded waits on 429, a single forced-refresh retry on 401, and one
// replay of idempotent requests on transient gateway failures.
type Client struct {
	httpClient *http.Client
	limiter    requestPacer
}

// NewClient builds a provider client with pooled transport and the
// given per-request timeout.
func NewClient(timeout time.Duration) (*Client, error) {
	hc, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(newPooledTransport()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider HTTP client: %w", err)
	}

	return &Client{
		httpClient: hc,
		limiter:    NewRateLimiter(),
	}, nil
}

// newPooledTransport returns a transport tuned for steady traffic to a
// small set of provider hosts.
func newPooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Do executes the request under the retry policy and returns the
// response body of the first 2xx response.
func (c *Client) Do(ctx context.Context, tokens TokenSource, req *Request) ([]byte, error) {
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	refreshed := false
	rateLimitAttempts := 0
	gatewayRetried := false

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, body, err := c.send(ctx, req, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimitAttempts++
			c.limiter.RecordBackoff(parseRetryAfter(resp.Header.Get("Retry-After")))
			if rateLimitAttempts >= maxRateLimitAttempts {
				return nil, ErrRateLimited
			}

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, ErrAuthFailed
			}
			refreshed = true
			token, err = tokens.Refresh(ctx)
			if err != nil {
				return nil, err
			}

		case IsRetryableStatus(resp.StatusCode) && req.Method == http.MethodGet && !gatewayRetried:
			// One replay only, and only for reads: mutating verbs must
			// not be repeated after an ambiguous gateway failure.
			gatewayRetried = true

		default:
			return nil, &APIError{Status: resp.StatusCode, Body: truncate(body)}
		}
	}
}

func (c *Client) send(ctx context.Context, req *Request, token string) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// parseRetryAfter reads a Retry-After header in delta-seconds form.
// Absent or malformed values fall back to the policy default.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return defaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return defaultRetryAfter
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}
