// Package provider implements the outbound HTTP layer shared by all
// external-calendar adapters: request execution with the provider retry
// policy, throttling, and a uniform error taxonomy.
package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates throttling persisted across every retry attempt.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrAuthFailed indicates the provider rejected the token even after
	// a forced refresh. The integration needs re-authorization.
	ErrAuthFailed = errors.New("provider: authentication failed")

	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("provider: network error")
)

// APIError is a non-2xx provider response outside the retryable cases.
// Body is truncated for logging; it never reaches API clients verbatim.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: API error: status %d: %s", e.Status, e.Body)
}

// IsRetryableStatus reports whether a status code may succeed on replay
// of an idempotent request.
func IsRetryableStatus(status int) bool {
	switch status {
	case 502, 503, 504:
		return true
	}
	return false
}
