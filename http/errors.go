package http

import (
	"fmt"
	"time"
)

// RateLimitError describes a rate-limit response observed by the Transport.
// The response itself is still returned to the caller; this value is only
// handed to the OnRateLimit hook.
type RateLimitError struct {
	// StatusCode is the HTTP status code (429, 403, or 503).
	StatusCode int
	// RetryAfter is the backoff the limiter will honor.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}
