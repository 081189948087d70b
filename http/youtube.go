package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// YouTubeRateLimitDetector recognises rate-limit signals in Data API responses.
type YouTubeRateLimitDetector struct{}

func NewYouTubeRateLimitDetector() *YouTubeRateLimitDetector {
	return &YouTubeRateLimitDetector{}
}

// IsRateLimited reports 429 and 503 responses, and 403 responses that carry
// rate-limit headers. A bare 403 is left alone: the Data API also uses it for
// forbidden resources and disabled comment threads.
func (d *YouTubeRateLimitDetector) IsRateLimited(statusCode int, header http.Header) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		return true
	}

	if statusCode == http.StatusForbidden {
		if header.Get("Retry-After") != "" {
			return true
		}
		if header.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
	}

	return false
}

// RetryAfter extracts a Retry-After hint, as seconds or an HTTP date.
func (d *YouTubeRateLimitDetector) RetryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// IsServerError checks if status code is a server error (5xx).
func IsServerError(statusCode int) bool {
	return statusCode >= 500 && statusCode < 600
}
