package http

import (
	"net/http"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests.
	Timeout time.Duration
	// UserAgent is set on requests that do not carry one.
	UserAgent string
	// RateLimiter configures the shared request budget.
	RateLimiter RateLimiterConfig
	// CircuitBreaker configures fail-fast behavior on repeated failures.
	CircuitBreaker CircuitBreakerConfig
	// Transport configures connection pooling.
	Transport TransportConfig
}

// TransportConfig configures the underlying net/http transport.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		UserAgent:      "ytharvest/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Client bundles an *http.Client whose transport enforces the shared
// budget, together with the limiter and breaker behind it.
type Client struct {
	HTTP    *http.Client
	Limiter *RateLimiter
	Breaker *CircuitBreaker
}

// New creates a client. The returned Client owns its idle connections and
// should be closed by the process that created it.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Transport.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.Transport.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
	}

	limiter := NewRateLimiter(cfg.RateLimiter)
	breaker := NewCircuitBreaker(cfg.CircuitBreaker)

	return &Client{
		HTTP: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: NewTransport(base, limiter, breaker, cfg.UserAgent),
		},
		Limiter: limiter,
		Breaker: breaker,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.HTTP != nil {
		c.HTTP.CloseIdleConnections()
	}
	return nil
}

// Transport is an http.RoundTripper that gates every request through the
// circuit breaker and the shared rate limiter. It never retries: responses,
// including error statuses, are returned unchanged so the API client can
// decode them.
type Transport struct {
	base      http.RoundTripper
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	detector  *YouTubeRateLimitDetector
	userAgent string

	// OnRateLimit, if set, observes every rate-limit response.
	OnRateLimit func(*RateLimitError)
}

func NewTransport(base http.RoundTripper, limiter *RateLimiter, breaker *CircuitBreaker, userAgent string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		limiter:   limiter,
		breaker:   breaker,
		detector:  NewYouTubeRateLimitDetector(),
		userAgent: userAgent,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if ctx.Err() == nil {
			t.breaker.RecordFailure()
		}
		return nil, err
	}

	switch {
	case t.detector.IsRateLimited(resp.StatusCode, resp.Header):
		backoff := t.limiter.RecordRateLimitError(t.detector.RetryAfter(resp.Header))
		t.breaker.RecordFailure()
		if t.OnRateLimit != nil {
			t.OnRateLimit(&RateLimitError{StatusCode: resp.StatusCode, RetryAfter: backoff})
		}
	case IsServerError(resp.StatusCode):
		t.breaker.RecordFailure()
	default:
		t.limiter.RecordSuccess()
		t.breaker.RecordSuccess()
	}

	return resp, nil
}
