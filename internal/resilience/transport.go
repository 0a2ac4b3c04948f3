package resilience

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PoolConfig sizes the shared HTTP transport used for hosting API calls
type PoolConfig struct {
	MaxIdle        int           `mapstructure:"max-idle"`
	MaxActive      int           `mapstructure:"max-active"`
	IdleTimeout    time.Duration `mapstructure:"idle-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// DefaultPoolConfig returns sensible pool defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:        10,
		MaxActive:      20,
		IdleTimeout:    30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// BreakerTransport is an http.RoundTripper that routes every request through
// a circuit breaker. Retryable status codes count as breaker failures but are
// still handed back to the caller as responses.
type BreakerTransport struct {
	base    http.RoundTripper
	breaker *CircuitBreaker

	requests atomic.Int64
	failures atomic.Int64
	inFlight atomic.Int64
}

// NewBreakerTransport wraps base. A nil base uses a pooled http.Transport sized by cfg.
func NewBreakerTransport(base http.RoundTripper, cfg PoolConfig, breaker *CircuitBreaker) *BreakerTransport {
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          cfg.MaxIdle,
			MaxConnsPerHost:       cfg.MaxActive,
			MaxIdleConnsPerHost:   max(cfg.MaxIdle/2, 1),
			IdleConnTimeout:       cfg.IdleTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.RequestTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}
	return &BreakerTransport{base: base, breaker: breaker}
}

// RoundTrip implements http.RoundTripper
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests.Add(1)
	t.inFlight.Add(1)
	defer t.inFlight.Add(-1)

	var resp *http.Response
	start := time.Now()

	err := t.breaker.CallContext(req.Context(), func() error {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return err
		}
		resp = r
		if isRetryableHTTPStatus(r.StatusCode) {
			return NewHTTPError(r.StatusCode, r.Status)
		}
		return nil
	})

	duration := time.Since(start)
	if err != nil && req.Context().Err() == nil {
		t.failures.Add(1)
	}

	if resp != nil {
		slog.Debug("Request completed",
			"host", req.URL.Host,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds())
		return resp, nil
	}

	slog.Warn("Request failed",
		"host", req.URL.Host,
		"path", req.URL.Path,
		"error", err,
		"duration_ms", duration.Milliseconds())
	return nil, err
}

// Stats returns transport statistics
func (t *BreakerTransport) Stats() map[string]interface{} {
	return map[string]interface{}{
		"requests":              t.requests.Load(),
		"failures":              t.failures.Load(),
		"in_flight":             t.inFlight.Load(),
		"circuit_breaker_state": t.breaker.State().String(),
	}
}

// CloseIdleConnections closes idle connections held by the underlying transport
func (t *BreakerTransport) CloseIdleConnections() {
	type idleCloser interface{ CloseIdleConnections() }
	if c, ok := t.base.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

// isRetryableHTTPStatus checks if an HTTP status code should trigger a retry
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableHTTPStatus is the exported form of the status classification
func IsRetryableHTTPStatus(statusCode int) bool {
	return isRetryableHTTPStatus(statusCode)
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return e.Status
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     status,
	}
}
