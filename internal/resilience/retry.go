package resilience

import (
	"context"
	stderrors "errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts" mapstructure:"max-attempts"`
	InitialDelay    time.Duration    `json:"initial_delay" mapstructure:"initial-delay"`
	MaxDelay        time.Duration    `json:"max_delay" mapstructure:"max-delay"`
	BackoffFactor   float64          `json:"backoff_factor" mapstructure:"backoff-factor"`
	JitterEnabled   bool             `json:"jitter_enabled" mapstructure:"jitter"`
	RetryableErrors func(error) bool `json:"-" mapstructure:"-"` // decides whether err is worth another attempt
}

// DefaultRetryConfig returns sensible defaults for retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		JitterEnabled:   true,
		RetryableErrors: errors.IsRetryableError,
	}
}

// HostingAPIRetryConfig is tuned for the code-hosting API, which answers
// secondary rate limits with multi-second Retry-After windows.
func HostingAPIRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 4
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.MaxDelay = 20 * time.Second
	return cfg
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func(ctx context.Context) error

// RetryAfterError is implemented by errors that carry a server supplied wait hint.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RetryWithConfig executes a function with retry logic using custom configuration
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.RetryableErrors == nil {
		config.RetryableErrors = errors.IsRetryableError
	}

	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !config.RetryableErrors(err) {
			break
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateDelay(config, attempt)

		var hinted RetryAfterError
		if stderrors.As(err, &hinted) && hinted.RetryAfter() > delay {
			delay = min(hinted.RetryAfter(), config.MaxDelay)
		}

		slog.Debug("Retrying after transient failure",
			"attempt", attempt+1,
			"max_attempts", config.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Retry executes a function with retry logic using default configuration
func Retry(ctx context.Context, fn RetryableFunc) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), fn)
}

// calculateDelay computes the delay for the next retry attempt
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	// Exponential backoff: initial_delay * (backoff_factor ^ attempt)
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	// Up to 10% jitter
	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}

	return delay
}
