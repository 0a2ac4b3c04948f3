package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	// IPLimitPerMin caps inbound API requests per client IP
	IPLimitPerMin int
	// OutboundPerSecond caps hosting API calls per throttle key. Zero disables throttling.
	OutboundPerSecond float64
	OutboundBurst     int
	// IdleTTL is how long an unused in-memory limiter is kept
	IdleTTL time.Duration
}

// DefaultConfig returns default rate limiting configuration. The outbound
// budget stays under GitHub's 5000 requests/hour authenticated quota.
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:     60,
		OutboundPerSecond: 1.25,
		OutboundBurst:     10,
		IdleTTL:           time.Hour,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits inbound requests per IP and throttles outbound hosting
// API calls. Redis makes the limits shared across replicas; without it each
// process keeps its own token buckets.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	mu    sync.Mutex
	local map[string]*localLimiter

	stop chan struct{}
	once sync.Once
}

var _ analysis.Throttle = (*RateLimiter)(nil)

// NewRateLimiter creates a rate limiter. redisClient and metrics may be nil.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = time.Hour
	}
	if config.OutboundBurst < 1 {
		config.OutboundBurst = 1
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		config:      config,
		metrics:     metrics,
		local:       make(map[string]*localLimiter),
		stop:        make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Info("Using in-memory rate limiting")
	}

	go rl.cleanupLoop()

	return rl
}

// AllowIP checks if an IP address may make another request this minute
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	if rl.config.IPLimitPerMin <= 0 {
		return &Result{Allowed: true}, nil
	}
	return rl.allow(ctx, "ratelimit:ip:"+ip, rl.config.IPLimitPerMin, time.Minute)
}

// Wait blocks until the throttle for key admits one more outbound call or ctx
// is done. Redis failures degrade to the local bucket.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if rl.config.OutboundPerSecond <= 0 {
		return ctx.Err()
	}

	if rl.redisLimiter != nil {
		err := rl.waitRedis(ctx, key)
		if err == nil || ctx.Err() != nil {
			return err
		}
		slog.Warn("Redis throttle failed, using local bucket", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	lim := rl.localLimiter("throttle:"+key, rate.Limit(rl.config.OutboundPerSecond), rl.config.OutboundBurst)
	return lim.Wait(ctx)
}

func (rl *RateLimiter) waitRedis(ctx context.Context, key string) error {
	// Expressed per minute so fractional per-second budgets survive the integer rate.
	perMin := int(rl.config.OutboundPerSecond * 60)
	if perMin < 1 {
		perMin = 1
	}
	limit := redis_rate.Limit{Rate: perMin, Burst: rl.config.OutboundBurst, Period: time.Minute}

	for {
		res, err := rl.redisLimiter.Allow(ctx, "throttle:"+key, limit)
		if err != nil {
			return fmt.Errorf("redis throttle check failed: %w", err)
		}
		if res.Allowed > 0 {
			return nil
		}

		timer := time.NewTimer(res.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// allow performs a non-blocking check using Redis or the local fallback
func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, limit, period)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) *Result {
	every := rate.Limit(float64(limit) / period.Seconds())
	lim := rl.localLimiter(key, every, limit)

	now := time.Now()
	result := &Result{
		Allowed: lim.AllowN(now, 1),
		Limit:   limit,
	}

	tokens := lim.TokensAt(now)
	if tokens > 0 {
		result.Remaining = int(tokens)
	}

	// Time until the bucket is full again.
	missing := float64(limit) - tokens
	result.ResetAt = now.Add(time.Duration(missing / float64(every) * float64(time.Second)))

	if !result.Allowed {
		r := lim.ReserveN(now, 1)
		result.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}

	return result
}

func (rl *RateLimiter) localLimiter(key string, every rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.local[key]
	if !ok {
		entry = &localLimiter{limiter: rate.NewLimiter(every, burst)}
		rl.local[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.IdleTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			if n := rl.evictIdle(now); n > 0 {
				slog.Debug("Evicted idle rate limiters", "count", n)
			}
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for key, entry := range rl.local {
		if now.Sub(entry.lastSeen) > rl.config.IdleTTL {
			delete(rl.local, key)
			n++
		}
	}
	return n
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	localCount := len(rl.local)
	rl.mu.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":  rl.redisClient.IsEnabled(),
		"local_limiters": localCount,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}
