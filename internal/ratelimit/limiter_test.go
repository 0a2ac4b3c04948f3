package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
)

func newLocalLimiter(t *testing.T, cfg Config) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(DisabledRedis(), cfg, monitoring.NewMetrics())
	t.Cleanup(rl.Close)
	return rl
}

func TestNewRedisClient_EmptyAddrIsDisabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisConfig{})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
	assert.Equal(t, false, client.GetPoolStats()["enabled"])
}

func TestAllowIP_FallbackBlocksAfterLimit(t *testing.T) {
	rl := newLocalLimiter(t, Config{IPLimitPerMin: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := rl.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := rl.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Zero(t, result.Remaining)

	other, err := rl.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "limits are per IP")
}

func TestAllowIP_ZeroLimitDisables(t *testing.T) {
	rl := newLocalLimiter(t, Config{})

	for i := 0; i < 100; i++ {
		result, err := rl.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
}

func TestWait_ThrottlesOutboundCalls(t *testing.T) {
	rl := newLocalLimiter(t, Config{OutboundPerSecond: 20, OutboundBurst: 2})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, rl.Wait(ctx, "hosting_api"))
	}
	// Two calls ride the burst, the next two wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWait_DisabledAndCancelled(t *testing.T) {
	off := newLocalLimiter(t, Config{})
	assert.NoError(t, off.Wait(context.Background(), "hosting_api"))

	rl := newLocalLimiter(t, Config{OutboundPerSecond: 0.001, OutboundBurst: 1})
	require.NoError(t, rl.Wait(context.Background(), "hosting_api"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "hosting_api"), "next token is far beyond the deadline")
}

func TestEvictIdle(t *testing.T) {
	rl := newLocalLimiter(t, Config{IPLimitPerMin: 5, IdleTTL: time.Minute})

	_, err := rl.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, rl.GetStats()["local_limiters"])

	assert.Zero(t, rl.evictIdle(time.Now()))
	assert.Equal(t, 1, rl.evictIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, rl.GetStats()["local_limiters"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := newLocalLimiter(t, Config{IPLimitPerMin: 2})
	router := gin.New()
	router.Use(rl.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		last = w
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "rate_limit")
}

func TestGroupLock_SerializesSameGroup(t *testing.T) {
	lock := NewGroupLock(DisabledRedis(), time.Minute)
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(ctx, "g-1")
			require.NoError(t, err)
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())

	lock.mu.Lock()
	defer lock.mu.Unlock()
	assert.Empty(t, lock.local, "entries are dropped once nobody holds or waits")
}

func TestGroupLock_DifferentGroupsDoNotBlock(t *testing.T) {
	lock := NewGroupLock(nil, 0)
	ctx := context.Background()

	unlockA, err := lock.Lock(ctx, "g-a")
	require.NoError(t, err)
	defer unlockA()

	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := lock.Lock(ctxB, "g-b")
	require.NoError(t, err)
	unlockB()
	unlockB()
}

func TestGroupLock_ContextCancelled(t *testing.T) {
	lock := NewGroupLock(DisabledRedis(), time.Minute)

	unlock, err := lock.Lock(context.Background(), "g-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lock.Lock(ctx, "g-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()

	again, err := lock.Lock(context.Background(), "g-1")
	require.NoError(t, err)
	again()
}
