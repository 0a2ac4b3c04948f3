package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockNotAcquired is returned when ctx ends before the lock is free
var ErrLockNotAcquired = errors.New("group lock not acquired")

// GroupLock serializes work per group: at most one holder per group ID at a
// time. With Redis the lock spans replicas; otherwise it is process-local.
type GroupLock struct {
	redis        *RedisClient
	ttl          time.Duration
	pollInterval time.Duration

	mu    sync.Mutex
	local map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewGroupLock creates a group lock. ttl bounds how long a crashed holder can
// keep a Redis lock; it should exceed the longest expected run.
func NewGroupLock(redisClient *RedisClient, ttl time.Duration) *GroupLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &GroupLock{
		redis:        redisClient,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
		local:        make(map[string]*lockEntry),
	}
}

// Lock blocks until groupID is free or ctx is done. The returned func releases
// the lock and is safe to call more than once.
func (l *GroupLock) Lock(ctx context.Context, groupID string) (func(), error) {
	if l.redis.IsEnabled() {
		unlock, err := l.lockRedis(ctx, groupID)
		if err == nil || ctx.Err() != nil {
			return unlock, err
		}
		slog.Warn("Redis group lock failed, using process-local lock", "group_id", groupID, "error", err)
	}
	return l.lockLocal(ctx, groupID)
}

func (l *GroupLock) lockLocal(ctx context.Context, groupID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.local[groupID]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.local[groupID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(groupID, entry)
		return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(groupID, entry)
		})
	}, nil
}

func (l *GroupLock) release(groupID string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.local, groupID)
	}
}

func (l *GroupLock) lockRedis(ctx context.Context, groupID string) (func(), error) {
	client := l.redis.GetClient()
	key := "lock:group:" + groupID
	token := uuid.NewString()

	for {
		ok, err := client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock failed: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released with a fresh context so a cancelled run still frees the lock.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, client, []string{key}, token).Err(); err != nil {
				slog.Warn("Failed to release group lock, it will expire", "group_id", groupID, "error", err)
			}
		})
	}, nil
}
