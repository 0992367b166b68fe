// Package ratelimit bounds how often a member may request a voting token.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter counts attempts per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	max    int64
	length time.Duration
	now    func() time.Time
}

// bucket returns the window index and the time left in it.
func (w window) bucket() (int64, time.Duration) {
	now := w.now()
	secs := int64(w.length / time.Second)
	if secs <= 0 {
		secs = 1
	}
	idx := now.Unix() / secs
	end := time.Unix((idx+1)*secs, 0)
	return idx, end.Sub(now)
}

func (w window) decide(count int64, left time.Duration) Decision {
	if count > w.max {
		return Decision{Allowed: false, Count: count, RetryAfter: left}
	}
	return Decision{Allowed: true, Count: count}
}

// RedisLimiter uses INCR + EXPIRE so every replica shares the same counters.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	window
}

// NewRedisLimiter builds a limiter allowing max attempts per length.
func NewRedisLimiter(client *redis.Client, prefix string, max int, length time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, window: window{max: int64(max), length: length, now: time.Now}}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	idx, left := l.bucket()
	bucketKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, idx)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucketKey)
		pipe.Expire(ctx, bucketKey, l.length)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", l.prefix, err)
	}
	return l.decide(incr.Val(), left), nil
}

// MemoryLimiter is the single-process fallback.
type MemoryLimiter struct {
	mu      sync.Mutex
	counts  map[string]int64
	current int64
	window
}

// NewMemoryLimiter builds an in-process limiter.
func NewMemoryLimiter(max int, length time.Duration) *MemoryLimiter {
	return &MemoryLimiter{counts: map[string]int64{}, window: window{max: int64(max), length: length, now: time.Now}}
}

// WithClock overrides the time source, for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	idx, left := l.bucket()
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx != l.current {
		l.current = idx
		l.counts = map[string]int64{}
	}
	l.counts[key]++
	return l.decide(l.counts[key], left), nil
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
