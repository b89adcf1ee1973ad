package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters tracks live per-lecture attendance counts.
type Counters interface {
	Incr(ctx context.Context, lectureID string) (int64, error)
	Get(ctx context.Context, lectureID string) (count int64, ok bool, err error)
}

// RedisCounters keeps counts under attendance:live:<lecture> with a TTL so stale lectures age out.
type RedisCounters struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCounters builds counters expiring after ttl of inactivity.
func NewRedisCounters(client *redis.Client, ttl time.Duration) *RedisCounters {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCounters{client: client, ttl: ttl}
}

func liveKey(lectureID string) string { return "attendance:live:" + lectureID }

// Incr bumps the counter and refreshes its TTL.
func (c *RedisCounters) Incr(ctx context.Context, lectureID string) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, liveKey(lectureID))
	pipe.Expire(ctx, liveKey(lectureID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get reads the counter; ok is false when nothing was counted yet.
func (c *RedisCounters) Get(ctx context.Context, lectureID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, liveKey(lectureID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// MemoryCounters is the in-process variant used with the memory queue.
type MemoryCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounters creates empty counters.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counts: make(map[string]int64)}
}

// Incr bumps the counter.
func (c *MemoryCounters) Incr(_ context.Context, lectureID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[lectureID]++
	return c.counts[lectureID], nil
}

// Get reads the counter.
func (c *MemoryCounters) Get(_ context.Context, lectureID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[lectureID]
	return n, ok, nil
}
