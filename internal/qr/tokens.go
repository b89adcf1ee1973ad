package qr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps short-lived rotating tokens that resolve to a lecture.
type TokenStore interface {
	Put(ctx context.Context, token, lectureID string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (lectureID string, ok bool, err error)
}

// RedisTokens stores tokens as keys with a TTL.
type RedisTokens struct {
	client *redis.Client
	prefix string
}

// NewRedisTokens builds a token store using SET EX / GET.
func NewRedisTokens(client *redis.Client, prefix string) *RedisTokens {
	if prefix == "" {
		prefix = "attendance:qr:"
	}
	return &RedisTokens{client: client, prefix: prefix}
}

// Put stores token for ttl.
func (s *RedisTokens) Put(ctx context.Context, token, lectureID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+token, lectureID, ttl).Err()
}

// Lookup resolves a token; expired tokens are simply absent.
func (s *RedisTokens) Lookup(ctx context.Context, token string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// MemoryTokens is a process-local token store for dev/testing.
type MemoryTokens struct {
	mu      sync.Mutex
	entries map[string]memoryToken
	now     func() time.Time
}

type memoryToken struct {
	lectureID string
	expiresAt time.Time
}

// NewMemoryTokens creates an empty in-memory store.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{entries: make(map[string]memoryToken), now: time.Now}
}

// Put stores token for ttl and drops entries that have already expired.
func (s *MemoryTokens) Put(_ context.Context, token, lectureID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[token] = memoryToken{lectureID: lectureID, expiresAt: now.Add(ttl)}
	return nil
}

// Lookup resolves a token, dropping it once expired.
func (s *MemoryTokens) Lookup(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, token)
		return "", false, nil
	}
	return e.lectureID, true, nil
}
