// Package connect owns the credential boundary: the connection-token
// registry, DSN construction, credential validation, schema reflection,
// and row fetching. The analysis engine never sees raw credentials,
// only opaque tokens resolved here.
package connect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrUnknownToken is returned when a token does not resolve.
var ErrUnknownToken = errors.New("unknown connection token")

// Store maps opaque tokens to DSNs. No expiry is imposed by the memory
// implementation; the Redis one accepts an optional TTL.
type Store interface {
	Register(ctx context.Context, dsn string) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
	Remove(ctx context.Context, token string) error
}

// MemoryStore is the in-process token store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Register(_ context.Context, dsn string) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	s.m[token] = dsn
	s.mu.Unlock()
	return token, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	dsn, ok := s.m[token]
	s.mu.RUnlock()
	if !ok {
		return "", ErrUnknownToken
	}
	return dsn, nil
}

func (s *MemoryStore) Remove(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.m, token)
	s.mu.Unlock()
	return nil
}

const redisKeyPrefix = "driftwatch:conn:"

// RedisStore keeps tokens in Redis so multiple instances share one
// registry. TTL of zero means tokens never expire, matching the memory
// store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Register(ctx context.Context, dsn string) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, redisKeyPrefix+token, dsn, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	dsn, err := s.client.Get(ctx, redisKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", ErrUnknownToken
	}
	if err != nil {
		return "", err
	}
	return dsn, nil
}

func (s *RedisStore) Remove(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKeyPrefix+token).Err()
}

// NewStore selects the Redis store when an address is configured and
// falls back to memory otherwise.
func NewStore(redisAddr string, ttl time.Duration) Store {
	if redisAddr != "" {
		return NewRedisStore(redis.NewClient(&redis.Options{Addr: redisAddr}), ttl)
	}
	return NewMemoryStore()
}
