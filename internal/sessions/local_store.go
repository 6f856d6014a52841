package sessions

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Well-known local keys.
const (
	KeyCurrentSession = "currentSession"
	KeyEmailForSignIn = "emailForSignIn"
)

// LocalStore is the console's small key/value area for values that must
// survive a restart of this process but belong to this installation only.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RedisLocalStore keeps local keys under "local:<scope>:".
type RedisLocalStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLocalStore(client *redis.Client, scope string) *RedisLocalStore {
	if scope == "" {
		scope = "default"
	}
	return &RedisLocalStore{client: client, prefix: "local:" + scope + ":"}
}

func (s *RedisLocalStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisLocalStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *RedisLocalStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

type MemoryLocalStore struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{vals: map[string]string{}}
}

func (s *MemoryLocalStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[key]
	return v, ok, nil
}

func (s *MemoryLocalStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	return nil
}

func (s *MemoryLocalStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return nil
}
