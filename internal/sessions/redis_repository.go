package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each session as JSON under prefix+token. The key
// expires with the session, so Redis drops abandoned sign-ins on its own.
type RedisRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRepository defaults prefix to "session:".
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Create refuses to replace an existing token.
func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl < time.Second {
		return fmt.Errorf("session %s already expired at %s", s.UID, s.ExpiresAt.Format(time.RFC3339))
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	err = r.client.SetArgs(ctx, r.prefix+s.Token, b, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrSessionExists
	}
	return err
}

func (r *RedisRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	key := r.prefix + token
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	if s.expired(r.now()) {
		_ = r.client.Del(ctx, key).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.prefix+token).Err()
}
