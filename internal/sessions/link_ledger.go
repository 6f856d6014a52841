package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LinkLedger records consumed sign-in link ids so a link works only once.
// With a nil Redis client it falls back to an in-process map.
type LinkLedger struct {
	client *redis.Client

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewLinkLedger(client *redis.Client) *LinkLedger {
	return &LinkLedger{client: client, seen: map[string]time.Time{}, now: time.Now}
}

// Consume marks id as used for ttl. It returns false when id was already used.
func (l *LinkLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	if l.client != nil {
		return l.client.SetNX(ctx, "consumed:link:"+id, "1", ttl).Result()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.seen {
		if now.After(exp) {
			delete(l.seen, k)
		}
	}
	if _, ok := l.seen[id]; ok {
		return false, nil
	}
	l.seen[id] = now.Add(ttl)
	return true, nil
}

// Release forgets id so the link can be used again.
func (l *LinkLedger) Release(ctx context.Context, id string) error {
	if l.client != nil {
		return l.client.Del(ctx, "consumed:link:"+id).Err()
	}
	l.mu.Lock()
	delete(l.seen, id)
	l.mu.Unlock()
	return nil
}
