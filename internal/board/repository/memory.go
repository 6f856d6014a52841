package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webaffe/webaffe/backend/console/internal/board"
)

var (
	ErrNotFound = errors.New("item not found")
)

// Repository persists board items per kind.
type Repository interface {
	Create(ctx context.Context, kind board.Kind, it *board.Item) (string, error)
	Get(ctx context.Context, kind board.Kind, id string) (*board.Item, error)
	// List returns items newest first.
	List(ctx context.Context, kind board.Kind) ([]*board.Item, error)
	UpdateStatus(ctx context.Context, kind board.Kind, id, status string, at time.Time) error
}

// MemoryRepo is a simple in-memory repository used when MongoDB is not
// configured and in unit tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[board.Kind]map[string]board.Item
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[board.Kind]map[string]board.Item)}
}

func (m *MemoryRepo) Create(ctx context.Context, kind board.Kind, it *board.Item) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	it.UpdatedAt = it.CreatedAt
	it.Kind = kind
	if m.store[kind] == nil {
		m.store[kind] = map[string]board.Item{}
	}
	m.store[kind][it.ID] = *it
	return it.ID, nil
}

func (m *MemoryRepo) Get(ctx context.Context, kind board.Kind, id string) (*board.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if it, ok := m.store[kind][id]; ok {
		return &it, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(ctx context.Context, kind board.Kind) ([]*board.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*board.Item, 0, len(m.store[kind]))
	for _, it := range m.store[kind] {
		cp := it
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) UpdateStatus(ctx context.Context, kind board.Kind, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.store[kind][id]
	if !ok {
		return ErrNotFound
	}
	it.Status = status
	it.UpdatedAt = at
	m.store[kind][id] = it
	return nil
}
