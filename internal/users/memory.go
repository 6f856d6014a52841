package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
)

// MemoryRepository keeps profiles and the global config in process memory.
// It backs tests and the no-Mongo development mode.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*models.Profile
	config   *models.GlobalConfig
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: make(map[string]*models.Profile)}
}

func (m *MemoryRepository) Get(ctx context.Context, uid string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[uid]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) Create(ctx context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UID]; ok {
		return ErrProfileExists
	}
	cp := *p
	m.profiles[p.UID] = &cp
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, uid string, upd models.ProfileUpdate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return ErrProfileNotFound
	}
	upd.Apply(p)
	p.UpdatedAt = at
	return nil
}

func (m *MemoryRepository) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return ErrProfileNotFound
	}
	p.LastLogin = at
	return nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) GetConfig(ctx context.Context) (*models.GlobalConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, nil
	}
	cp := *m.config
	return &cp, nil
}

func (m *MemoryRepository) SetConfig(ctx context.Context, upd models.ConfigUpdate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = &models.GlobalConfig{}
	}
	upd.Apply(m.config)
	m.config.UpdatedAt = at
	return nil
}
