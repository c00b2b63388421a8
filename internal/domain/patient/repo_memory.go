package patient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	order   []string
	nowFunc func() time.Time
}

// NewMemoryRepo returns a process-local store. Contents are lost on exit.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		byID:    make(map[string]*Record),
		nowFunc: time.Now,
	}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.NationalID == r.NationalID {
			return ErrConflict
		}
	}

	now := m.nowFunc().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.byID[r.ID] = r.Clone()
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *memoryRepo) Update(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[r.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range m.byID {
		if id != r.ID && other.NationalID == r.NationalID {
			return ErrConflict
		}
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = m.nowFunc().UTC()
	m.byID[r.ID] = r.Clone()
	return nil
}

func (m *memoryRepo) Find(_ context.Context, f Filter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.order))
	for _, id := range m.order {
		r := m.byID[id]
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}
