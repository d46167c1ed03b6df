package repository

import (
	"context"
	"sync"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
)

// MemoryRepository keeps readings in process memory. Used by tests and by
// STORE_BACKEND=memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	readings []models.Reading
	nextID   uint64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (m *MemoryRepository) WithSession(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable("acquiring session", err)
	}
	return fn(memorySession{m})
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

type memorySession struct {
	m *MemoryRepository
}

func (s memorySession) Insert(_ context.Context, r models.Reading) (models.Reading, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r.ID = s.m.nextID
	s.m.nextID++
	s.m.readings = append(s.m.readings, r)
	return r, nil
}

// QueryAll scans in insertion order, which is ascending ID order.
func (s memorySession) QueryAll(_ context.Context, p filter.Predicate) ([]models.Reading, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []models.Reading
	for _, r := range s.m.readings {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
