package crime

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and CSV-only deployments.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryRepository creates a new in-memory crime repository.
func NewInMemoryRepository(records ...Record) *InMemoryRepository {
	r := &InMemoryRepository{}
	r.records = append(r.records, records...)
	return r
}

// List returns a copy of the stored records.
func (r *InMemoryRepository) List(_ context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

// ReplaceAll replaces the stored records.
func (r *InMemoryRepository) ReplaceAll(_ context.Context, records []Record) (int64, error) {
	cpy := make([]Record, len(records))
	copy(cpy, records)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = cpy
	return int64(len(cpy)), nil
}

// Count returns the number of stored records.
func (r *InMemoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}
