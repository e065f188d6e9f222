package store

import (
	"context"
	"sync"

	"github.com/jward/fffauto/internal/fakes"
)

// MemoryStore keeps snapshots in memory. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string][]fakes.Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]fakes.Record)}
}

func (m *MemoryStore) Load(ctx context.Context, target string) (*fakes.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fakes.NewSet(cloneRecords(m.snapshots[target])...), nil
}

func (m *MemoryStore) Save(ctx context.Context, target string, set *fakes.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[target] = cloneRecords(set.Records())
	return nil
}
