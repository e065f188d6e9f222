package store

import (
	"context"

	"github.com/jward/fffauto/internal/fakes"
)

// SnapshotStore persists the record set of the last run per output target.
// Both Store (SQLite) and MemoryStore implement it.
type SnapshotStore interface {
	// Load returns the saved set for target; an empty set when nothing was
	// saved.
	Load(ctx context.Context, target string) (*fakes.Set, error)
	// Save replaces the saved set for target.
	Save(ctx context.Context, target string, set *fakes.Set) error
}

// Compile-time checks.
var (
	_ SnapshotStore = (*Store)(nil)
	_ SnapshotStore = (*MemoryStore)(nil)
)
