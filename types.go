package fffauto

import (
	"github.com/jward/fffauto/internal/compiledb"
	"github.com/jward/fffauto/internal/fakes"
	"github.com/jward/fffauto/internal/store"
	"github.com/jward/fffauto/internal/syntax"
)

// Public type aliases for the internal types that appear in the Engine API.

type Record = fakes.Record
type Set = fakes.Set
type Layout = fakes.Layout
type CompileUnit = syntax.CompileUnit
type ProgressFunc = fakes.ProgressFunc
type SnapshotStore = store.SnapshotStore
type CompileFilter = compiledb.Filter

const (
	Paired     = fakes.Paired
	SingleFile = fakes.SingleFile
)

// NewMemoryStore returns an in-process SnapshotStore.
func NewMemoryStore() SnapshotStore {
	return store.NewMemoryStore()
}

// LoadCompileDatabase reads the compile_commands.json of buildPath, which
// names either the build directory or the database file, and returns the
// units selected by f.
func LoadCompileDatabase(buildPath string, f CompileFilter) ([]CompileUnit, error) {
	return compiledb.Load(compiledb.DatabasePath(buildPath), f)
}
