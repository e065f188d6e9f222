package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/fffauto/internal/fakes"
)

// CacheFileName is the snapshot database kept in each output directory.
const CacheFileName = ".autofakes_cache"

// ErrCorruptSnapshot is returned by Load when stored rows do not match
// their signature hash or cannot be decoded.
var ErrCorruptSnapshot = errors.New("store: corrupt snapshot")

// CachePath returns the snapshot database path for an output directory.
func CachePath(outputDir string) string {
	return filepath.Join(outputDir, CacheFileName)
}

// Store is the SQLite snapshot store.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the snapshot database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the snapshot table. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS fake_records (
  target          TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  return_type     TEXT NOT NULL,
  arg_types       TEXT NOT NULL,
  signature_hash  TEXT NOT NULL,
  PRIMARY KEY (target, ordinal)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fake_records_name ON fake_records(target, name);
`

// Load returns the snapshot saved for target, or an empty set when none
// was saved.
func (s *Store) Load(ctx context.Context, target string) (*fakes.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, return_type, arg_types, signature_hash
		   FROM fake_records WHERE target = ? ORDER BY ordinal`, target)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", target, err)
	}
	defer rows.Close()

	set := fakes.NewSet()
	for rows.Next() {
		var r fakes.Record
		var argsJSON, hash string
		if err := rows.Scan(&r.Name, &r.ReturnType, &argsJSON, &hash); err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", target, err)
		}
		args, err := unmarshalArgTypes(argsJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: record %q: %v", ErrCorruptSnapshot, target, r.Name, err)
		}
		r.ArgTypes = args
		if hash != ComputeSignatureHash(r) {
			return nil, fmt.Errorf("%w: %s: record %q hash mismatch", ErrCorruptSnapshot, target, r.Name)
		}
		set.Put(r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", target, err)
	}
	return set, nil
}

// Save replaces the snapshot of target with set in one transaction.
func (s *Store) Save(ctx context.Context, target string, set *fakes.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot %s: begin: %w", target, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fake_records WHERE target = ?`, target); err != nil {
		return fmt.Errorf("save snapshot %s: clear: %w", target, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fake_records (target, ordinal, name, return_type, arg_types, signature_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save snapshot %s: prepare: %w", target, err)
	}
	defer stmt.Close()

	for i, r := range set.Records() {
		_, err := stmt.ExecContext(ctx, target, i, r.Name, r.ReturnType,
			marshalArgTypes(r.ArgTypes), ComputeSignatureHash(r))
		if err != nil {
			return fmt.Errorf("save snapshot %s: record %q: %w", target, r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot %s: commit: %w", target, err)
	}
	return nil
}
