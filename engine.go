package fffauto

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/fffauto/hooks"
	"github.com/jward/fffauto/internal/fakes"
	"github.com/jward/fffauto/internal/merge"
	"github.com/jward/fffauto/internal/runtime"
	"github.com/jward/fffauto/internal/store"
	"github.com/jward/fffauto/internal/syntax"
)

// BuiltinHookPrefix selects an embedded hook in WithHook, as in
// "builtin:drop_reserved".
const BuiltinHookPrefix = "builtin:"

// Engine runs the fake generation pipeline: parsing, matching, signature
// resolution, the optional record hook, the cache diff and the write.
type Engine struct {
	parser    *syntax.Parser
	matcher   *fakes.Matcher
	hook      *runtime.Hook
	snapshots store.SnapshotStore
	progress  fakes.ProgressFunc
	logger    *zap.Logger
	layout    fakes.Layout

	pattern   string
	fullMatch bool
	hookPath  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPattern restricts fakes to symbol names matching pattern. The pattern
// is anchored at the start of the name.
func WithPattern(pattern string) Option {
	return func(e *Engine) {
		e.pattern = pattern
	}
}

// WithFullMatch anchors the pattern at both ends of the name.
func WithFullMatch(full bool) Option {
	return func(e *Engine) {
		e.fullMatch = full
	}
}

// WithSnapshotStore replaces the SQLite cache next to the output with s.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = s
	}
}

// WithHook runs the Risor script at path over every resolved record. A
// path starting with BuiltinHookPrefix names an embedded hook.
func WithHook(path string) Option {
	return func(e *Engine) {
		e.hookPath = path
	}
}

// WithProgress reports the number of matches of every parsed unit.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithLogger sets the logger used by the Engine and the packages it drives.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLayout selects paired (header + source) or single-file output.
func WithLayout(l Layout) Option {
	return func(e *Engine) {
		e.layout = l
	}
}

// New creates an Engine. It fails when the pattern does not compile or the
// hook script cannot be read.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	m, err := fakes.NewMatcher(e.pattern, fakes.FullMatch(e.fullMatch))
	if err != nil {
		return nil, fmt.Errorf("fffauto: %w", err)
	}
	e.matcher = m
	e.parser = syntax.NewParser(syntax.WithLogger(e.logger.Named("syntax")))

	if e.hookPath != "" {
		h, err := loadHook(e.hookPath, e.logger)
		if err != nil {
			return nil, fmt.Errorf("fffauto: loading hook: %w", err)
		}
		e.hook = h
	}
	return e, nil
}

func loadHook(path string, logger *zap.Logger) (*runtime.Hook, error) {
	if name, ok := strings.CutPrefix(path, BuiltinHookPrefix); ok {
		return runtime.LoadHookFS(hooks.FS, name+".risor", runtime.WithLogger(logger))
	}
	return runtime.LoadHook(path, runtime.WithLogger(logger))
}

// Extract parses units and returns the resolved record of every matching
// symbol, in first-seen order, after the hook ran.
func (e *Engine) Extract(ctx context.Context, units []CompileUnit) (*Set, error) {
	set, err := e.matcher.Match(ctx, e.parser, units, e.progress)
	if err != nil {
		return nil, err
	}
	e.logger.Info("found unique fakes", zap.Int("count", set.Len()), zap.Int("units", len(units)))

	if e.hook == nil {
		return set, nil
	}
	set, err = e.hook.ApplyAll(ctx, set)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("hook applied", zap.Int("count", set.Len()))
	return set, nil
}

// Output describes where and how Generate writes.
type Output struct {
	// Base is the output path without extension.
	Base string

	Force   bool
	Merge   bool
	DryRun  bool
	NoCache bool
}

// SourcePath returns the path of the generated source file.
func (o Output) SourcePath() string { return o.Base + ".cc" }

// HeaderPath returns the path of the generated header.
func (o Output) HeaderPath() string { return o.Base + ".h" }

// Target returns the cache key of the output.
func (o Output) Target() string { return filepath.Base(o.Base) }

// Result summarizes a Generate run.
type Result struct {
	// Found is the number of records extracted from the units.
	Found int
	// Fakes holds the records that were (or in a dry run would be) written.
	Fakes *Set
	// Written lists the files replaced on disk.
	Written []string
}

// New returns the number of records written.
func (r *Result) New() int { return r.Fakes.Len() }

// Generate extracts records from units, drops the ones the cache already
// knows, and writes the rest. An empty diff is not an error: nothing is
// written and Result.Fakes is empty. The cache is only updated once the
// files were written, or when there was nothing to write. A dry run
// computes the diff but neither writes nor updates the cache.
func (e *Engine) Generate(ctx context.Context, units []CompileUnit, out Output) (*Result, error) {
	if out.Base == "" {
		return nil, errors.New("fffauto: empty output name")
	}
	if out.Force && out.Merge {
		return nil, merge.ErrConflictingStrategy
	}

	found, err := e.Extract(ctx, units)
	if err != nil {
		return nil, err
	}
	res := &Result{Found: found.Len(), Fakes: found}

	var cache *store.Cache
	if !out.NoCache {
		snapshots, closeFn := e.snapshotStore(out)
		defer closeFn()
		cache = &store.Cache{Snapshots: snapshots, Logger: e.logger.Named("cache")}

		res.Fakes, err = cache.Compute(ctx, out.Target(), found)
		if err != nil {
			return nil, err
		}
		e.logger.Info("found not cached fakes", zap.Int("count", res.Fakes.Len()))
	}

	if res.Fakes.Len() == 0 {
		e.logger.Info("nothing to do")
		e.commit(ctx, cache, out, found)
		return res, nil
	}
	if out.DryRun {
		return res, nil
	}

	plans := e.plans(out, res.Fakes)
	w := merge.Writer{Force: out.Force, Merge: out.Merge, Logger: e.logger.Named("merge")}
	if err := w.Write(plans...); err != nil {
		return nil, err
	}
	for _, p := range plans {
		res.Written = append(res.Written, p.Path)
	}
	e.commit(ctx, cache, out, found)
	return res, nil
}

// commit records current as the snapshot of out. A failed save is logged,
// not returned.
func (e *Engine) commit(ctx context.Context, cache *store.Cache, out Output, current *Set) {
	if cache == nil {
		return
	}
	if err := cache.Commit(ctx, out.Target(), current); err != nil {
		e.logger.Warn("fake cache not updated", zap.Error(err))
	}
}

// plans builds the write plans of set. The source comes first.
func (e *Engine) plans(out Output, set *Set) []merge.Plan {
	em := fakes.Emitter{Layout: e.layout, HeaderName: filepath.Base(out.HeaderPath())}

	plans := []merge.Plan{{
		Path:  out.SourcePath(),
		Fresh: []byte(em.Source(set)),
		Splices: []merge.Splice{
			{Anchor: fakes.MergeToken, Fragments: []string{em.Definitions(set)}},
		},
	}}
	if e.layout == fakes.SingleFile {
		return plans
	}
	return append(plans, merge.Plan{
		Path:  out.HeaderPath(),
		Fresh: []byte(em.Header(set)),
		Splices: []merge.Splice{
			{Anchor: fakes.MergeToken, Fragments: []string{em.Declarations(set)}},
			{Anchor: fakes.FakeListAnchor, Fragments: []string{em.ListEntries(set)}},
		},
	})
}

// snapshotStore returns the store behind the cache of out: the injected
// one, or the SQLite cache in the output directory. A dry run gets a view
// that discards saves.
func (e *Engine) snapshotStore(out Output) (store.SnapshotStore, func()) {
	snapshots, closeFn := e.snapshots, func() {}
	if snapshots == nil {
		snapshots, closeFn = e.openCache(out)
	}
	if out.DryRun {
		snapshots = readOnly{snapshots}
	}
	return snapshots, closeFn
}

// openCache opens the SQLite cache in the output directory. When it cannot
// be opened, or a dry run finds none, an empty in-memory store stands in.
func (e *Engine) openCache(out Output) (store.SnapshotStore, func()) {
	path := store.CachePath(filepath.Dir(out.Base))
	if out.DryRun {
		if _, err := os.Stat(path); err != nil {
			return store.NewMemoryStore(), func() {}
		}
	}
	s, err := store.Open(path)
	if err != nil {
		e.logger.Warn("fake cache unavailable", zap.String("path", path), zap.Error(err))
		return store.NewMemoryStore(), func() {}
	}
	return s, func() {
		if err := s.Close(); err != nil {
			e.logger.Warn("closing fake cache", zap.String("path", path), zap.Error(err))
		}
	}
}

// readOnly discards saves.
type readOnly struct {
	store.SnapshotStore
}

func (readOnly) Save(context.Context, string, *fakes.Set) error { return nil }
