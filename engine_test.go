package fffauto

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jward/fffauto/internal/fakes"
	"github.com/jward/fffauto/internal/merge"
	"github.com/jward/fffauto/internal/store"
)

func TestMain(m *testing.M) {
	// The regexp2 match timeout runs a clock goroutine that outlives the
	// tests by about a second.
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/dlclark/regexp2.runClock"))
}

const halHeader = `#ifndef HAL_H
#define HAL_H
int hal_read(int channel);
void hal_write(int channel, const char *data);
#endif
`

const mainSource = `#include "hal.h"

static int helper(int x) { return x; }

int main(void) {
    hal_write(1, "x");
    return helper(hal_read(2));
}
`

// writeProject writes a small C project and returns its directory and
// compile unit.
func writeProject(t *testing.T, source string) (string, []CompileUnit) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hal.h"), []byte(halHeader), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte(source), 0o644))
	return dir, []CompileUnit{{File: filepath.Join(dir, "main.c"), Directory: dir}}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// New / Extract
// =============================================================================

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(WithPattern("hal_("))
	assert.ErrorContains(t, err, "compiling pattern")
}

func TestNew_MissingHook(t *testing.T) {
	t.Parallel()

	_, err := New(WithHook(filepath.Join(t.TempDir(), "missing.risor")))
	assert.ErrorContains(t, err, "loading hook")
}

func TestExtract_PatternAndOrder(t *testing.T) {
	t.Parallel()

	_, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))

	set, err := e.Extract(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_read", "hal_write"}, set.Names())

	write, ok := set.Get("hal_write")
	require.True(t, ok)
	assert.Equal(t, Record{Name: "hal_write", ReturnType: "void", ArgTypes: []string{"int", "const char *"}}, write)
}

func TestLoadCompileDatabase(t *testing.T) {
	t.Parallel()

	dir, _ := writeProject(t, mainSource)
	db := `[{"directory": "` + filepath.ToSlash(dir) + `", "file": "main.c", "command": "cc -c main.c -o main.o"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compile_commands.json"), []byte(db), 0o644))

	units, err := LoadCompileDatabase(dir, CompileFilter{})
	require.NoError(t, err)
	require.Len(t, units, 1)

	set, err := newTestEngine(t, WithPattern("hal_")).Extract(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_read", "hal_write"}, set.Names())

	_, err = LoadCompileDatabase(filepath.Join(dir, "missing"), CompileFilter{})
	assert.ErrorContains(t, err, "compiledb: reading")
}

func TestExtract_FullMatch(t *testing.T) {
	t.Parallel()

	_, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_read"), WithFullMatch(true))

	set, err := e.Extract(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_read"}, set.Names())
}

func TestExtract_Progress(t *testing.T) {
	t.Parallel()

	_, units := writeProject(t, mainSource)
	var got []int
	e := newTestEngine(t, WithPattern("hal_"), WithProgress(func(_ string, matches int) {
		got = append(got, matches)
	}))

	_, err := e.Extract(context.Background(), units)
	require.NoError(t, err)
	// Two declarations, two replacing calls; the bare callee references
	// never replace.
	assert.Equal(t, []int{4}, got)
}

func TestExtract_Hook(t *testing.T) {
	t.Parallel()

	_, units := writeProject(t, mainSource)
	hook := filepath.Join(t.TempDir(), "hook.risor")
	require.NoError(t, os.WriteFile(hook, []byte(`fake["name"] != "hal_write"`), 0o644))

	e := newTestEngine(t, WithPattern("hal_"), WithHook(hook))
	set, err := e.Extract(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_read"}, set.Names())
}

func TestExtract_BuiltinHook(t *testing.T) {
	t.Parallel()

	source := mainSource + "\nvoid spin(void) { __hal_barrier(); }\n"
	_, units := writeProject(t, source)

	e := newTestEngine(t, WithHook(BuiltinHookPrefix+"drop_reserved"))
	set, err := e.Extract(context.Background(), units)
	require.NoError(t, err)
	assert.NotContains(t, set.Names(), "__hal_barrier")
	assert.Contains(t, set.Names(), "hal_read")

	_, err = New(WithHook(BuiltinHookPrefix + "nope"))
	assert.ErrorContains(t, err, "loading hook")
}

func TestExtract_ParseError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	_, err := e.Extract(context.Background(), []CompileUnit{{File: filepath.Join(t.TempDir(), "gone.c")}})

	var pe *fakes.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Contains(t, pe.File, "gone.c")
}

// =============================================================================
// Generate
// =============================================================================

func TestGenerate_FreshPaired(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	out := Output{Base: filepath.Join(dir, "autofakes")}

	res, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.New())
	assert.Equal(t, []string{out.SourcePath(), out.HeaderPath()}, res.Written)

	header := readFile(t, out.HeaderPath())
	assert.Contains(t, header, "DECLARE_FAKE_VALUE_FUNC(int, hal_read, int);\n")
	assert.Contains(t, header, "DECLARE_FAKE_VOID_FUNC(hal_write, int,const char *);\n")
	assert.Contains(t, header, fakes.FakeListAnchor+" FAKE(hal_read)\\\n FAKE(hal_write)\n")

	source := readFile(t, out.SourcePath())
	assert.Contains(t, source, "#include \"autofakes.h\"\n")
	assert.Contains(t, source, "DEFINE_FAKE_VALUE_FUNC(int, hal_read, int);\n")

	assert.FileExists(t, store.CachePath(dir))
}

func TestGenerate_SingleFile(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"), WithLayout(SingleFile), WithSnapshotStore(NewMemoryStore()))
	out := Output{Base: filepath.Join(dir, "fakes")}

	res, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Equal(t, []string{out.SourcePath()}, res.Written)
	assert.NoFileExists(t, out.HeaderPath())
	assert.Contains(t, readFile(t, out.SourcePath()), "FAKE_VALUE_FUNC(int, hal_read, int);\n")
}

func TestGenerate_CacheSkipsKnownFakes(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	out := Output{Base: filepath.Join(dir, "autofakes")}

	_, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	before := readFile(t, out.HeaderPath())

	res, err := e.Generate(context.Background(), units, Output{Base: out.Base, Merge: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Zero(t, res.New())
	assert.Empty(t, res.Written)
	assert.Equal(t, before, readFile(t, out.HeaderPath()))
}

func TestGenerate_MergeNewFakes(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	out := Output{Base: filepath.Join(dir, "autofakes")}

	_, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)

	extended := mainSource + "\nvoid poll(void) { hal_reset(); }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte(extended), 0o644))

	res, err := e.Generate(context.Background(), units, Output{Base: out.Base, Merge: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_reset"}, res.Fakes.Names())

	header := readFile(t, out.HeaderPath())
	assert.Contains(t, header, fakes.MergeToken+"DECLARE_FAKE_VALUE_FUNC(int, hal_reset);\n")
	assert.Contains(t, header, fakes.FakeListAnchor+" FAKE(hal_reset)\\\n FAKE(hal_read)\\\n")
	assert.Contains(t, readFile(t, out.SourcePath()), fakes.MergeToken+"DEFINE_FAKE_VALUE_FUNC(int, hal_reset);\n")
}

func TestGenerate_ExistingOutput(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	out := Output{Base: filepath.Join(dir, "autofakes"), NoCache: true}
	require.NoError(t, os.WriteFile(out.SourcePath(), []byte("keep me\n"), 0o644))

	_, err := e.Generate(context.Background(), units, out)
	assert.ErrorIs(t, err, merge.ErrFileExists)
	assert.Equal(t, "keep me\n", readFile(t, out.SourcePath()))
	assert.NoFileExists(t, out.HeaderPath())

	out.Force = true
	_, err = e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, out.SourcePath()), "DEFINE_FFF_GLOBALS;")
}

func TestGenerate_FailedWriteKeepsCache(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	snapshots := NewMemoryStore()
	e := newTestEngine(t, WithPattern("hal_"), WithSnapshotStore(snapshots))
	out := Output{Base: filepath.Join(dir, "autofakes")}
	require.NoError(t, os.WriteFile(out.SourcePath(), []byte("stale\n"), 0o644))

	_, err := e.Generate(context.Background(), units, out)
	require.ErrorIs(t, err, merge.ErrFileExists)

	saved, err := snapshots.Load(context.Background(), out.Target())
	require.NoError(t, err)
	assert.Zero(t, saved.Len(), "a failed write must not update the cache")

	out.Force = true
	res, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"hal_read", "hal_write"}, res.Fakes.Names())
	assert.Equal(t, []string{out.SourcePath(), out.HeaderPath()}, res.Written)
	assert.Contains(t, readFile(t, out.SourcePath()), "DEFINE_FAKE_VALUE_FUNC(int, hal_read, int);\n")

	saved, err = snapshots.Load(context.Background(), out.Target())
	require.NoError(t, err)
	assert.Equal(t, res.Fakes.Names(), saved.Names())
}

func TestGenerate_FailedMergeThenFreshRun(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	base := filepath.Join(dir, "autofakes")

	_, err := e.Generate(context.Background(), units, Output{Base: base, Merge: true})
	require.ErrorIs(t, err, merge.ErrMergeTargetMissing)

	res, err := e.Generate(context.Background(), units, Output{Base: base})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New(), "the SQLite cache was not updated by the failed run")
	assert.FileExists(t, base+".h")
}

func TestGenerate_MergeTargetMissing(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"), WithSnapshotStore(NewMemoryStore()))

	_, err := e.Generate(context.Background(), units, Output{Base: filepath.Join(dir, "autofakes"), Merge: true})
	assert.ErrorIs(t, err, merge.ErrMergeTargetMissing)
	assert.NoFileExists(t, filepath.Join(dir, "autofakes.cc"))
}

func TestGenerate_ConflictingStrategy(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	_, err := e.Generate(context.Background(), nil, Output{Base: "x", Force: true, Merge: true})
	assert.ErrorIs(t, err, merge.ErrConflictingStrategy)

	_, err = e.Generate(context.Background(), nil, Output{})
	assert.ErrorContains(t, err, "empty output name")
}

func TestGenerate_DryRun(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	snapshots := NewMemoryStore()
	e := newTestEngine(t, WithPattern("hal_"), WithSnapshotStore(snapshots))
	out := Output{Base: filepath.Join(dir, "autofakes"), DryRun: true}

	res, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.New())
	assert.Empty(t, res.Written)
	assert.NoFileExists(t, out.SourcePath())

	saved, err := snapshots.Load(context.Background(), out.Target())
	require.NoError(t, err)
	assert.Zero(t, saved.Len(), "dry run must not update the cache")
}

func TestGenerate_DryRunDoesNotCreateCache(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))

	_, err := e.Generate(context.Background(), units, Output{Base: filepath.Join(dir, "autofakes"), DryRun: true})
	require.NoError(t, err)
	assert.NoFileExists(t, store.CachePath(dir))
}

func TestGenerate_NoCache(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("hal_"))
	out := Output{Base: filepath.Join(dir, "autofakes"), NoCache: true}

	_, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.NoFileExists(t, store.CachePath(dir))

	out.Force = true
	res, err := e.Generate(context.Background(), units, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.New())
}

func TestGenerate_NothingMatched(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t, WithPattern("nope_"))

	res, err := e.Generate(context.Background(), units, Output{Base: filepath.Join(dir, "autofakes")})
	require.NoError(t, err)
	assert.Zero(t, res.Found)
	assert.Empty(t, res.Written)
	assert.NoFileExists(t, filepath.Join(dir, "autofakes.cc"))
}

func TestGenerate_Cancelled(t *testing.T) {
	t.Parallel()

	dir, units := writeProject(t, mainSource)
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Generate(ctx, units, Output{Base: filepath.Join(dir, "autofakes")})
	assert.ErrorIs(t, err, context.Canceled)
}
