package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestRead_Missing(t *testing.T) {
	t.Parallel()

	_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRead_AllKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
output: test/fakes/hal_fakes
build_path: build
exclude:
  - third_party
  - /opt/sdk
exclude_patterns:
  - "*_gen.c"
pattern: "hal_"
full_match: true
single_file: true
no_cache: true
hook: hooks/rename.risor
verbose: true
`)
	dir := filepath.Dir(path)

	cfg, err := Read(path)
	require.NoError(t, err)

	want := &Config{
		Output:          "test/fakes/hal_fakes",
		BuildPath:       filepath.Join(dir, "build"),
		Exclude:         []string{filepath.Join(dir, "third_party"), "/opt/sdk"},
		ExcludePatterns: []string{"*_gen.c"},
		Pattern:         "hal_",
		FullMatch:       true,
		SingleFile:      true,
		NoCache:         true,
		Hook:            filepath.Join(dir, "hooks", "rename.risor"),
		Verbose:         true,
	}
	if d := cmp.Diff(want, cfg); d != "" {
		t.Errorf("config mismatch (-want +got):\n%s", d)
	}
}

func TestRead_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Read(writeConfig(t, "pattern: drv_\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, "drv_", cfg.Pattern)
}

func TestRead_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Read(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestRead_BuiltinHookKept(t *testing.T) {
	t.Parallel()

	cfg, err := Read(writeConfig(t, "hook: builtin:drop_reserved\n"))
	require.NoError(t, err)
	assert.Equal(t, "builtin:drop_reserved", cfg.Hook)
}

func TestRead_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := Read(writeConfig(t, "outptu: typo\n"))
	assert.ErrorContains(t, err, "outptu")
}

func TestRead_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Read(writeConfig(t, "output: \"\"\n"))
	assert.ErrorContains(t, err, "output must not be empty")

	_, err = Read(writeConfig(t, "exclude: [a, \"\"]\n"))
	assert.ErrorContains(t, err, "exclude entries")

	_, err = Read(writeConfig(t, "verbose: [\n"))
	assert.ErrorContains(t, err, "parsing")
}
