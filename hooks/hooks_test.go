package hooks

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/fffauto/internal/fakes"
	"github.com/jward/fffauto/internal/runtime"
)

func TestFS_Contents(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(FS, "*.risor")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"drop_reserved.risor", "normalize_types.risor"}, names)
}

func TestDropReserved(t *testing.T) {
	t.Parallel()

	hook, err := runtime.LoadHookFS(FS, "drop_reserved.risor")
	require.NoError(t, err)

	set := fakes.NewSet(
		fakes.Record{Name: "__builtin_expect", ReturnType: "long", ArgTypes: []string{"long", "long"}},
		fakes.Record{Name: "spi_xfer", ReturnType: "int"},
		fakes.Record{Name: "_exit", ReturnType: "void", ArgTypes: []string{"int"}},
	)
	out, err := hook.ApplyAll(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, []string{"spi_xfer"}, out.Names())
}

func TestNormalizeTypes(t *testing.T) {
	t.Parallel()

	hook, err := runtime.LoadHookFS(FS, "normalize_types.risor")
	require.NoError(t, err)

	got, keep, err := hook.Apply(context.Background(), fakes.Record{
		Name:       "buf_copy",
		ReturnType: "char*",
		ArgTypes:   []string{"const  char*", "unsigned   int"},
	})
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, fakes.Record{
		Name:       "buf_copy",
		ReturnType: "char *",
		ArgTypes:   []string{"const char *", "unsigned int"},
	}, got)
}

func TestLoadHookFS_Missing(t *testing.T) {
	t.Parallel()

	_, err := runtime.LoadHookFS(FS, "nope.risor")
	assert.ErrorContains(t, err, "loading script")
}
