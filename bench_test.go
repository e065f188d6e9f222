package fffauto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jward/fffauto/internal/fakes"
)

// benchSource builds a C file declaring and calling n driver functions.
func benchSource(n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "int drv_op%d(int fd, const char *buf, unsigned long len);\n", i)
	}
	b.WriteString("\nint run(int fd, const char *buf)\n{\n    int rc = 0;\n")
	for i := range n {
		fmt.Fprintf(&b, "    rc += drv_op%d(fd, buf, %d);\n", i, i)
	}
	b.WriteString("    return rc;\n}\n")
	return b.String()
}

func BenchmarkExtract(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "bench.c")
	if err := os.WriteFile(path, []byte(benchSource(200)), 0o644); err != nil {
		b.Fatal(err)
	}
	units := []CompileUnit{{File: path}}

	e, err := New(WithPattern("drv_"))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for range b.N {
		set, err := e.Extract(ctx, units)
		if err != nil {
			b.Fatal(err)
		}
		if set.Len() != 200 {
			b.Fatalf("got %d fakes, want 200", set.Len())
		}
	}
}

func BenchmarkEmit(b *testing.B) {
	set := fakes.NewSet()
	for i := range 500 {
		set.Put(Record{Name: fmt.Sprintf("drv_op%d", i), ReturnType: "int", ArgTypes: []string{"int", "const char *"}})
	}
	em := fakes.Emitter{HeaderName: "autofakes.h"}

	b.ResetTimer()
	for range b.N {
		_ = em.Header(set)
		_ = em.Source(set)
	}
}
