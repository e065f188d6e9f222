// Package runtime embeds a Risor VM that runs user hook scripts over the
// resolved fake records.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/fffauto/internal/fakes"
)

// Runtime evaluates Risor scripts with the fffauto host functions.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *zap.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the scripts' log object.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime resolving script paths and imports against
// scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSource executes Risor source code with all standard globals plus any
// extra globals provided by the caller, and returns the value of its last
// expression.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: eval: %w", err)
	}
	return result, nil
}

// buildImporter returns a Risor importer configured for the Runtime's
// script source. Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. Relative
// paths are resolved against the configured fs.FS or scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"normalize_type":      makeNormalizeTypeFn(),
		"parse_function_type": makeParseFunctionTypeFn(),
		"log":                 mustProxy(&logObject{logger: r.logger.Named("hook")}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// Hook is a record hook script. The script runs once per record with the
// record bound to the global "fake". Its last expression decides the
// outcome: false drops the record, a map replaces the fields it names, and
// anything else keeps the record unchanged.
type Hook struct {
	rt     *Runtime
	path   string
	source string
}

// LoadHook reads the hook script at path. Imports in the script resolve
// relative to the script's directory.
func LoadHook(path string, opts ...RuntimeOption) (*Hook, error) {
	rt := NewRuntime(filepath.Dir(path), opts...)
	src, err := rt.LoadScript(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return &Hook{rt: rt, path: path, source: src}, nil
}

// LoadHookFS reads the hook script name from fsys. Imports resolve within
// fsys.
func LoadHookFS(fsys fs.FS, name string, opts ...RuntimeOption) (*Hook, error) {
	rt := NewRuntime("", append(opts, WithRuntimeFS(fsys))...)
	src, err := rt.LoadScript(name)
	if err != nil {
		return nil, err
	}
	return &Hook{rt: rt, path: name, source: src}, nil
}

// NewHook creates a hook from in-memory source.
func NewHook(label, source string, opts ...RuntimeOption) *Hook {
	return &Hook{rt: NewRuntime("", opts...), path: label, source: source}
}

// Apply runs the hook for one record. keep is false when the script
// dropped the record.
func (h *Hook) Apply(ctx context.Context, r fakes.Record) (out fakes.Record, keep bool, err error) {
	result, err := h.rt.RunSource(ctx, h.source, map[string]any{"fake": recordObject(r)})
	if err != nil {
		return r, false, fmt.Errorf("runtime: hook %s on %s: %w", h.path, r.Name, err)
	}

	switch v := result.(type) {
	case *object.Bool:
		return r, v.Value(), nil
	case *object.Map:
		out, err := applyRecordMap(r, v.Value())
		if err != nil {
			return r, false, fmt.Errorf("runtime: hook %s on %s: %w", h.path, r.Name, err)
		}
		return out, true, nil
	}
	return r, true, nil
}

// ApplyAll runs the hook over every record of set and returns the
// resulting set. Renamed records keep their position; a rename onto an
// existing name replaces that record.
func (h *Hook) ApplyAll(ctx context.Context, set *fakes.Set) (*fakes.Set, error) {
	out := fakes.NewSet()
	for _, r := range set.Records() {
		rec, keep, err := h.Apply(ctx, r)
		if err != nil {
			return nil, err
		}
		if keep {
			out.Put(rec)
		}
	}
	return out, nil
}
