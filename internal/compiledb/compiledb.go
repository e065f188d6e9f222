// Package compiledb reads clang compilation databases
// (compile_commands.json) into compile units.
package compiledb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/fffauto/internal/syntax"
)

// FileName is the name of the database inside a build directory.
const FileName = "compile_commands.json"

// ErrFileNotInDatabase is returned when a requested source file has no
// entry in the database.
var ErrFileNotInDatabase = errors.New("compiledb: file not found in compilation database")

// Entry is one compile command.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// Args returns the argument vector of the entry. The arguments form wins
// over command, which is split on whitespace.
func (e Entry) Args() []string {
	if len(e.Arguments) > 0 {
		return e.Arguments
	}
	return strings.Fields(e.Command)
}

// Path returns the absolute path of the entry's source file.
func (e Entry) Path() string {
	if filepath.IsAbs(e.File) || e.Directory == "" {
		return filepath.Clean(e.File)
	}
	return filepath.Join(e.Directory, e.File)
}

// Unit converts the entry into a compile unit whose source path is
// embedded in its arguments.
func (e Entry) Unit() syntax.CompileUnit {
	return syntax.CompileUnit{Arguments: e.Args(), Directory: e.Directory}
}

// Filter selects database entries.
type Filter struct {
	// File, when set, selects the first entry whose file contains it.
	// Exclusions do not apply to a selected file.
	File string
	// Exclude drops entries whose source directory equals or lies below
	// one of these paths.
	Exclude []string
	// ExcludePatterns drops entries matching gitignore-style patterns,
	// evaluated against paths relative to the database directory.
	ExcludePatterns []string
}

// DatabasePath returns the database path for a build path, which may name
// either the build directory or the database file itself.
func DatabasePath(buildPath string) string {
	if strings.EqualFold(filepath.Ext(buildPath), ".json") {
		return buildPath
	}
	return filepath.Join(buildPath, FileName)
}

// Read parses the database at path.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiledb: reading %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("compiledb: bad json format in %s: %w", path, err)
	}
	for i, e := range entries {
		if e.File == "" {
			return nil, fmt.Errorf("compiledb: %s: entry %d has no file", path, i)
		}
		if e.Command == "" && len(e.Arguments) == 0 {
			return nil, fmt.Errorf("compiledb: %s: entry %d (%s) has no command", path, i, e.File)
		}
	}
	return entries, nil
}

// Load reads the database at path and returns the units selected by f.
func Load(path string, f Filter) ([]syntax.CompileUnit, error) {
	entries, err := Read(path)
	if err != nil {
		return nil, err
	}
	selected, err := f.Apply(filepath.Dir(path), entries)
	if err != nil {
		return nil, err
	}
	units := make([]syntax.CompileUnit, len(selected))
	for i, e := range selected {
		units[i] = e.Unit()
	}
	return units, nil
}

// Apply returns the entries selected by f. root is the directory the
// exclude patterns are relative to.
func (f Filter) Apply(root string, entries []Entry) ([]Entry, error) {
	if f.File != "" {
		for _, e := range entries {
			if strings.Contains(e.File, f.File) {
				return []Entry{e}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotInDatabase, f.File)
	}

	excluded := make([]string, 0, len(f.Exclude))
	for _, p := range f.Exclude {
		excluded = append(excluded, realPath(p))
	}
	var patterns *ignore.GitIgnore
	if len(f.ExcludePatterns) > 0 {
		patterns = ignore.CompileIgnoreLines(f.ExcludePatterns...)
	}
	absRoot := realPath(root)

	var out []Entry
	for _, e := range entries {
		dir := realPath(filepath.Dir(e.Path()))
		if underAny(dir, excluded) {
			continue
		}
		if patterns != nil {
			rel, err := filepath.Rel(absRoot, filepath.Join(dir, filepath.Base(e.File)))
			if err == nil && patterns.MatchesPath(filepath.ToSlash(rel)) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// underAny reports whether dir equals or lies below one of roots.
func underAny(dir string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// realPath makes p absolute and resolves symlinks where possible.
func realPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
