// Package merge writes generated files, either fresh or by splicing new
// fragments into a previous generation at literal anchors.
//
// A write covers a group of files that succeed or fail together. Every
// file's new content is built in memory and staged in a temporary file next
// to its target, along with a backup of the target's current content.
// Targets are only replaced once every file of the group has been staged.
// A failure while staging removes the staged files; a failure while
// replacing restores the targets already replaced from their backups.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrFileExists is returned when a target exists and neither force nor
	// merge was requested.
	ErrFileExists = errors.New("merge: file exists, but merge/overwrite not allowed")
	// ErrMergeTargetMissing is returned when merge was requested and a
	// target does not exist.
	ErrMergeTargetMissing = errors.New("merge: merge requested but target does not exist")
	// ErrConflictingStrategy is returned when both force and merge are set.
	ErrConflictingStrategy = errors.New("merge: force and merge are mutually exclusive")
)

// AnchorError reports an anchor that is missing from an existing file.
type AnchorError struct {
	Path   string
	Anchor string
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("merge: failed to merge into %s: token %q not found", e.Path, e.Anchor)
}

// Splice inserts Fragments right after the first occurrence of Anchor.
type Splice struct {
	Anchor    string
	Fragments []string
}

// Plan describes one target file: the full content for a fresh write and
// the splices for a merge.
type Plan struct {
	Path    string
	Fresh   []byte
	Splices []Splice
}

// Apply splices fragments into content in order. Each splice searches the
// buffer produced by the previous one. content is not modified.
func Apply(content []byte, splices []Splice) ([]byte, error) {
	buf := content
	for _, s := range splices {
		idx := bytes.Index(buf, []byte(s.Anchor))
		if idx < 0 {
			return nil, &AnchorError{Anchor: s.Anchor}
		}
		at := idx + len(s.Anchor)

		var next bytes.Buffer
		next.Grow(len(buf) + fragmentsLen(s.Fragments))
		next.Write(buf[:at])
		for _, f := range s.Fragments {
			next.WriteString(f)
		}
		next.Write(buf[at:])
		buf = next.Bytes()
	}
	return buf, nil
}

func fragmentsLen(fragments []string) int {
	var n int
	for _, f := range fragments {
		n += len(f)
	}
	return n
}

// Writer writes plans to disk.
type Writer struct {
	// Force overwrites existing targets with their fresh content.
	Force bool
	// Merge splices into existing targets, which must all exist.
	Merge bool

	Logger *zap.Logger

	// rename replaces targets; nil means os.Rename.
	rename func(oldpath, newpath string) error
}

// staged is a plan whose new content sits in a temporary file. backup holds
// the target's previous content and is empty when there was no target.
type staged struct {
	path   string
	temp   string
	backup string
}

// target is the computed state of one plan.
type target struct {
	content  []byte
	previous []byte
	existed  bool
}

// Write writes every plan or none of them.
func (w Writer) Write(plans ...Plan) error {
	if w.Force && w.Merge {
		return ErrConflictingStrategy
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rename := w.rename
	if rename == nil {
		rename = os.Rename
	}

	targets := make([]target, len(plans))
	for i, p := range plans {
		t, err := w.content(p)
		if err != nil {
			return err
		}
		targets[i] = t
	}

	var done []staged
	cleanup := func() {
		for _, s := range done {
			os.Remove(s.temp)
			if s.backup != "" {
				os.Remove(s.backup)
			}
		}
	}
	for i, p := range plans {
		s, err := stageTarget(p.Path, targets[i])
		if err != nil {
			cleanup()
			return err
		}
		done = append(done, s)
	}

	for i, s := range done {
		if err := rename(s.temp, s.path); err != nil {
			restoreErr := restore(done[:i], rename)
			cleanup()
			if restoreErr != nil {
				return fmt.Errorf("merge: replacing %s: %w (restoring: %v)", s.path, err, restoreErr)
			}
			return fmt.Errorf("merge: replacing %s: %w", s.path, err)
		}
		logger.Debug("wrote file", zap.String("path", s.path), zap.Bool("merge", w.Merge))
	}
	for _, s := range done {
		if s.backup != "" {
			os.Remove(s.backup)
		}
	}
	return nil
}

// stageTarget stages the new content of path and, when path exists, a
// backup of its previous content.
func stageTarget(path string, t target) (staged, error) {
	temp, err := stage(path, t.content)
	if err != nil {
		return staged{}, err
	}
	s := staged{path: path, temp: temp}
	if t.existed {
		s.backup, err = stage(path, t.previous)
		if err != nil {
			os.Remove(temp)
			return staged{}, err
		}
	}
	return s, nil
}

// restore undoes the replacements of replaced: targets that existed get
// their backup back, new targets are removed. Backups are taken out of
// replaced once restored, or kept on disk and named in the error when they
// could not be.
func restore(replaced []staged, rename func(oldpath, newpath string) error) error {
	var errs []error
	for i := range replaced {
		s := &replaced[i]
		if s.backup == "" {
			if err := os.Remove(s.path); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := rename(s.backup, s.path); err != nil {
			errs = append(errs, fmt.Errorf("previous content of %s kept in %s: %w", s.path, s.backup, err))
		}
		s.backup = ""
	}
	return errors.Join(errs...)
}

// content computes the new bytes of one target.
func (w Writer) content(p Plan) (target, error) {
	existing, err := os.ReadFile(p.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if w.Merge {
			return target{}, fmt.Errorf("%w: %s", ErrMergeTargetMissing, p.Path)
		}
		return target{content: p.Fresh}, nil
	case err != nil:
		return target{}, fmt.Errorf("merge: reading %s: %w", p.Path, err)
	}

	t := target{previous: existing, existed: true}
	switch {
	case w.Force:
		t.content = p.Fresh
		return t, nil
	case w.Merge:
		merged, err := Apply(existing, p.Splices)
		if err != nil {
			var ae *AnchorError
			if errors.As(err, &ae) {
				ae.Path = p.Path
			}
			return target{}, err
		}
		t.content = merged
		return t, nil
	}
	return target{}, fmt.Errorf("%w: %s", ErrFileExists, p.Path)
}

// stage writes content to a temporary file in the target's directory and
// returns its name.
func stage(path string, content []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("merge: creating %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("merge: staging %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("merge: staging %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("merge: staging %s: %w", path, err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("merge: staging %s: %w", path, err)
	}
	return f.Name(), nil
}
