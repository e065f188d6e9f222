package fakes

import (
	"context"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/jward/fffauto/internal/syntax"
)

// patternTimeout bounds a single name match; regexp2 backtracks.
const patternTimeout = time.Second

// ParseError reports a compile unit that could not be parsed.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fakes: parse failure in %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TreeSource parses compile units. *syntax.Parser implements it.
type TreeSource interface {
	Parse(ctx context.Context, unit syntax.CompileUnit) (*syntax.Tree, error)
}

// ProgressFunc is called after each unit with the number of nodes the unit
// added to or replaced in the table.
type ProgressFunc func(unit string, matches int)

// Table is the fold state of a match: the best node seen so far for each
// symbol name, in first-seen order.
type Table struct {
	order []string
	nodes map[string]syntax.Node
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{nodes: make(map[string]syntax.Node)}
}

// Get returns the node recorded for name.
func (t *Table) Get(name string) (syntax.Node, bool) {
	n, ok := t.nodes[name]
	return n, ok
}

// Len returns the number of distinct names in the table.
func (t *Table) Len() int { return len(t.order) }

// Nodes returns the recorded nodes in first-seen order of their names.
func (t *Table) Nodes() []syntax.Node {
	out := make([]syntax.Node, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.nodes[name])
	}
	return out
}

// offer records n unless a node for the same name is already present and
// n is a bare reference. Calls and declarations always replace, keeping
// the name's position.
func (t *Table) offer(n syntax.Node) bool {
	if _, ok := t.nodes[n.Name()]; !ok {
		t.order = append(t.order, n.Name())
	} else if k := n.Kind(); k != syntax.KindCall && k != syntax.KindFuncDecl {
		return false
	}
	t.nodes[n.Name()] = n
	return true
}

// Matcher selects the syntax nodes that become fakes.
type Matcher struct {
	pattern *regexp2.Regexp
}

// MatcherOption configures a Matcher.
type MatcherOption func(*matcherConfig)

type matcherConfig struct {
	fullMatch bool
	timeout   time.Duration
}

// FullMatch makes the pattern match the whole symbol name instead of a
// prefix of it.
func FullMatch(full bool) MatcherOption {
	return func(c *matcherConfig) {
		c.fullMatch = full
	}
}

// MatchTimeout bounds the time spent matching a single name. The default
// is one second.
func MatchTimeout(d time.Duration) MatcherOption {
	return func(c *matcherConfig) {
		c.timeout = d
	}
}

// NewMatcher compiles a name pattern. The pattern uses Python/.NET regular
// expression syntax and, unless FullMatch is given, matches at the start of
// the name like Python's re.match. An empty pattern accepts every name.
func NewMatcher(pattern string, opts ...MatcherOption) (*Matcher, error) {
	cfg := matcherConfig{timeout: patternTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Matcher{}
	if pattern == "" {
		return m, nil
	}

	expr := `\A(?:` + pattern + `)`
	if cfg.fullMatch {
		expr += `\z`
	}
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("fakes: compiling pattern %q: %w", pattern, err)
	}
	re.MatchTimeout = cfg.timeout
	m.pattern = re
	return m, nil
}

// Accepts reports whether n is a fake candidate: an expression or a
// function declaration with a non-empty name matching the pattern. It
// fails when the pattern cannot decide within the match timeout.
func (m *Matcher) Accepts(n syntax.Node) (bool, error) {
	if !n.Kind().IsExpression() && n.Kind() != syntax.KindFuncDecl {
		return false, nil
	}
	if n.Name() == "" {
		return false, nil
	}
	if m.pattern == nil {
		return true, nil
	}
	ok, err := m.pattern.MatchString(n.Name())
	if err != nil {
		return false, fmt.Errorf("fakes: matching %s at %s: %w", n.Name(), n.Pos(), err)
	}
	return ok, nil
}

// Fold adds the accepted nodes to t in order and returns how many were
// inserted or replaced an earlier node.
func (m *Matcher) Fold(t *Table, nodes []syntax.Node) (int, error) {
	var count int
	for _, n := range nodes {
		ok, err := m.Accepts(n)
		if err != nil {
			return count, err
		}
		if ok && t.offer(n) {
			count++
		}
	}
	return count, nil
}

// Collect parses every unit in order and folds its nodes into one table.
// The first unit that fails to parse aborts the collection with a
// *ParseError; a name the pattern cannot match in time aborts it too.
func (m *Matcher) Collect(ctx context.Context, src TreeSource, units []syntax.CompileUnit, progress ProgressFunc) (*Table, error) {
	table := NewTable()
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree, err := src.Parse(ctx, unit)
		if err != nil {
			return nil, &ParseError{File: unitName(unit), Err: err}
		}
		count, err := m.Fold(table, tree.Nodes())
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(tree.Path, count)
		}
	}
	return table, nil
}

// Match collects the units and resolves every selected node into a record.
func (m *Matcher) Match(ctx context.Context, src TreeSource, units []syntax.CompileUnit, progress ProgressFunc) (*Set, error) {
	table, err := m.Collect(ctx, src, units, progress)
	if err != nil {
		return nil, err
	}
	return ResolveAll(table), nil
}

func unitName(unit syntax.CompileUnit) string {
	if path := unit.SourcePath(); path != "" {
		return path
	}
	return fmt.Sprintf("%q", unit.Arguments)
}
