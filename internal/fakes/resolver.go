package fakes

import (
	"strings"

	"github.com/jward/fffauto/internal/syntax"
)

// ParseFunctionType splits a function type spelling such as
// "char *(const char *, int)" into its return type and parameter types.
// The function pointer spellings "int (*)(int)" and "int (int) (*)" are
// accepted too. ok is false when text is not a function type. A parameter
// list that is empty or just "void" yields no arguments.
func ParseFunctionType(text string) (ret string, args []string, ok bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimSuffix(s, "(*)"))
	if !strings.HasSuffix(s, ")") {
		return "", nil, false
	}

	open := matchingParen(s)
	if open < 0 {
		return "", nil, false
	}
	ret = strings.TrimSpace(s[:open])
	ret = strings.TrimSpace(strings.TrimSuffix(ret, "(*)"))
	if ret == "" || strings.ContainsAny(ret, "()") {
		return "", nil, false
	}

	list := strings.TrimSpace(s[open+1 : len(s)-1])
	if list == "" || list == "void" {
		return ret, nil, true
	}
	for _, arg := range splitTopLevel(list) {
		args = append(args, strings.TrimSpace(arg))
	}
	return ret, args, true
}

// matchingParen returns the index of the "(" matching the ")" that ends s.
func matchingParen(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits a parameter list on commas that are not nested in
// parentheses, brackets or template arguments.
func splitTopLevel(list string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '<', '[':
			depth++
		case ')', '>', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, list[start:])
}

// ArgumentTypes returns the argument types a node exposes directly: the
// argument expression types of a call and the parameter types of a
// declaration. References expose none.
func ArgumentTypes(n syntax.Node) []string {
	var types []string
	for _, arg := range syntax.Arguments(n) {
		types = append(types, arg.Type)
	}
	return types
}

// Resolve derives the fake record for a node. The node's type text is
// authoritative when it spells a function type; otherwise the type text is
// taken as the return type and the introspected arguments are used.
func Resolve(n syntax.Node) Record {
	if ret, args, ok := ParseFunctionType(n.TypeText()); ok {
		return Record{Name: n.Name(), ReturnType: ret, ArgTypes: args}
	}
	return Record{Name: n.Name(), ReturnType: n.TypeText(), ArgTypes: ArgumentTypes(n)}
}

// ResolveAll resolves every node of a table, keeping the table's order.
func ResolveAll(t *Table) *Set {
	set := &Set{}
	for _, n := range t.Nodes() {
		set.Put(Resolve(n))
	}
	return set
}
