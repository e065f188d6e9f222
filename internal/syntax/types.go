package syntax

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	spaceRe         = regexp.MustCompile(`\s+`)
	starRunRe       = regexp.MustCompile(`\*\s+\*`)
	beforeStarRe    = regexp.MustCompile(`([\w>\]])\s*([*&])`)
	afterStarRe     = regexp.MustCompile(`([*&])\s+([A-Za-z_])`)
	innerParenRe    = regexp.MustCompile(`\(\s+|\s+\)`)
	commaRe         = regexp.MustCompile(`\s*,\s*`)
	templateCloseRe = regexp.MustCompile(`>\s+>`)
)

// NormalizeType rewrites a C/C++ type spelling into the canonical form the
// front end prints: single spaces, a space before a pointer or reference
// run and none inside it ("char *", "char **", "const char *const").
func NormalizeType(s string) string {
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if s == "" {
		return s
	}
	for starRunRe.MatchString(s) {
		s = starRunRe.ReplaceAllString(s, "**")
	}
	s = beforeStarRe.ReplaceAllString(s, "$1 $2")
	s = afterStarRe.ReplaceAllString(s, "$1$2")
	s = innerParenRe.ReplaceAllStringFunc(s, strings.TrimSpace)
	s = commaRe.ReplaceAllString(s, ", ")
	s = templateCloseRe.ReplaceAllString(s, ">>")
	return s
}

// functionType spells a function type the way the front end does:
// "int (int, char)" but "char *(const char *)".
func functionType(ret string, params []string) string {
	sep := " "
	if strings.HasSuffix(ret, "*") || strings.HasSuffix(ret, "&") {
		sep = ""
	}
	return ret + sep + "(" + strings.Join(params, ", ") + ")"
}

// pointerToFunction spells the type of a pointer to a function.
func pointerToFunction(ret string, params []string) string {
	return ret + " (*)(" + strings.Join(params, ", ") + ")"
}

// nodeText returns the source text of node, or "" for nil.
func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// declSpecifiers returns the type qualifiers and type specifier of a
// declaration-like node (declaration, parameter_declaration,
// function_definition, type_descriptor) in source order. Storage classes
// and attributes are dropped.
func declSpecifiers(n *sitter.Node, src []byte) string {
	var parts []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch {
		case n.FieldNameForChild(i) == "type":
			parts = append(parts, child.Content(src))
		case child.Type() == "type_qualifier":
			parts = append(parts, child.Content(src))
		}
	}
	return strings.Join(parts, " ")
}

// qualifiers returns the type_qualifier children of n joined by spaces.
func qualifiers(n *sitter.Node, src []byte) string {
	var quals []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "type_qualifier" {
			quals = append(quals, child.Content(src))
		}
	}
	return strings.Join(quals, " ")
}

// isIdentifierLike reports whether n names a declared entity directly.
func isIdentifierLike(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
		"operator_name", "template_function":
		return true
	}
	return false
}

// symbolName returns the unqualified name of an identifier-like node:
// "ns::Widget::draw" yields "draw".
func symbolName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "field_identifier", "destructor_name", "operator_name":
		return n.Content(src)
	case "qualified_identifier", "template_function":
		return symbolName(n.ChildByFieldName("name"), src)
	}
	return ""
}

// declaratorName digs the declared name out of a (possibly nested)
// declarator.
func declaratorName(d *sitter.Node, src []byte) string {
	for d != nil {
		if isIdentifierLike(d) {
			return symbolName(d, src)
		}
		switch d.Type() {
		case "reference_declarator", "parenthesized_declarator", "attributed_declarator":
			d = d.NamedChild(0)
		default:
			d = d.ChildByFieldName("declarator")
		}
	}
	return ""
}

// functionDeclarator follows a declarator chain through pointer and
// reference declarators to a function_declarator that declares a function
// (not a pointer to one). It returns the declarator and the pointer or
// reference suffix that belongs to the return type.
func functionDeclarator(d *sitter.Node, src []byte) (*sitter.Node, string) {
	var suffix string
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			if !isIdentifierLike(d.ChildByFieldName("declarator")) {
				return nil, ""
			}
			return d, suffix
		case "pointer_declarator":
			suffix += " *" + qualifiers(d, src)
			d = d.ChildByFieldName("declarator")
		case "reference_declarator":
			suffix += " " + referenceToken(d, src)
			d = d.NamedChild(0)
		case "attributed_declarator":
			d = d.NamedChild(0)
		default:
			return nil, ""
		}
	}
	return nil, ""
}

func referenceToken(d *sitter.Node, src []byte) string {
	if strings.HasPrefix(d.Content(src), "&&") {
		return "&&"
	}
	return "&"
}

// declaratorType applies declarator d to the specifier type base and
// returns the resulting type as it appears in a parameter list or an
// expression: arrays decay to pointers and functions to function pointers.
func declaratorType(base string, d *sitter.Node, src []byte) string {
	if d == nil || isIdentifierLike(d) {
		return NormalizeType(base)
	}
	switch d.Type() {
	case "pointer_declarator", "abstract_pointer_declarator":
		return declaratorType(base+" *"+qualifiers(d, src), d.ChildByFieldName("declarator"), src)
	case "reference_declarator":
		return declaratorType(base+" "+referenceToken(d, src), d.NamedChild(0), src)
	case "abstract_reference_declarator":
		var inner *sitter.Node
		if d.NamedChildCount() > 0 {
			inner = d.NamedChild(0)
		}
		return declaratorType(base+" "+referenceToken(d, src), inner, src)
	case "array_declarator", "abstract_array_declarator":
		return declaratorType(base+" *", d.ChildByFieldName("declarator"), src)
	case "function_declarator", "abstract_function_declarator":
		params := parameterTypes(parameters(d.ChildByFieldName("parameters"), src))
		return pointerToFunction(NormalizeType(base), params)
	case "init_declarator":
		return declaratorType(base, d.ChildByFieldName("declarator"), src)
	case "parenthesized_declarator", "abstract_parenthesized_declarator", "attributed_declarator":
		if d.NamedChildCount() == 0 {
			return NormalizeType(base)
		}
		return declaratorType(base, d.NamedChild(0), src)
	}
	return NormalizeType(base)
}

// parameters reads a parameter_list. A lone "void" parameter is kept so
// the function type can be spelled faithfully; callers that want the
// introspected argument list use trimVoid.
func parameters(list *sitter.Node, src []byte) []Argument {
	if list == nil {
		return nil
	}
	var params []Argument
	for i := 0; i < int(list.ChildCount()); i++ {
		p := list.Child(i)
		switch p.Type() {
		case "parameter_declaration", "optional_parameter_declaration":
			d := p.ChildByFieldName("declarator")
			params = append(params, Argument{
				Name: declaratorName(d, src),
				Type: declaratorType(declSpecifiers(p, src), d, src),
			})
		// C spells the ellipsis as an anonymous token.
		case "...", "variadic_parameter", "variadic_parameter_declaration":
			params = append(params, Argument{Type: "..."})
		}
	}
	return params
}

func parameterTypes(params []Argument) []string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return types
}

// trimVoid drops the single unnamed "void" parameter of "f(void)".
func trimVoid(params []Argument) []Argument {
	if len(params) == 1 && params[0].Type == "void" && params[0].Name == "" {
		return nil
	}
	return params
}

// numberType returns the type of an integer or floating literal.
func numberType(text string) string {
	t := strings.ToLower(strings.ReplaceAll(text, "'", ""))
	hex := strings.HasPrefix(t, "0x")
	isFloat := strings.Contains(t, ".") ||
		(!hex && strings.Contains(t, "e")) ||
		(hex && strings.Contains(t, "p"))
	if isFloat {
		switch {
		case strings.HasSuffix(t, "f") && (!hex || strings.Contains(t, "p")):
			return "float"
		case strings.HasSuffix(t, "l"):
			return "long double"
		}
		return "double"
	}

	suffix := t[len(strings.TrimRight(t, "ul")):]
	var typ string
	switch strings.Count(suffix, "l") {
	case 0:
		typ = "int"
	case 1:
		typ = "long"
	default:
		typ = "long long"
	}
	if strings.Contains(suffix, "u") {
		typ = "unsigned " + typ
	}
	return typ
}

// derefType removes one level of pointer from t.
func derefType(t string) string {
	t = strings.TrimSpace(t)
	if strings.HasSuffix(t, "*") {
		return NormalizeType(strings.TrimSuffix(t, "*"))
	}
	return t
}

// addrType adds one level of pointer to t.
func addrType(t string) string {
	return NormalizeType(t + " *")
}
