package syntax

import "fmt"

// Kind classifies a syntax node.
type Kind int

const (
	// KindOther is an expression naming a function without exposing its
	// arguments: the callee of a call, or a bare function reference.
	KindOther Kind = iota
	// KindCall is a call expression.
	KindCall
	// KindFuncDecl is a function declaration or definition.
	KindFuncDecl
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "OtherExpression"
	case KindCall:
		return "CallExpression"
	case KindFuncDecl:
		return "FunctionDeclaration"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsExpression reports whether nodes of this kind are expressions.
func (k Kind) IsExpression() bool {
	return k == KindOther || k == KindCall
}

// Position locates a node in its source file. Line is 1-based.
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Argument is one argument of a call or one parameter of a declaration.
// Name is empty for unnamed parameters and for non-identifier arguments.
type Argument struct {
	Name string
	Type string
}

// Node is a syntax node relevant to fake generation. The set of
// implementations is closed: *CallExpr, *FuncDecl and *ExprRef.
type Node interface {
	Kind() Kind
	// Name is the spelling of the referenced or declared symbol.
	Name() string
	// TypeText is the type of the node as spelled by the front end: the
	// result type for a call, the function type otherwise.
	TypeText() string
	Pos() Position

	node()
}

// CallExpr is a call to a named function.
type CallExpr struct {
	Callee     string
	ResultType string
	Args       []Argument
	At         Position
}

// FuncDecl is a function declaration or definition.
type FuncDecl struct {
	Ident  string
	Type   string // e.g. "char *(const char *, int)"
	Params []Argument
	At     Position
}

// ExprRef is an expression referring to a function by name.
type ExprRef struct {
	Ident string
	Type  string
	At    Position
}

func (*CallExpr) Kind() Kind { return KindCall }
func (n *CallExpr) Name() string { return n.Callee }
func (n *CallExpr) TypeText() string { return n.ResultType }
func (n *CallExpr) Pos() Position { return n.At }
func (*CallExpr) node() {}

func (*FuncDecl) Kind() Kind { return KindFuncDecl }
func (n *FuncDecl) Name() string { return n.Ident }
func (n *FuncDecl) TypeText() string { return n.Type }
func (n *FuncDecl) Pos() Position { return n.At }
func (*FuncDecl) node() {}

func (*ExprRef) Kind() Kind { return KindOther }
func (n *ExprRef) Name() string { return n.Ident }
func (n *ExprRef) TypeText() string { return n.Type }
func (n *ExprRef) Pos() Position { return n.At }
func (*ExprRef) node() {}

// Arguments returns the arguments a node exposes through direct
// introspection: call arguments, declaration parameters, and nothing for
// references.
func Arguments(n Node) []Argument {
	switch n := n.(type) {
	case *CallExpr:
		return n.Args
	case *FuncDecl:
		return n.Params
	}
	return nil
}
