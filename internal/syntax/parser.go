// Package syntax parses C and C++ translation units with tree-sitter and
// exposes the function calls, declarations and references found in them as
// a flat, pre-order sequence of typed nodes.
//
// tree-sitter does no preprocessing and no type checking, so the parser
// approximates what a compiler front end would report: quoted and angled
// includes are followed through the unit's header search path and spliced
// in at the directive, and declarations seen earlier in the unit supply the
// types of later calls and references.
package syntax

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
)

// Parser turns compile units into trees.
type Parser struct {
	logger *zap.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used for recoverable conditions such as
// unresolved includes.
func WithLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = l
	}
}

// NewParser creates a Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tree is the parsed form of one compile unit. Its nodes are plain values
// copied out of the tree-sitter trees, which are released before Parse
// returns.
type Tree struct {
	Path     string
	Language string
	// Headers lists the included files parsed into the tree, in the order
	// they were first included.
	Headers []string

	nodes []Node
}

// NewTree builds a tree from already extracted nodes.
func NewTree(path, lang string, nodes []Node) *Tree {
	return &Tree{Path: path, Language: lang, nodes: nodes}
}

// Nodes returns the tree's nodes in pre-order, depth-first order.
func (t *Tree) Nodes() []Node {
	return t.nodes
}

// Parse reads and parses the unit's source file and the headers it
// includes.
func (p *Parser) Parse(ctx context.Context, unit CompileUnit) (*Tree, error) {
	path := unit.SourcePath()
	if path == "" {
		return nil, fmt.Errorf("syntax: no source file in arguments %q", unit.Arguments)
	}
	lang, ok := unit.Language()
	if !ok {
		return nil, fmt.Errorf("syntax: unsupported source file %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("syntax: reading %s: %w", path, err)
	}
	return p.parse(ctx, path, lang, src, unit.IncludeDirs())
}

// ParseSource parses in-memory source. Includes are resolved relative to
// the directory of path only.
func (p *Parser) ParseSource(ctx context.Context, path, lang string, src []byte) (*Tree, error) {
	return p.parse(ctx, path, lang, src, IncludeDirs{})
}

func (p *Parser) parse(ctx context.Context, path, lang string, src []byte, dirs IncludeDirs) (*Tree, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("syntax: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	b := &builder{
		ctx:     ctx,
		parser:  parser,
		lang:    lang,
		dirs:    dirs,
		logger:  p.logger,
		visited: make(map[string]bool),
		funcs:   make(map[string]signature),
		vars:    make(map[string]string),
	}
	if err := b.file(path, src); err != nil {
		return nil, err
	}
	tree := NewTree(path, lang, b.nodes)
	tree.Headers = b.headers
	return tree, nil
}

// signature is what the builder remembers about a declared function.
type signature struct {
	ret      string
	params   []Argument // as declared, including a lone "void"
	typeText string
}

// builder walks tree-sitter trees in document order and accumulates nodes
// together with the declarations needed to type later expressions.
type builder struct {
	ctx    context.Context
	parser *sitter.Parser
	lang   string
	dirs   IncludeDirs
	logger *zap.Logger

	path string
	src  []byte

	visited map[string]bool
	headers []string
	funcs   map[string]signature
	vars    map[string]string
	nodes   []Node
}

func (b *builder) file(path string, src []byte) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	tree, err := b.parser.ParseCtx(b.ctx, nil, src)
	if err != nil {
		return fmt.Errorf("syntax: parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		b.logger.Debug("source has syntax errors", zap.String("file", path))
	}

	b.visited[path] = true
	prevPath, prevSrc := b.path, b.src
	b.path, b.src = path, src
	err = b.walk(root)
	b.path, b.src = prevPath, prevSrc
	return err
}

func (b *builder) walk(n *sitter.Node) error {
	switch n.Type() {
	case "comment", "preproc_def", "preproc_function_def", "preproc_call":
		return nil
	case "preproc_include":
		return b.include(n)
	case "function_definition":
		return b.functionDefinition(n)
	case "declaration":
		return b.declaration(n)
	case "field_declaration", "type_definition":
		if v := n.ChildByFieldName("default_value"); v != nil {
			return b.walk(v)
		}
		return nil
	case "call_expression":
		return b.call(n)
	case "field_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return b.walk(arg)
		}
		return nil
	case "identifier":
		b.reference(n)
		return nil
	}
	return b.walkChildren(n)
}

func (b *builder) walkChildren(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := b.walk(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) pos(n *sitter.Node) Position {
	return Position{File: b.path, Line: int(n.StartPoint().Row) + 1}
}

func (b *builder) emit(n Node) {
	b.nodes = append(b.nodes, n)
}

// include parses an included header in place. Headers that cannot be
// found on the search path, or were already included, are skipped.
func (b *builder) include(n *sitter.Node) error {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	spelled := pathNode.Content(b.src)
	quoted := pathNode.Type() == "string_literal"
	name := strings.Trim(spelled, `"<>`)

	header, ok := b.resolveInclude(name, quoted)
	if !ok {
		b.logger.Debug("include not found on search path",
			zap.String("file", b.path), zap.String("include", spelled))
		return nil
	}
	if b.visited[header] {
		return nil
	}
	src, err := os.ReadFile(header)
	if err != nil {
		b.logger.Debug("include unreadable", zap.String("include", header), zap.Error(err))
		return nil
	}
	b.headers = append(b.headers, header)
	return b.file(header, src)
}

func (b *builder) resolveInclude(name string, quoted bool) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	var dirs []string
	if quoted {
		dirs = append(dirs, filepath.Dir(b.path))
		dirs = append(dirs, b.dirs.Quote...)
	}
	dirs = append(dirs, b.dirs.Angled...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// declare records a function signature and emits its declaration node.
func (b *builder) declare(base string, fd *sitter.Node, suffix string, at *sitter.Node) signature {
	ret := NormalizeType(base + suffix)
	params := parameters(fd.ChildByFieldName("parameters"), b.src)
	sig := signature{
		ret:      ret,
		params:   params,
		typeText: functionType(ret, parameterTypes(params)),
	}
	name := symbolName(fd.ChildByFieldName("declarator"), b.src)
	if name == "" {
		return sig
	}
	b.funcs[name] = sig
	delete(b.vars, name)
	b.emit(&FuncDecl{
		Ident:  name,
		Type:   sig.typeText,
		Params: trimVoid(params),
		At:     b.pos(at),
	})
	return sig
}

func (b *builder) functionDefinition(n *sitter.Node) error {
	// Function bodies get their own variable scope.
	saved := maps.Clone(b.vars)
	defer func() { b.vars = saved }()

	fd, suffix := functionDeclarator(n.ChildByFieldName("declarator"), b.src)
	if fd != nil {
		if parent := n.Parent(); parent == nil || parent.Type() != "field_declaration_list" {
			b.declare(declSpecifiers(n, b.src), fd, suffix, n)
		}
		for _, p := range trimVoid(parameters(fd.ChildByFieldName("parameters"), b.src)) {
			if p.Name != "" {
				b.vars[p.Name] = p.Type
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.FieldNameForChild(i) {
		case "declarator", "type":
			continue
		}
		if child := n.Child(i); child.IsNamed() {
			if err := b.walk(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) declaration(n *sitter.Node) error {
	base := declSpecifiers(n, b.src)
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		target := n.Child(i)
		var value *sitter.Node
		if target.Type() == "init_declarator" {
			value = target.ChildByFieldName("value")
			target = target.ChildByFieldName("declarator")
		}

		if fd, suffix := functionDeclarator(target, b.src); fd != nil {
			b.declare(base, fd, suffix, n)
		} else if name := declaratorName(target, b.src); name != "" {
			b.vars[name] = declaratorType(base, target, b.src)
		}

		if value != nil {
			if err := b.walk(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// call emits a call to a named function followed by the reference to its
// callee, then walks the arguments. Calls through member accesses or
// function-pointer variables are not emitted, but their operands are
// still walked.
func (b *builder) call(n *sitter.Node) error {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	name := ""
	if isIdentifierLike(fn) {
		name = symbolName(fn, b.src)
	}
	if _, isVar := b.vars[name]; name != "" && !isVar {
		sig, known := b.funcs[name]
		ret, refType := "int", "int ()"
		if known {
			ret, refType = sig.ret, sig.typeText
		}
		b.emit(&CallExpr{
			Callee:     name,
			ResultType: ret,
			Args:       b.arguments(args, sig, known),
			At:         b.pos(n),
		})
		b.emit(&ExprRef{Ident: name, Type: refType, At: b.pos(fn)})
	} else if fn != nil {
		if err := b.walk(fn); err != nil {
			return err
		}
	}

	if args == nil {
		return nil
	}
	return b.walkChildren(args)
}

// arguments types the argument expressions of a call. With a prototype in
// scope each argument takes its parameter's type, as after the implicit
// conversion; variadic and unprototyped arguments keep their own type.
func (b *builder) arguments(list *sitter.Node, sig signature, known bool) []Argument {
	if list == nil {
		return nil
	}
	params := trimVoid(sig.params)
	var args []Argument
	for i := 0; i < int(list.NamedChildCount()); i++ {
		expr := list.NamedChild(i)
		if expr.Type() == "comment" {
			continue
		}
		arg := Argument{}
		if expr.Type() == "identifier" {
			arg.Name = expr.Content(b.src)
		}
		idx := len(args)
		if known && idx < len(params) && params[idx].Type != "..." {
			arg.Type = params[idx].Type
		} else {
			arg.Type = b.exprType(expr)
		}
		args = append(args, arg)
	}
	return args
}

// reference emits a reference to a declared function used as a value.
func (b *builder) reference(n *sitter.Node) {
	name := n.Content(b.src)
	if _, isVar := b.vars[name]; isVar {
		return
	}
	if sig, ok := b.funcs[name]; ok {
		b.emit(&ExprRef{Ident: name, Type: sig.typeText, At: b.pos(n)})
	}
}

func (b *builder) boolType() string {
	if b.lang == LangCPP {
		return "bool"
	}
	return "int"
}

// exprType approximates the type of an expression from literals and the
// declarations seen so far. Unknown expressions are "int".
func (b *builder) exprType(n *sitter.Node) string {
	if n == nil {
		return "int"
	}
	switch n.Type() {
	case "number_literal":
		return numberType(n.Content(b.src))
	case "string_literal", "concatenated_string", "raw_string_literal":
		if b.lang == LangCPP {
			return "const char *"
		}
		return "char *"
	case "char_literal":
		if b.lang == LangCPP {
			return "char"
		}
		return "int"
	case "true", "false":
		return b.boolType()
	case "null", "nullptr":
		if b.lang == LangCPP && n.Content(b.src) == "nullptr" {
			return "std::nullptr_t"
		}
		return "void *"
	case "identifier":
		name := n.Content(b.src)
		if t, ok := b.vars[name]; ok {
			return t
		}
		if sig, ok := b.funcs[name]; ok {
			return pointerToFunction(sig.ret, parameterTypes(sig.params))
		}
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return b.exprType(n.NamedChild(0))
		}
	case "cast_expression", "compound_literal_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			return typeDescriptor(t, b.src)
		}
	case "pointer_expression":
		arg := n.ChildByFieldName("argument")
		if strings.HasPrefix(n.Content(b.src), "&") {
			return addrType(b.exprType(arg))
		}
		return derefType(b.exprType(arg))
	case "subscript_expression":
		return derefType(b.exprType(n.ChildByFieldName("argument")))
	case "call_expression":
		if name := symbolName(n.ChildByFieldName("function"), b.src); name != "" {
			if sig, ok := b.funcs[name]; ok {
				return sig.ret
			}
		}
	case "sizeof_expression", "alignof_expression":
		return "unsigned long"
	case "binary_expression":
		switch op := n.ChildByFieldName("operator"); nodeText(op, b.src) {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return b.boolType()
		}
		return b.exprType(n.ChildByFieldName("left"))
	case "unary_expression":
		if nodeText(n.ChildByFieldName("operator"), b.src) == "!" {
			return b.boolType()
		}
		return b.exprType(n.ChildByFieldName("argument"))
	case "update_expression":
		return b.exprType(n.ChildByFieldName("argument"))
	case "assignment_expression":
		return b.exprType(n.ChildByFieldName("left"))
	case "conditional_expression":
		return b.exprType(n.ChildByFieldName("consequence"))
	}
	return "int"
}

// typeDescriptor spells a type_descriptor node ("const char *").
func typeDescriptor(n *sitter.Node, src []byte) string {
	if n.Type() != "type_descriptor" {
		return NormalizeType(n.Content(src))
	}
	return declaratorType(declSpecifiers(n, src), n.ChildByFieldName("declarator"), src)
}
