package fakes

import "strings"

// Anchors that mark where later runs splice new content into generated
// files. They must stay byte-identical across versions.
const (
	// MergeToken follows the declarations of a header and the definitions
	// of a source file.
	MergeToken = "/* __AUTO_FFF_MERGE_TOKEN__ */\n"
	// FakeListAnchor opens the FFF_FAKE_LIST macro of a header.
	FakeListAnchor = "#define FFF_FAKE_LIST(FAKE)\\\n"
)

const (
	includeGuard = "__AUTO_FAKES_H__"
	weakOverride = "#define FFF_GCC_FUNCTION_ATTRIBUTES __attribute__((weak))\n"
	fffInclude   = "#include <fff.h>\n"
	fffGlobals   = "DEFINE_FFF_GLOBALS;\n"
)

// Layout selects the generated file set.
type Layout int

const (
	// Paired generates a header with declarations and a source file with
	// definitions.
	Paired Layout = iota
	// SingleFile generates one source file with combined fake macros.
	SingleFile
)

func (l Layout) String() string {
	if l == SingleFile {
		return "single-file"
	}
	return "paired"
}

// Emitter renders records as FFF macros.
type Emitter struct {
	Layout Layout
	// HeaderName is the file name the paired source includes, e.g.
	// "autofakes.h".
	HeaderName string
}

// macro renders one fake macro: prefix + FAKE_VOID_FUNC(name, args) or
// prefix + FAKE_VALUE_FUNC(ret, name, args).
func macro(prefix string, r Record) string {
	var b strings.Builder
	b.WriteString(prefix)
	if r.IsVoid() {
		b.WriteString("FAKE_VOID_FUNC")
	} else {
		b.WriteString("FAKE_VALUE_FUNC")
	}
	if isVariadic(r) {
		b.WriteString("_VARARG")
	}
	b.WriteString("(")
	if !r.IsVoid() {
		b.WriteString(r.ReturnType)
		b.WriteString(", ")
	}
	b.WriteString(r.Name)
	if len(r.ArgTypes) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(r.ArgTypes, ","))
	}
	b.WriteString(");\n")
	return b.String()
}

func isVariadic(r Record) bool {
	return len(r.ArgTypes) > 0 && r.ArgTypes[len(r.ArgTypes)-1] == "..."
}

func renderEach(records []Record, render func(Record) string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(render(r))
	}
	return b.String()
}

// Declarations renders one DECLARE_ macro per record.
func (e Emitter) Declarations(set *Set) string {
	return renderEach(set.Records(), func(r Record) string { return macro("DECLARE_", r) })
}

// Definitions renders the source-side macro of each record: DEFINE_ in the
// paired layout, the inline fakes in the single-file layout.
func (e Emitter) Definitions(set *Set) string {
	if e.Layout == SingleFile {
		return e.InlineFakes(set)
	}
	return renderEach(set.Records(), func(r Record) string { return macro("DEFINE_", r) })
}

// InlineFakes renders one combined FAKE_ macro per record.
func (e Emitter) InlineFakes(set *Set) string {
	return renderEach(set.Records(), func(r Record) string { return macro("", r) })
}

// ListEntries renders FFF_FAKE_LIST entries for merging into an existing
// list. Every entry carries a line continuation.
func (e Emitter) ListEntries(set *Set) string {
	return renderEach(set.Records(), func(r Record) string { return " FAKE(" + r.Name + ")\\\n" })
}

// FakeList renders a complete FFF_FAKE_LIST macro.
func (e Emitter) FakeList(set *Set) string {
	var b strings.Builder
	b.WriteString(FakeListAnchor)
	names := set.Names()
	for i, name := range names {
		b.WriteString(" FAKE(" + name + ")")
		if i < len(names)-1 {
			b.WriteString("\\")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Header renders a fresh header. It is only meaningful in the paired layout.
func (e Emitter) Header(set *Set) string {
	var b strings.Builder
	b.WriteString("#ifndef " + includeGuard + "\n")
	b.WriteString("#define " + includeGuard + "\n\n")
	b.WriteString(fffInclude + "\n")
	b.WriteString(e.Declarations(set))
	b.WriteString("\n")
	b.WriteString(e.FakeList(set))
	b.WriteString("\n")
	b.WriteString(MergeToken)
	b.WriteString("\n")
	b.WriteString("#endif  /*  " + includeGuard + "  */\n")
	return b.String()
}

// Source renders a fresh source file for the emitter's layout.
func (e Emitter) Source(set *Set) string {
	var b strings.Builder
	b.WriteString(weakOverride + "\n")
	if e.Layout == SingleFile {
		b.WriteString(fffInclude + "\n")
	} else {
		b.WriteString("#include \"" + e.HeaderName + "\"\n\n")
	}
	b.WriteString(fffGlobals + "\n")
	b.WriteString(e.Definitions(set))
	b.WriteString(MergeToken)
	return b.String()
}
