// Package fffauto generates FFF (fake function framework) fakes for the C
// and C++ functions a code base calls or declares.
//
// # Pipeline
//
// A run goes through five stages:
//
//  1. Parse: every compile unit is parsed with tree-sitter. Headers reached
//     through the unit's include path are spliced in at their #include.
//  2. Match: call expressions, function references and declarations whose
//     name matches the pattern are folded into one table across all units.
//     Calls and declarations replace an earlier node of the same name.
//  3. Resolve: each node's type text is turned into a return type and an
//     argument list. An optional Risor hook may rewrite or drop records.
//  4. Diff: records emitted by the previous run for the same output, as
//     remembered in the SQLite cache next to the output, are skipped.
//  5. Write: the remaining records are rendered as DECLARE_/DEFINE_ macro
//     pairs (or FAKE_ macros in single-file mode) and written fresh,
//     overwritten, or spliced into existing files at their merge tokens.
//
// # Usage
//
//	e, err := fffauto.New(fffauto.WithPattern("hal_"))
//	if err != nil { ... }
//
//	units, err := fffauto.LoadCompileDatabase("build", fffauto.CompileFilter{})
//	res, err := e.Generate(ctx, units, fffauto.Output{Base: "test/autofakes", Merge: true})
//
// The fffauto command wraps the same pipeline; see cmd/fffauto.
package fffauto
