// Package mustach implements a compile-once/render-many Mustache template
// engine: a Loader turns template source (plus any recursively referenced
// partials) into an immutable Program, and Evaluate walks that Program
// against caller-supplied callbacks to produce output.
//
// # Quick Start
//
// The high-level Engine wraps compilation, caching, and a default
// map[string]any value binding so most callers never need to implement
// Callbacks by hand:
//
//	engine := mustach.New()
//	prog, err := engine.PrepareFile("template.mustache")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := engine.Render(prog, map[string]any{
//	    "name":  "World",
//	    "items": []any{1, 2, 3},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(out)
//
// # Template Syntax
//
//	{{name}}              - HTML-escaped variable
//	{{{name}}}, {{&name}} - unescaped variable
//	{{#section}}...{{/section}}  - section, once per list element or once for a truthy value
//	{{^section}}...{{/section}}  - inverted section, rendered when falsy/missing
//	{{! comment }}         - comment, discarded
//	{{=<% %>=}}            - delimiter change, scoped to the enclosing template
//	{{> partial}}          - partial reference, resolved via a Resolver
//
// # Architecture
//
// The engine is split into a compiler (Loader, in compiler.go) that
// produces a flat instruction array plus a data blob (program.go), and a
// stack-based evaluator (evaluator.go) that walks that array. Neither
// component builds an AST: what looks like nesting in the source becomes
// jump offsets in the instruction stream. See Program, Instruction, and
// Evaluate for the low-level API; see Engine for the high-level one.
//
// # Thread Safety
//
// A compiled Program is immutable once returned by the Loader and may be
// evaluated by any number of goroutines concurrently without external
// locking. The Engine and its ProgramCache are also safe for concurrent
// use.
//
// # Value Model
//
// The core Loader/Evaluate API delegates the value model entirely to the
// five Callbacks methods, matching the source system this design derives
// from. For convenience this package also ships one concrete binding
// (used internally by Engine.Render) over nested map[string]any/[]any
// values with standard Mustache truthiness; see valuemap.go.
package mustach
