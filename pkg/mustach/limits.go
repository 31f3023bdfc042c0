package mustach

// Process-wide limits mirrored from the engine this design is derived
// from. They bound the compiler's frame stacks and the evaluator's
// section stack; the widths of Instruction's offset fields (int32
// positions and lengths, int16 name lengths and body offsets) are set in
// program.go, and MaxNameLen below keeps names within the int16 field.
const (
	// MaxNesting bounds both the compiler's parsing-frame stack (partial
	// depth) and the evaluator's section-frame stack (section nesting
	// depth).
	MaxNesting = 96

	// MaxDelim bounds the length of a start or end delimiter string set
	// via a {{=...=}} tag.
	MaxDelim = 11

	// MaxFileNameLen bounds the length of a template name: the root
	// template's name and each partial name as written in its tag.
	MaxFileNameLen = 8191

	// MaxNameLen bounds a variable or section name; enforced against
	// math.MaxInt16 to keep Instruction.NameLen representable as an
	// int16 the way the spec's on-disk layout does.
	MaxNameLen = 1<<15 - 1
)
