package mustach

import (
	"bytes"
	"io"
	"math"
	"strings"
)

// Loader compiles Mustache source (plus any partials it references) into
// a Program. It owns the Resolver used to look up partials and the
// nesting limit enforced against both the parsing-frame stack (partial
// depth) and, per template, the open-section stack.
type Loader struct {
	resolver   Resolver
	maxNesting int
	logger     *Logger
}

// NewLoader returns a Loader that resolves partials through r, using the
// package default nesting limit.
func NewLoader(r Resolver) *Loader {
	return &Loader{resolver: r, maxNesting: MaxNesting, logger: GetLogger()}
}

// DefaultLoader returns a Loader backed by the local filesystem.
func DefaultLoader() *Loader {
	return NewLoader(FileResolver{})
}

// WithMaxNesting overrides the loader's nesting limit; primarily useful
// for tests that want to exercise TOO_DEEP without building 96 levels of
// section nesting.
func (l *Loader) WithMaxNesting(n int) *Loader {
	l.maxNesting = n
	return l
}

// Compile reads src to EOF and compiles it under the given name, used
// both as the cache/self-reference key and as the base for resolving
// relative partials.
func (l *Loader) Compile(name string, src io.Reader) (*Program, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return l.compileBytes(name, b)
}

// CompileFile compiles the template at path, resolved through the
// Loader's Resolver.
func (l *Loader) CompileFile(path string) (*Program, error) {
	if !l.resolver.Exists(path) {
		return nil, newCompileError(KindFileNotFound, path, 0, "template not found")
	}
	b, err := l.resolver.Resolve(path)
	if err != nil {
		return nil, newCompileError(KindFileNotFound, path, 0, err.Error())
	}
	return l.compileBytes(path, b)
}

// CompileString compiles src inline, registered under name. Partials it
// references are still resolved through the Loader's Resolver, relative
// to name's directory.
func (l *Loader) CompileString(name, src string) (*Program, error) {
	return l.compileBytes(name, []byte(src))
}

func (l *Loader) compileBytes(name string, src []byte) (*Program, error) {
	if len(name) == 0 {
		return nil, newCompileError(KindFileNameTooShort, name, 0, "template name is empty")
	}
	if len(name) > MaxFileNameLen {
		return nil, newCompileError(KindFileNameTooLong, name, 0, "template name too long")
	}
	if len(src) == 0 {
		return nil, newCompileError(KindEmptyTemplate, name, 0, "template is empty")
	}
	if len(src) >= math.MaxInt32 {
		return nil, newCompileError(KindFileTooBig, name, 0, "template exceeds max size")
	}

	b := &builder{l: l}
	if _, err := b.pushFrame(name, src); err != nil {
		return nil, err
	}
	if err := b.run(); err != nil {
		return nil, err
	}
	return b.finish(), nil
}

// loaderFrame is one entry on the compiler's parsing stack: the byte
// range of the template currently being scanned, its active delimiters
// (scoped to this frame alone — see SPEC_FULL.md §9, "Global delimiter
// state"), and the stack of not-yet-closed sections within it.
type loaderFrame struct {
	entry     int
	name      string
	pathLen   int
	dataStart int32
	dataPos   int32
	dataEnd   int32

	startDelim string
	endDelim   string

	sections []int // instruction indices of open SECTION_START/SECTION_START_INV
	rootInstr int32
}

type builder struct {
	l      *Loader
	instr  []Instruction
	data   []byte
	dirs   []dirEntry
	frames []loaderFrame
}

// pushFrame registers name's raw bytes in the data blob, opens a
// directory entry, emits the unnamed SECTION_START wrapper every
// template (root or partial) begins with, and pushes a parsing frame for
// it. The wrapper instruction is what SECTION_GOTO jumps to and what
// gives every template a well-formed start/end pair for the evaluator's
// initial frame.
func (b *builder) pushFrame(name string, src []byte) (int, error) {
	if len(b.frames) >= b.l.maxNesting {
		return 0, newCompileError(KindTooDeep, name, 0, "partial nesting exceeds limit")
	}

	start := int32(len(b.data))
	b.data = append(b.data, src...)
	end := int32(len(b.data))

	rootInstr := int32(len(b.instr))
	b.instr = append(b.instr, Instruction{Op: OpSectionStart, Offset: 0})

	entryIdx := len(b.dirs)
	b.dirs = append(b.dirs, dirEntry{Name: name, PathLen: pathDir(name), InstStart: rootInstr, Next: end})

	b.frames = append(b.frames, loaderFrame{
		entry:      entryIdx,
		name:       name,
		pathLen:    pathDir(name),
		dataStart:  start,
		dataPos:    start,
		dataEnd:    end,
		startDelim: "{{",
		endDelim:   "}}",
		rootInstr:  rootInstr,
	})
	b.l.logger.DebugFrame(OpSectionStart, name, len(b.frames))
	return len(b.frames) - 1, nil
}

// run drives the compiler's top-level algorithm: parse the topmost frame
// until its bytes are exhausted, finalize and pop it, repeat until the
// parsing stack is empty.
func (b *builder) run() error {
	for len(b.frames) > 0 {
		top := len(b.frames) - 1
		finished, err := b.step(top)
		if err != nil {
			return err
		}
		if finished {
			f := b.frames[top]
			if err := b.finalizeFrame(f); err != nil {
				return err
			}
			b.frames = b.frames[:top]
			b.l.logger.DebugFrame(OpSectionEnd, f.name, len(b.frames))
		}
	}
	return nil
}

func (b *builder) finalizeFrame(f loaderFrame) error {
	if len(f.sections) != 0 {
		return newCompileError(KindClosureMismatch, f.name, int(f.dataPos-f.dataStart), "unclosed section at end of template")
	}
	endIdx := int32(len(b.instr))
	b.instr[f.rootInstr].End = endIdx + 1
	b.instr[f.rootInstr].Len = f.dataEnd - f.dataStart
	b.instr = append(b.instr, Instruction{Op: OpSectionEnd, Data: f.rootInstr})
	return nil
}

// emitText appends one or more WRITE_TEXT instructions spanning
// data[start:end], split into chunks no longer than int16 can address:
// NameLen is a 16-bit field per SPEC_FULL.md §3, and unlike a name a
// literal run of text is not bounded to that width by the grammar, so an
// oversized span is chunked rather than rejected.
func (b *builder) emitText(start, end int32) {
	for start < end {
		n := end - start
		if n > math.MaxInt16 {
			n = math.MaxInt16
		}
		b.instr = append(b.instr, Instruction{Op: OpWriteText, NamePos: start, NameLen: int16(n)})
		start += n
	}
}

// trimSpan trims ASCII whitespace from both ends of data[start:end],
// returning the trimmed span's own [start:end) coordinates.
func trimSpan(data []byte, start, end int32) (int32, int32) {
	for start < end && isSpace(data[start]) {
		start++
	}
	for end > start && isSpace(data[end-1]) {
		end--
	}
	return start, end
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// step performs one iteration of the "tag scan per frame" algorithm: it
// finds and handles (at most) one tag, or determines the frame's bytes
// are exhausted. finished reports the latter.
func (b *builder) step(idx int) (finished bool, err error) {
	f := b.frames[idx]
	data := b.data

	rest := data[f.dataPos:f.dataEnd]
	si := bytes.Index(rest, []byte(f.startDelim))
	if si < 0 {
		b.emitText(f.dataPos, f.dataEnd)
		f.dataPos = f.dataEnd
		b.frames[idx] = f
		return true, nil
	}

	tagStart := f.dataPos + int32(si)
	if si > 0 {
		b.emitText(f.dataPos, tagStart)
	}

	contentStart := tagStart + int32(len(f.startDelim))
	ei := bytes.Index(data[contentStart:f.dataEnd], []byte(f.endDelim))
	if ei < 0 {
		return false, newCompileError(KindClosureMismatch, f.name, int(tagStart-f.dataStart), "unterminated tag")
	}
	contentEnd := contentStart + int32(ei)
	tagEnd := contentEnd + int32(len(f.endDelim))

	trimStart, trimEnd := trimSpan(data, contentStart, contentEnd)
	if trimStart >= trimEnd {
		// Empty tag: treated as literal text, matching the source
		// system's tolerance for stray "{{}}".
		b.emitText(tagStart, tagEnd)
		f.dataPos = tagEnd
		b.frames[idx] = f
		return false, nil
	}

	sigil := data[trimStart]

	switch sigil {
	case '!':
		// comment, discarded

	case '=':
		if err := b.handleDelimChange(&f, data, trimStart, trimEnd); err != nil {
			return false, err
		}

	case '#', '^':
		if err := b.openSection(idx, &f, data, sigil, trimStart+1, trimEnd, tagEnd); err != nil {
			return false, err
		}

	case '/':
		if err := b.closeSection(&f, data, trimStart+1, trimEnd, tagStart); err != nil {
			return false, err
		}

	case '>':
		name := strings.TrimSpace(string(data[trimStart+1 : trimEnd]))
		if err := b.resolvePartial(idx, name); err != nil {
			return false, err
		}
		// resolvePartial may have pushed a new frame; refresh our local
		// copy of this frame's own (unchanged) fields before writing back.
		f = b.frames[idx]

	case '{':
		nameStart, nameEnd := trimSpan(data, trimStart+1, trimEnd)
		if len(f.endDelim) >= 1 && f.endDelim[0] == '}' && f.endDelim[len(f.endDelim)-1] == '}' &&
			tagEnd < f.dataEnd && data[tagEnd] == '}' {
			tagEnd++
		}
		if err := b.emitArg(f.name, data, nameStart, nameEnd, OpWriteArgUnescaped); err != nil {
			return false, err
		}

	case '&':
		nameStart, nameEnd := trimSpan(data, trimStart+1, trimEnd)
		if err := b.emitArg(f.name, data, nameStart, nameEnd, OpWriteArgUnescaped); err != nil {
			return false, err
		}

	case ':', '<':
		// Pass-through tag types inherited from the source system; not
		// standard Mustache. See SPEC_FULL.md §9 Open Questions.
		nameStart, nameEnd := trimSpan(data, trimStart+1, trimEnd)
		if err := b.emitArg(f.name, data, nameStart, nameEnd, OpWriteArg); err != nil {
			return false, err
		}

	default:
		if err := b.emitArg(f.name, data, trimStart, trimEnd, OpWriteArg); err != nil {
			return false, err
		}
	}

	f.dataPos = tagEnd
	b.frames[idx] = f
	return false, nil
}

func (b *builder) emitArg(template string, data []byte, start, end int32, op Opcode) error {
	if end-start > MaxNameLen {
		return newCompileError(KindNameTooLong, template, int(start), "name exceeds max length")
	}
	b.instr = append(b.instr, Instruction{Op: op, NamePos: start, NameLen: int16(end - start)})
	return nil
}

func (b *builder) handleDelimChange(f *loaderFrame, data []byte, start, end int32) error {
	if end <= start || data[end-1] != '=' {
		return newCompileError(KindClosureMismatch, f.name, int(start), "malformed delimiter change tag")
	}
	// drop the leading '=' sigil and the trailing '='
	body := strings.TrimSpace(string(data[start+1 : end-1]))
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return newCompileError(KindClosureMismatch, f.name, int(start), "delimiter change needs exactly two delimiters")
	}
	if len(parts[0]) >= MaxDelim || len(parts[1]) >= MaxDelim {
		return newCompileError(KindDelimiterTooLong, f.name, int(start), "delimiter exceeds max length")
	}
	f.startDelim, f.endDelim = parts[0], parts[1]
	b.l.logger.DebugDelimiter(f.name, f.startDelim, f.endDelim)
	return nil
}

func (b *builder) openSection(frameIdx int, f *loaderFrame, data []byte, sigil byte, start, end, bodyStart int32) error {
	if len(f.sections) >= b.l.maxNesting {
		return newCompileError(KindTooDeep, f.name, int(start), "section nesting exceeds limit")
	}
	nameStart, nameEnd := trimSpan(data, start, end)
	if nameEnd-nameStart > MaxNameLen {
		return newCompileError(KindNameTooLong, f.name, int(nameStart), "name exceeds max length")
	}

	op := OpSectionStart
	if sigil == '^' {
		op = OpSectionStartInv
	}

	instrIdx := len(b.instr)
	b.instr = append(b.instr, Instruction{
		Op:      op,
		NamePos: nameStart,
		NameLen: int16(nameEnd - nameStart),
		Offset:  int16(bodyStart - nameStart),
	})
	f.sections = append(f.sections, instrIdx)
	return nil
}

func (b *builder) closeSection(f *loaderFrame, data []byte, start, end, tagStart int32) error {
	nameStart, nameEnd := trimSpan(data, start, end)
	if len(f.sections) == 0 {
		return newCompileError(KindClosureMismatch, f.name, int(tagStart), "closing tag with no open section")
	}
	topIdx := f.sections[len(f.sections)-1]
	top := b.instr[topIdx]
	openName := data[top.NamePos : top.NamePos+int32(top.NameLen)]
	if !bytes.Equal(openName, data[nameStart:nameEnd]) {
		return newCompileError(KindClosureMismatch, f.name, int(tagStart), "mismatched closing tag name")
	}
	f.sections = f.sections[:len(f.sections)-1]

	bodyStart := top.NamePos + int32(top.Offset)
	endIdx := int32(len(b.instr))
	b.instr[topIdx].End = endIdx + 1
	b.instr[topIdx].Len = tagStart - bodyStart
	b.instr = append(b.instr, Instruction{Op: OpSectionEnd, Data: int32(topIdx)})
	return nil
}

// resolvePartial implements SPEC_FULL.md §4.1's partial resolution
// walk: search the parsing stack from the referencing frame outward for
// a directory whose path, joined with name (optionally suffixed
// ".mustache"), names an existing template, then either jump to it if
// already compiled or compile it fresh.
func (b *builder) resolvePartial(fromFrame int, name string) error {
	referrer := b.frames[fromFrame]
	if len(name) == 0 {
		return newCompileError(KindFileNameTooShort, referrer.name, 0, "partial name is empty")
	}
	if len(name) > MaxFileNameLen {
		return newCompileError(KindFileNameTooLong, referrer.name, 0, "partial name too long")
	}

	var found string
	lastTried := ""
	haveLastTried := false
	for i := fromFrame; i >= 0; i-- {
		f := b.frames[i]
		prefix := f.name[:f.pathLen]
		if haveLastTried && prefix == lastTried {
			continue
		}
		lastTried, haveLastTried = prefix, true

		candidate := prefix + name
		if b.l.resolver.Exists(candidate) {
			found = candidate
			break
		}
		candidate2 := candidate + ".mustache"
		if b.l.resolver.Exists(candidate2) {
			found = candidate2
			break
		}
		if f.pathLen == 0 {
			break
		}
	}

	if found == "" {
		if len(b.frames) > 0 && b.frames[0].name == name {
			b.l.logger.DebugPartial(name, true)
			b.instr = append(b.instr, Instruction{Op: OpSectionGoto, Len: 0, End: int32(len(b.instr) + 1)})
			return nil
		}
		return newCompileError(KindFileNotFound, referrer.name, 0, "partial \""+name+"\" not found")
	}

	for _, d := range b.dirs {
		if d.Name == found {
			b.l.logger.DebugPartial(found, true)
			b.instr = append(b.instr, Instruction{Op: OpSectionGoto, Len: d.InstStart, End: int32(len(b.instr) + 1)})
			return nil
		}
	}

	src, err := b.l.resolver.Resolve(found)
	if err != nil {
		return newCompileError(KindFileNotFound, referrer.name, 0, err.Error())
	}
	if len(src) >= math.MaxInt32 {
		return newCompileError(KindFileTooBig, found, 0, "partial exceeds max size")
	}
	b.l.logger.DebugPartial(found, false)
	_, err = b.pushFrame(found, src)
	return err
}

func (b *builder) finish() *Program {
	instr := make([]Instruction, len(b.instr))
	copy(instr, b.instr)
	data := make([]byte, len(b.data))
	copy(data, b.data)
	dirs := make([]dirEntry, len(b.dirs))
	copy(dirs, b.dirs)
	return &Program{instructions: instr, data: data, dirs: dirs}
}
