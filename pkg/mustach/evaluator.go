package mustach

import "fmt"

// Callbacks binds a Program to a value model. Evaluate never inspects
// data itself; every decision about truthiness, iteration count, and how
// a name renders belongs to the host. See valuemap.go for the default
// map[string]any binding used by Engine.
type Callbacks interface {
	// OnText is called once per WRITE_TEXT instruction with the literal
	// bytes to emit.
	OnText(text []byte) error

	// OnArg is called for WRITE_ARG and WRITE_ARG_UNESCAPED instructions.
	// sec is the enclosing section's handle (nil at the top level only if
	// the program has no root, which never happens for a compiled
	// Program). escape reports whether the host should HTML-escape the
	// resolved value before writing it.
	OnArg(sec *Section, name string, escape bool) error

	// OnSectionTest is called once when a SECTION_START/SECTION_START_INV
	// instruction is reached. It reports whether the named value is
	// truthy (for an inverted section, whether the body should run at
	// all is the caller's decision to encode in truthy) and, for a
	// truthy non-inverted section, how many times its body should
	// repeat. A falsy result skips the body entirely.
	OnSectionTest(sec *Section, name string, inverted bool) (truthy bool, count int, err error)

	// OnSectionStart is called once when a section's body is about to
	// run, and again before each subsequent iteration of a repeated
	// section, so the host can rebind sec's user data (via
	// Section.SetUserData) to the current element.
	OnSectionStart(sec *Section) error

	// OnFormattingError notifies the host that evaluation failed: either
	// another callback method returned err (Evaluate then unwinds with an
	// EvalError of KindUserAborted wrapping it), or Evaluate itself hit
	// the nesting limit or an unknown opcode (err is then that
	// KindTooDeep/KindUnknownOpcode EvalError, which Evaluate returns).
	// It does not decide the outcome: Evaluate always unwinds immediately
	// afterward. Hosts that want to log or record the failure do so here;
	// there is no way to recover and continue evaluation.
	OnFormattingError(err error)
}

// sectionFrame is one entry on the evaluator's section stack: either a
// named section's iteration state, or a passthrough frame for the
// template's root wrapper or a partial invoked via SECTION_GOTO (both of
// which run their body exactly once with no OnSectionTest/OnSectionStart
// call at push time).
type sectionFrame struct {
	instrIdx  int32
	bodyStart int32
	end       int32
	dataStart int32
	dataEnd   int32
	index     int
	count     int
	udata1    any
	udata2    any
}

// Section is a handle onto one entry of the evaluator's live section
// stack, given to Callbacks methods so they can walk ancestor context and
// stash per-iteration state. A Section is valid only for the duration of
// the callback call that received it; do not retain one past that call.
type Section struct {
	prog   *Program
	frames []sectionFrame
	depth  int
}

// Name returns the section's tag name, or "" for the root wrapper or a
// partial invocation frame.
func (s *Section) Name() string {
	inst := s.prog.instructions[s.frames[s.depth].instrIdx]
	if inst.NameLen == 0 {
		return ""
	}
	return string(s.prog.data[inst.NamePos : inst.NamePos+int32(inst.NameLen)])
}

// Inverted reports whether this section was opened with {{^ ... }}.
func (s *Section) Inverted() bool {
	return s.prog.instructions[s.frames[s.depth].instrIdx].Op == OpSectionStartInv
}

// Index returns the zero-based iteration number currently running.
func (s *Section) Index() int { return s.frames[s.depth].index }

// Count returns the total number of iterations OnSectionTest reported.
func (s *Section) Count() int { return s.frames[s.depth].count }

// BodyText returns the section's raw, unevaluated source text.
func (s *Section) BodyText() []byte {
	f := s.frames[s.depth]
	return s.prog.data[f.dataStart:f.dataEnd]
}

// Parent returns the enclosing section's handle, or nil at the root.
func (s *Section) Parent() *Section {
	if s.depth == 0 {
		return nil
	}
	return &Section{prog: s.prog, frames: s.frames, depth: s.depth - 1}
}

// UserData returns the two opaque values last bound to this section via
// SetUserData, or the values passed to Evaluate for the root.
func (s *Section) UserData() (any, any) {
	f := s.frames[s.depth]
	return f.udata1, f.udata2
}

// SetUserData rebinds this section's opaque context, typically called
// from OnSectionStart to point at the current loop element.
func (s *Section) SetUserData(u1, u2 any) {
	s.frames[s.depth].udata1 = u1
	s.frames[s.depth].udata2 = u2
}

// Evaluate walks p's instructions against cb, starting with the root
// section bound to udata1/udata2. p is read-only throughout; Evaluate may
// be called concurrently from any number of goroutines against the same
// Program.
func Evaluate(p *Program, cb Callbacks, udata1, udata2 any) error {
	if p == nil || len(p.instructions) == 0 {
		return nil
	}

	root := p.instructions[0]
	frames := make([]sectionFrame, 1, 8)
	frames[0] = sectionFrame{
		instrIdx:  0,
		bodyStart: 1,
		end:       root.End,
		dataStart: root.NamePos + int32(root.Offset),
		dataEnd:   root.NamePos + int32(root.Offset) + root.Len,
		index:     0,
		count:     1,
		udata1:    udata1,
		udata2:    udata2,
	}

	pos := int32(1)
	for len(frames) > 0 {
		inst := p.instructions[pos]
		switch inst.Op {

		case OpWriteText:
			text := p.data[inst.NamePos : inst.NamePos+int32(inst.NameLen)]
			if aerr := abortOn(cb, cb.OnText(text)); aerr != nil {
				return aerr
			}
			pos++

		case OpWriteArg, OpWriteArgUnescaped:
			name := string(p.data[inst.NamePos : inst.NamePos+int32(inst.NameLen)])
			sec := &Section{prog: p, frames: frames, depth: len(frames) - 1}
			err := cb.OnArg(sec, name, inst.Op == OpWriteArg)
			if aerr := abortOn(cb, err); aerr != nil {
				return aerr
			}
			pos++

		case OpSectionGoto:
			if len(frames) >= MaxNesting {
				derr := newEvalError(KindTooDeep, "partial invocation exceeds nesting limit", nil)
				cb.OnFormattingError(derr)
				return derr
			}
			target := inst.Len
			parent := frames[len(frames)-1]
			tinst := p.instructions[target]
			frames = append(frames, sectionFrame{
				instrIdx:  target,
				bodyStart: target + 1,
				end:       inst.End,
				dataStart: tinst.NamePos + int32(tinst.Offset),
				dataEnd:   tinst.NamePos + int32(tinst.Offset) + tinst.Len,
				index:     0,
				count:     1,
				udata1:    parent.udata1,
				udata2:    parent.udata2,
			})
			GetLogger().DebugFrame(OpSectionGoto, "", len(frames))
			pos = target + 1

		case OpSectionStart, OpSectionStartInv:
			name := ""
			if inst.NameLen > 0 {
				name = string(p.data[inst.NamePos : inst.NamePos+int32(inst.NameLen)])
			}
			truthy, count := true, 1
			if inst.NameLen > 0 {
				parentSec := &Section{prog: p, frames: frames, depth: len(frames) - 1}
				var err error
				truthy, count, err = cb.OnSectionTest(parentSec, name, inst.Op == OpSectionStartInv)
				if err != nil {
					if aerr := abortOn(cb, err); aerr != nil {
						return aerr
					}
					truthy = false
				}
			}
			if !truthy {
				pos = inst.End
				break
			}
			if len(frames) >= MaxNesting {
				derr := newEvalError(KindTooDeep, "section nesting exceeds limit", nil)
				cb.OnFormattingError(derr)
				return derr
			}
			if count < 1 {
				count = 1
			}
			parent := frames[len(frames)-1]
			frames = append(frames, sectionFrame{
				instrIdx:  pos,
				bodyStart: pos + 1,
				end:       inst.End,
				dataStart: inst.NamePos + int32(inst.Offset),
				dataEnd:   inst.NamePos + int32(inst.Offset) + inst.Len,
				index:     0,
				count:     count,
				udata1:    parent.udata1,
				udata2:    parent.udata2,
			})
			GetLogger().DebugFrame(inst.Op, name, len(frames))
			if inst.NameLen > 0 {
				sec := &Section{prog: p, frames: frames, depth: len(frames) - 1}
				if aerr := abortOn(cb, cb.OnSectionStart(sec)); aerr != nil {
					return aerr
				}
			}
			pos++

		case OpSectionEnd:
			top := &frames[len(frames)-1]
			top.index++
			if top.index < top.count {
				sec := &Section{prog: p, frames: frames, depth: len(frames) - 1}
				if aerr := abortOn(cb, cb.OnSectionStart(sec)); aerr != nil {
					return aerr
				}
				pos = top.bodyStart
			} else {
				pos = top.end
				frames = frames[:len(frames)-1]
				GetLogger().DebugFrame(OpSectionEnd, "", len(frames))
			}

		default:
			oerr := newEvalError(KindUnknownOpcode, fmt.Sprintf("unknown opcode %d at instruction %d", inst.Op, pos), nil)
			cb.OnFormattingError(oerr)
			return oerr
		}
	}
	return nil
}

// abortOn notifies cb of a non-nil callback error via OnFormattingError,
// then unconditionally unwinds Evaluate with an EvalError wrapping it.
// OnFormattingError is a notification, not a recovery hook: there is no
// path back into the instruction loop once a callback has failed.
func abortOn(cb Callbacks, err error) error {
	if err == nil {
		return nil
	}
	cb.OnFormattingError(err)
	return newEvalError(KindUserAborted, "callback aborted evaluation", err)
}
