package mustach

import (
	"fmt"
	"html"
	"strings"
)

// mapCallbacks is the default Callbacks binding over nested
// map[string]any / []any values, with standard Mustache truthiness:
// nil, false, "", and empty slices are falsy; everything else, including
// zero numbers, is truthy. It is what Engine.Render uses internally;
// most callers never construct one directly.
type mapCallbacks struct {
	w      strings.Builder
	strict bool
}

// newMapCallbacks returns the default value-map Callbacks; the data itself
// is passed to Evaluate as the root udata1. In strict mode a
// top-level name that resolves to nothing aborts evaluation instead of
// rendering as empty.
func newMapCallbacks(strict bool) *mapCallbacks {
	return &mapCallbacks{strict: strict}
}

func (m *mapCallbacks) OnText(text []byte) error {
	m.w.Write(text)
	return nil
}

func (m *mapCallbacks) OnArg(sec *Section, name string, escape bool) error {
	val, ok := lookupValue(sec, name)
	if !ok {
		if m.strict {
			return fmt.Errorf("mustach: %q not found", name)
		}
		return nil
	}
	s := stringifyValue(val)
	if escape {
		s = html.EscapeString(s)
	}
	m.w.WriteString(s)
	return nil
}

func (m *mapCallbacks) OnSectionTest(sec *Section, name string, inverted bool) (bool, int, error) {
	val, ok := lookupValue(sec, name)
	truthy, count := valueTruthiness(val, ok)
	if inverted {
		return !truthy, 1, nil
	}
	return truthy, count, nil
}

func (m *mapCallbacks) OnSectionStart(sec *Section) error {
	if sec.Inverted() {
		u1, u2 := sec.Parent().UserData()
		sec.SetUserData(u1, u2)
		return nil
	}

	val, ok := lookupValue(sec.Parent(), sec.Name())
	if !ok {
		sec.SetUserData(nil, nil)
		return nil
	}

	switch v := val.(type) {
	case []any:
		if sec.Index() < len(v) {
			sec.SetUserData(v[sec.Index()], nil)
		} else {
			sec.SetUserData(nil, nil)
		}
	case map[string]any:
		sec.SetUserData(v, nil)
	default:
		// Truthy scalar section: body runs once against the enclosing
		// context, e.g. {{#loggedIn}}Hi{{/loggedIn}}.
		u1, u2 := sec.Parent().UserData()
		sec.SetUserData(u1, u2)
	}
	return nil
}

func (m *mapCallbacks) OnFormattingError(err error) {}

// lookupValue resolves a possibly dotted name by walking sec and its
// ancestors, returning the first match. The name "." refers to the
// section's own bound value.
func lookupValue(sec *Section, name string) (any, bool) {
	if sec == nil {
		return nil, false
	}
	if name == "." {
		u1, _ := sec.UserData()
		return u1, u1 != nil
	}

	parts := strings.Split(name, ".")
	for s := sec; s != nil; s = s.Parent() {
		u1, _ := s.UserData()
		if val, ok := resolvePath(u1, parts); ok {
			return val, true
		}
	}
	return nil, false
}

func resolvePath(root any, parts []string) (any, bool) {
	cur := root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func valueTruthiness(val any, ok bool) (truthy bool, count int) {
	if !ok || val == nil {
		return false, 0
	}
	switch v := val.(type) {
	case bool:
		if v {
			return true, 1
		}
		return false, 0
	case string:
		if v == "" {
			return false, 0
		}
		return true, 1
	case []any:
		return len(v) > 0, len(v)
	default:
		return true, 1
	}
}

func stringifyValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Render evaluates p against data using the default value-map binding,
// with lookup misses rendering as empty text.
func Render(p *Program, data map[string]any) (string, error) {
	return RenderStrict(p, data, false)
}

// RenderStrict is Render with strict set explicitly, so a missing
// top-level name aborts with an EvalError instead of rendering empty.
func RenderStrict(p *Program, data map[string]any, strict bool) (string, error) {
	cb := newMapCallbacks(strict)
	if err := Evaluate(p, cb, map[string]any(data), nil); err != nil {
		return "", err
	}
	return cb.w.String(), nil
}
