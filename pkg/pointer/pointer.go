// Package pointer resolves field paths against documents.
//
// Two spellings are accepted: RFC 6901 slash pointers ("/meta/created")
// and dotted paths ("meta.created"). Both parse into the same Pointer.
package pointer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNilDocument is returned when writing through a pointer into a nil document.
var ErrNilDocument = errors.New("pointer: nil document")

// InvalidPointerError reports an expression that is not a well-formed path.
type InvalidPointerError struct {
	Expr   any
	Reason string
}

func (e *InvalidPointerError) Error() string {
	return fmt.Sprintf("invalid pointer %#v: %s", e.Expr, e.Reason)
}

// Pointer is a parsed, immutable path expression.
type Pointer struct {
	tokens []string
}

// Parse parses a slash or dotted path expression.
func Parse(expr string) (Pointer, error) {
	switch {
	case expr == "":
		return Pointer{}, &InvalidPointerError{Expr: expr, Reason: "empty expression"}
	case strings.HasPrefix(expr, "/"):
		return parseSlash(expr)
	default:
		return parseDotted(expr)
	}
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) Pointer {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Resolve turns a string or an existing Pointer into a Pointer.
func Resolve(v any) (Pointer, error) {
	switch x := v.(type) {
	case Pointer:
		if len(x.tokens) == 0 {
			return Pointer{}, &InvalidPointerError{Expr: v, Reason: "empty pointer"}
		}
		return x, nil
	case *Pointer:
		if x == nil || len(x.tokens) == 0 {
			return Pointer{}, &InvalidPointerError{Expr: v, Reason: "empty pointer"}
		}
		return *x, nil
	case string:
		return Parse(x)
	default:
		return Pointer{}, &InvalidPointerError{Expr: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// ResolveAll resolves every expression, failing on the first invalid one.
func ResolveAll(exprs []any) ([]Pointer, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Pointer, 0, len(exprs))
	for _, e := range exprs {
		p, err := Resolve(e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FromTokens builds a pointer from raw path segments.
func FromTokens(tokens ...string) Pointer {
	return Pointer{tokens: append([]string(nil), tokens...)}
}

func parseSlash(expr string) (Pointer, error) {
	raw := strings.Split(expr[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		if t == "" {
			return Pointer{}, &InvalidPointerError{Expr: expr, Reason: "empty segment"}
		}
		if strings.Contains(strings.ReplaceAll(strings.ReplaceAll(t, "~0", ""), "~1", ""), "~") {
			return Pointer{}, &InvalidPointerError{Expr: expr, Reason: "bad escape in " + strconv.Quote(t)}
		}
		tokens[i] = strings.ReplaceAll(strings.ReplaceAll(t, "~1", "/"), "~0", "~")
	}
	return Pointer{tokens: tokens}, nil
}

func parseDotted(expr string) (Pointer, error) {
	tokens := strings.Split(expr, ".")
	for _, t := range tokens {
		if t == "" {
			return Pointer{}, &InvalidPointerError{Expr: expr, Reason: "empty segment"}
		}
	}
	return Pointer{tokens: tokens}, nil
}

// Tokens returns a copy of the path segments.
func (p Pointer) Tokens() []string {
	return append([]string(nil), p.tokens...)
}

// IsZero reports whether p was never parsed.
func (p Pointer) IsZero() bool { return len(p.tokens) == 0 }

// Dotted renders the pointer as a dotted path.
func (p Pointer) Dotted() string {
	return Dotted(p.tokens)
}

// String renders the pointer in RFC 6901 form.
func (p Pointer) String() string {
	var b strings.Builder
	for _, t := range p.tokens {
		b.WriteByte('/')
		b.WriteString(Escape(t))
	}
	return b.String()
}

// Get returns the value at the pointer, and whether it exists.
func (p Pointer) Get(doc map[string]any) (any, bool) {
	if len(p.tokens) == 0 || doc == nil {
		return nil, false
	}
	var cur any = doc
	for _, t := range p.tokens {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[t]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := index(t)
			if !ok || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set assigns value at the pointer, creating intermediate mappings.
// Array segments index existing sequences; an index past the end pads the
// sequence with nil.
func (p Pointer) Set(doc map[string]any, value any) error {
	if doc == nil {
		return ErrNilDocument
	}
	if len(p.tokens) == 0 {
		return &InvalidPointerError{Expr: p, Reason: "empty pointer"}
	}
	setIn(doc, p.tokens, value)
	return nil
}

// setIn writes value under container and returns the (possibly grown or
// replaced) container.
func setIn(container any, tokens []string, value any) any {
	head, rest := tokens[0], tokens[1:]

	if arr, ok := container.([]any); ok {
		if i, ok := index(head); ok {
			for len(arr) <= i {
				arr = append(arr, nil)
			}
			if len(rest) == 0 {
				arr[i] = value
			} else {
				arr[i] = setIn(arr[i], rest, value)
			}
			return arr
		}
		// a non-numeric key on a sequence turns it into a mapping
		container = nil
	}

	m, ok := container.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	if len(rest) == 0 {
		m[head] = value
	} else {
		m[head] = setIn(m[head], rest, value)
	}
	return m
}

// Delete removes the value at the pointer. Removing an array element shifts
// the following elements down. It reports whether anything was removed.
func (p Pointer) Delete(doc map[string]any) bool {
	if len(p.tokens) == 0 || doc == nil {
		return false
	}
	parent := Pointer{tokens: p.tokens[:len(p.tokens)-1]}
	last := p.tokens[len(p.tokens)-1]

	var container any = doc
	if len(parent.tokens) > 0 {
		v, ok := parent.Get(doc)
		if !ok {
			return false
		}
		container = v
	}

	switch c := container.(type) {
	case map[string]any:
		if _, ok := c[last]; !ok {
			return false
		}
		delete(c, last)
		return true
	case []any:
		i, ok := index(last)
		if !ok || i >= len(c) {
			return false
		}
		shrunk := append(c[:i:i], c[i+1:]...)
		// The parent holds the slice header by value; write the shorter one back.
		if err := parent.Set(doc, shrunk); err != nil {
			return false
		}
		return true
	default:
		return false
	}
}

// Escape applies RFC 6901 escaping to one segment.
func Escape(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

// Dotted joins segments with '.'.
func Dotted(tokens []string) string {
	return strings.Join(tokens, ".")
}

// SplitDotted splits a dotted path into segments.
func SplitDotted(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Index parses an array index segment.
func Index(token string) (int, bool) {
	return index(token)
}

func index(token string) (int, bool) {
	if token == "" || (len(token) > 1 && token[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(token)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
