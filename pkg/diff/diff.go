// Package diff compares two documents and reports field-level changes.
//
// The traversal is depth first. Keys of the updated document are visited in
// sorted order, then keys only present in the original are reported as
// deletions. Sequences are compared by position: a reordering shows up as
// edits at each differing index, never as a move.
package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Kind classifies a change.
type Kind int

const (
	// Added marks a key or index present only in the updated document.
	Added Kind = iota + 1
	// Edited marks a value that differs between the two documents.
	Edited
	// Deleted marks a key or index present only in the original document.
	Deleted
	// Array marks a change to one element of a sequence; see Change.Item.
	Array
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "N"
	case Edited:
		return "E"
	case Deleted:
		return "D"
	case Array:
		return "A"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Change is one detected difference.
type Change struct {
	Kind Kind
	// Path leads to the changed key; for Array changes it leads to the sequence.
	Path []string
	Old  any
	New  any
	// Index and Item are set on Array changes only.
	Index int
	Item  *Change
}

// Filter reports whether key under path must be left out of the diff.
type Filter func(path []string, key string) bool

// Option tunes a Diff call.
type Option func(*differ)

// WithFilter skips every key (or index) for which f returns true.
func WithFilter(f Filter) Option {
	return func(d *differ) {
		d.filter = f
	}
}

type differ struct {
	filter  Filter
	changes []Change
}

// Diff returns the changes turning original into updated.
func Diff(original, updated map[string]any, opts ...Option) []Change {
	d := &differ{}
	for _, opt := range opts {
		opt(d)
	}
	d.objects(nil, original, updated)
	return d.changes
}

func (d *differ) skip(path []string, key string) bool {
	return d.filter != nil && d.filter(path, key)
}

func (d *differ) objects(path []string, lhs, rhs map[string]any) {
	for _, key := range sortedKeys(rhs) {
		if d.skip(path, key) {
			continue
		}
		next := extend(path, key)
		rv := rhs[key]
		lv, ok := lhs[key]
		if !ok {
			d.emit(Change{Kind: Added, Path: next, New: rv})
			continue
		}
		d.values(next, lv, rv)
	}

	for _, key := range sortedKeys(lhs) {
		if _, ok := rhs[key]; ok {
			continue
		}
		if d.skip(path, key) {
			continue
		}
		d.emit(Change{Kind: Deleted, Path: extend(path, key), Old: lhs[key]})
	}
}

func (d *differ) values(path []string, lhs, rhs any) {
	lm, lok := lhs.(map[string]any)
	rm, rok := rhs.(map[string]any)
	if lok && rok {
		d.objects(path, lm, rm)
		return
	}

	la, lok := asSlice(lhs)
	ra, rok := asSlice(rhs)
	if lok && rok {
		d.arrays(path, la, ra)
		return
	}

	if !Equal(lhs, rhs) {
		d.emit(Change{Kind: Edited, Path: path, Old: lhs, New: rhs})
	}
}

func (d *differ) arrays(path []string, lhs, rhs []any) {
	common := min(len(lhs), len(rhs))

	for i := 0; i < common; i++ {
		key := strconv.Itoa(i)
		if d.skip(path, key) {
			continue
		}
		if sameContainer(lhs[i], rhs[i]) {
			d.values(extend(path, key), lhs[i], rhs[i])
			continue
		}
		if !Equal(lhs[i], rhs[i]) {
			d.emit(Change{Kind: Array, Path: path, Index: i,
				Item: &Change{Kind: Edited, Old: lhs[i], New: rhs[i]}})
		}
	}

	for i := common; i < len(rhs); i++ {
		if d.skip(path, strconv.Itoa(i)) {
			continue
		}
		d.emit(Change{Kind: Array, Path: path, Index: i,
			Item: &Change{Kind: Added, New: rhs[i]}})
	}

	for i := len(lhs) - 1; i >= common; i-- {
		if d.skip(path, strconv.Itoa(i)) {
			continue
		}
		d.emit(Change{Kind: Array, Path: path, Index: i,
			Item: &Change{Kind: Deleted, Old: lhs[i]}})
	}
}

func (d *differ) emit(c Change) {
	d.changes = append(d.changes, c)
}

func sameContainer(a, b any) bool {
	_, am := a.(map[string]any)
	_, bm := b.(map[string]any)
	if am && bm {
		return true
	}
	_, as := asSlice(a)
	_, bs := asSlice(b)
	return as && bs
}

// asSlice views any slice value as []any.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func extend(path []string, key string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	return append(next, key)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
