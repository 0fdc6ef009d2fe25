// Package update compiles document diffs into update sets and applies them.
package update

import (
	"strconv"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/diff"
	"github.com/aretw0/silo/pkg/pointer"
)

// Compile folds a change sequence into assignments and removals keyed by
// dotted path. Array changes address the element by its decimal index.
// A path produced twice keeps its last occurrence.
func Compile(changes []diff.Change) core.UpdateSet {
	set := core.NewUpdateSet()
	for _, c := range changes {
		path, kind, value := c.Path, c.Kind, c.New
		if c.Kind == diff.Array && c.Item != nil {
			path = append(append([]string(nil), c.Path...), strconv.Itoa(c.Index))
			kind, value = c.Item.Kind, c.Item.New
		}

		key := pointer.Dotted(path)
		switch kind {
		case diff.Added, diff.Edited:
			set.Assign(key, value)
		case diff.Deleted:
			set.Remove(key)
		}
	}
	return set
}

// Between diffs original against updated and compiles the result.
func Between(original, updated core.Document, opts ...diff.Option) core.UpdateSet {
	return Compile(diff.Diff(original, updated, opts...))
}
