package update

import (
	"sort"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
)

// Apply returns a copy of doc with set applied: removals first, highest
// array index first so earlier removals do not shift later ones, then
// assignments in ascending path order so appended elements land in place.
func Apply(doc core.Document, set core.UpdateSet) (core.Document, error) {
	out := core.Clone(doc)
	if out == nil {
		out = core.Document{}
	}

	for _, path := range removalOrder(set) {
		pointer.FromTokens(pointer.SplitDotted(path)...).Delete(out)
	}

	for _, path := range assignmentOrder(set) {
		p := pointer.FromTokens(pointer.SplitDotted(path)...)
		if err := p.Set(out, cloneAny(set.Assignments[path])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cloneAny(v any) any {
	return core.Clone(core.Document{"v": v})["v"]
}

func removalOrder(set core.UpdateSet) []string {
	paths := make([]string, 0, len(set.Removals))
	for p := range set.Removals {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return comparePaths(paths[i], paths[j]) > 0 })
	return paths
}

func assignmentOrder(set core.UpdateSet) []string {
	paths := make([]string, 0, len(set.Assignments))
	for p := range set.Assignments {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return comparePaths(paths[i], paths[j]) < 0 })
	return paths
}

// comparePaths orders dotted paths segment by segment, numerically when both
// segments are array indexes ("arr.9" < "arr.10").
func comparePaths(a, b string) int {
	as, bs := pointer.SplitDotted(a), pointer.SplitDotted(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		ai, aok := pointer.Index(as[i])
		bi, bok := pointer.Index(bs[i])
		if aok && bok {
			if ai < bi {
				return -1
			}
			return 1
		}
		if as[i] < bs[i] {
			return -1
		}
		return 1
	}
	return len(as) - len(bs)
}
