package query

import (
	"fmt"
	"sort"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
)

// Window sorts docs in place by opts.Sort and returns the Skip/Limit window.
// Missing fields sort first; values of different families keep their order.
func Window(docs []core.Document, opts core.FindOptions) ([]core.Document, error) {
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("skip and limit must not be negative")
	}

	if len(opts.Sort) > 0 {
		keys := make([]pointer.Pointer, len(opts.Sort))
		for i, s := range opts.Sort {
			p, err := pointer.Parse(s.Field)
			if err != nil {
				return nil, err
			}
			keys[i] = p
		}
		sort.SliceStable(docs, func(i, j int) bool {
			for k, s := range opts.Sort {
				c := compareField(keys[k], docs[i], docs[j])
				if c == 0 {
					continue
				}
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Skip >= int64(len(docs)) {
		return []core.Document{}, nil
	}
	docs = docs[opts.Skip:]
	if opts.Limit > 0 && opts.Limit < int64(len(docs)) {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

func compareField(p pointer.Pointer, a, b core.Document) int {
	av, aok := p.Get(a)
	bv, bok := p.Get(b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	c, _ := Compare(av, bv)
	return c
}
