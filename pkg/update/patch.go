package update

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
)

// Operation is one RFC 6902 patch operation.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON keeps an explicit null value on add/replace.
func (o Operation) MarshalJSON() ([]byte, error) {
	if o.Op == "remove" {
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
	return json.Marshal(struct {
		Op    string `json:"op"`
		Path  string `json:"path"`
		Value any    `json:"value"`
	}{o.Op, o.Path, o.Value})
}

// Operations renders set as RFC 6902 operations valid against doc.
// Missing intermediate objects are created with "add", sequences are padded
// with null, and removals of absent paths are dropped.
func Operations(doc core.Document, set core.UpdateSet) []Operation {
	b := &patchBuilder{work: core.Clone(doc)}
	if b.work == nil {
		b.work = core.Document{}
	}

	for _, path := range removalOrder(set) {
		p := pointer.FromTokens(pointer.SplitDotted(path)...)
		if _, ok := p.Get(b.work); !ok {
			continue
		}
		b.ops = append(b.ops, Operation{Op: "remove", Path: p.String()})
		p.Delete(b.work)
	}

	for _, path := range assignmentOrder(set) {
		tokens := pointer.SplitDotted(path)
		if len(tokens) == 0 {
			continue
		}
		b.assign(tokens, set.Assignments[path])
	}
	return b.ops
}

// Patch renders set as an RFC 6902 JSON document valid against doc.
func Patch(doc core.Document, set core.UpdateSet) ([]byte, error) {
	ops := Operations(doc, set)
	if ops == nil {
		ops = []Operation{}
	}
	return json.Marshal(ops)
}

// ApplyJSON applies set to a raw JSON document through an RFC 6902 patch.
func ApplyJSON(raw []byte, set core.UpdateSet) ([]byte, error) {
	var doc core.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid json document: %w", err)
	}
	if set.IsEmpty() {
		return raw, nil
	}

	data, err := Patch(doc, set)
	if err != nil {
		return nil, fmt.Errorf("failed to render patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	out, err := patch.Apply(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}
	return out, nil
}

type patchBuilder struct {
	work core.Document
	ops  []Operation
}

func (b *patchBuilder) emit(op string, tokens []string, value any) {
	p := pointer.FromTokens(tokens...)
	b.ops = append(b.ops, Operation{Op: op, Path: p.String(), Value: value})
	_ = p.Set(b.work, cloneAny(value))
}

func (b *patchBuilder) lookup(tokens []string) any {
	if len(tokens) == 0 {
		return b.work
	}
	v, _ := pointer.FromTokens(tokens...).Get(b.work)
	return v
}

func (b *patchBuilder) assign(tokens []string, value any) {
	for i := range tokens {
		parentTokens, key := tokens[:i], tokens[i]
		last := i == len(tokens)-1

		var next any = map[string]any{}
		if last {
			next = value
		}

		parent := b.lookup(parentTokens)
		if arr, ok := parent.([]any); ok {
			idx, ok := pointer.Index(key)
			if !ok {
				// a named key under a sequence replaces it with an object
				b.emit("replace", parentTokens, map[string]any{})
				parent = b.lookup(parentTokens)
			} else {
				for n := len(arr); n < idx; n++ {
					b.emit("add", extend(parentTokens, fmt.Sprint(n)), nil)
				}
				arr, _ = b.lookup(parentTokens).([]any)
				here := extend(parentTokens, key)
				switch {
				case idx < len(arr) && (last || !isContainer(arr[idx])):
					b.emit("replace", here, next)
				case idx >= len(arr):
					b.emit("add", here, next)
				}
				continue
			}
		}

		obj, _ := parent.(map[string]any)
		child, exists := obj[key]
		here := extend(parentTokens, key)
		switch {
		case last && exists:
			b.emit("replace", here, next)
		case last:
			b.emit("add", here, next)
		case !exists:
			b.emit("add", here, next)
		case !isContainer(child):
			b.emit("replace", here, next)
		}
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func extend(tokens []string, key string) []string {
	out := make([]string, len(tokens), len(tokens)+1)
	copy(out, tokens)
	return append(out, key)
}
