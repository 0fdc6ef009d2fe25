package update_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/diff"
	"github.com/aretw0/silo/pkg/update"
)

func TestCompile_Scenario(t *testing.T) {
	stored := core.Document{"_id": "1", "a": 1, "arr": []any{1, 2}}
	next := core.Document{"_id": "1", "arr": []any{1, 2, 3}}

	set := update.Between(stored, next)

	assert.Equal(t, map[string]any{"arr.2": 3}, set.Assignments)
	assert.Equal(t, map[string]struct{}{"a": {}}, set.Removals)

	applied, err := update.Apply(stored, set)
	require.NoError(t, err)
	assert.Equal(t, next, applied)
}

func TestCompile_ArrayTruncationIsRemoval(t *testing.T) {
	set := update.Between(core.Document{"arr": []any{"x", "y"}}, core.Document{"arr": []any{"x"}})

	assert.Empty(t, set.Assignments)
	assert.Equal(t, []string{"arr.1"}, set.RemovalPaths())
}

func TestCompile_ArrayAppendIsIndexedAssignment(t *testing.T) {
	set := update.Between(core.Document{"arr": []any{"x"}}, core.Document{"arr": []any{"x", "y"}})

	assert.Equal(t, map[string]any{"arr.1": "y"}, set.Assignments)
	assert.Empty(t, set.Removals)
}

func TestCompile_Empty(t *testing.T) {
	set := update.Compile(nil)
	assert.True(t, set.IsEmpty())

	doc := core.Document{"a": map[string]any{"b": []any{1, 2}}}
	assert.True(t, update.Between(doc, core.Clone(doc)).IsEmpty())
}

func TestCompile_LaterPathWins(t *testing.T) {
	set := update.Compile([]diff.Change{
		{Kind: diff.Added, Path: []string{"a"}, New: 1},
		{Kind: diff.Deleted, Path: []string{"a"}, Old: 1},
		{Kind: diff.Edited, Path: []string{"b"}, Old: 1, New: 2},
		{Kind: diff.Edited, Path: []string{"b"}, Old: 2, New: 3},
	})

	assert.Equal(t, map[string]any{"b": 3}, set.Assignments)
	assert.Equal(t, []string{"a"}, set.RemovalPaths())
}

func TestCompile_NestedPaths(t *testing.T) {
	set := update.Between(
		core.Document{"profile": map[string]any{"name": "a", "tags": []any{map[string]any{"k": 1}}}},
		core.Document{"profile": map[string]any{"name": "b", "tags": []any{map[string]any{"k": 2}}}},
	)

	assert.Equal(t, map[string]any{"profile.name": "b", "profile.tags.0.k": 2}, set.Assignments)
}

// roundTrip covers the core property: applying the compiled diff of A and B
// to A yields B, both natively and through an RFC 6902 patch.
func TestApply_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		a, b core.Document
	}{
		{"scalars", core.Document{"a": 1.0, "b": "x"}, core.Document{"a": 2.0, "c": true}},
		{"nested", core.Document{"o": map[string]any{"x": 1.0, "y": 2.0}}, core.Document{"o": map[string]any{"y": 3.0, "z": 4.0}}},
		{"grow", core.Document{"arr": []any{1.0}}, core.Document{"arr": []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, 10.0, 11.0}}},
		{"shrink", core.Document{"arr": []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, 10.0, 11.0}}, core.Document{"arr": []any{1.0}}},
		{"empty", core.Document{"arr": []any{1.0, 2.0}}, core.Document{"arr": []any{}}},
		{"reorder", core.Document{"arr": []any{"a", "b", "c"}}, core.Document{"arr": []any{"c", "b", "a"}}},
		{"type change", core.Document{"v": []any{1.0}}, core.Document{"v": map[string]any{"k": 1.0}}},
		{"objects in arrays", core.Document{"arr": []any{map[string]any{"k": 1.0}, map[string]any{"k": 2.0}}}, core.Document{"arr": []any{map[string]any{"k": 1.0, "j": 0.0}}}},
		{"null value", core.Document{"a": 1.0}, core.Document{"a": nil}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := update.Between(tc.a, tc.b)

			native, err := update.Apply(tc.a, set)
			require.NoError(t, err)
			assert.Equal(t, tc.b, native)

			raw, err := json.Marshal(tc.a)
			require.NoError(t, err)
			patched, err := update.ApplyJSON(raw, set)
			require.NoError(t, err)

			var got core.Document
			require.NoError(t, json.Unmarshal(patched, &got))
			assert.Equal(t, tc.b, got)
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	doc := core.Document{"arr": []any{1, 2}, "o": map[string]any{"k": 1}}
	set := update.Between(doc, core.Document{"arr": []any{1}, "o": map[string]any{"k": 2}})

	_, err := update.Apply(doc, set)
	require.NoError(t, err)
	assert.Equal(t, core.Document{"arr": []any{1, 2}, "o": map[string]any{"k": 1}}, doc)
}

func TestOperations_CreatesIntermediates(t *testing.T) {
	set := core.NewUpdateSet()
	set.Assign("meta.audit.updated", "t1")
	set.Remove("missing")

	ops := update.Operations(core.Document{"a": 1}, set)
	require.Len(t, ops, 3)
	assert.Equal(t, update.Operation{Op: "add", Path: "/meta", Value: map[string]any{}}, ops[0])
	assert.Equal(t, update.Operation{Op: "add", Path: "/meta/audit", Value: map[string]any{}}, ops[1])
	assert.Equal(t, update.Operation{Op: "add", Path: "/meta/audit/updated", Value: "t1"}, ops[2])

	raw, err := update.ApplyJSON([]byte(`{"a":1}`), set)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"meta":{"audit":{"updated":"t1"}}}`, string(raw))
}

func TestPatch_RendersRFC6902(t *testing.T) {
	set := update.Between(core.Document{"a/b": 1, "arr": []any{1, 2}}, core.Document{"arr": []any{1}})

	data, err := update.Patch(core.Document{"a/b": 1, "arr": []any{1, 2}}, set)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"op":"remove","path":"/arr/1"},{"op":"remove","path":"/a~1b"}]`, string(data))
}
