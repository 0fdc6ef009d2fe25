package pointer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/silo/pkg/pointer"
)

func TestParse(t *testing.T) {
	cases := []struct {
		expr   string
		tokens []string
	}{
		{"a", []string{"a"}},
		{"a.b.0", []string{"a", "b", "0"}},
		{"/a/b/0", []string{"a", "b", "0"}},
		{"/a~1b/c~0d", []string{"a/b", "c~d"}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			p, err := pointer.Parse(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.tokens, p.Tokens())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{"", "/", "a..b", ".a", "a.", "/a//b", "/a~2"} {
		t.Run(expr, func(t *testing.T) {
			_, err := pointer.Parse(expr)
			var invalid *pointer.InvalidPointerError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestResolve(t *testing.T) {
	p := pointer.MustParse("meta.created")

	got, err := pointer.Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, "meta.created", got.Dotted())

	got, err = pointer.Resolve(&p)
	require.NoError(t, err)
	assert.Equal(t, "/meta/created", got.String())

	_, err = pointer.Resolve(42)
	var invalid *pointer.InvalidPointerError
	assert.ErrorAs(t, err, &invalid)

	_, err = pointer.Resolve(pointer.Pointer{})
	assert.ErrorAs(t, err, &invalid)

	ps, err := pointer.ResolveAll([]any{"a", "/b/c"})
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

func TestGet(t *testing.T) {
	doc := map[string]any{
		"a":   map[string]any{"b": "x"},
		"arr": []any{1, map[string]any{"k": true}},
	}

	v, ok := pointer.MustParse("a.b").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = pointer.MustParse("/arr/1/k").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = pointer.MustParse("a.missing").Get(doc)
	assert.False(t, ok)

	_, ok = pointer.MustParse("arr.5").Get(doc)
	assert.False(t, ok)

	_, ok = pointer.MustParse("a.b.c").Get(doc)
	assert.False(t, ok)
}

func TestSet_CreatesIntermediates(t *testing.T) {
	doc := map[string]any{"scalar": 1}

	require.NoError(t, pointer.MustParse("meta.audit.created").Set(doc, "now"))
	require.NoError(t, pointer.MustParse("scalar.inner").Set(doc, 2))

	assert.Equal(t, map[string]any{
		"meta":   map[string]any{"audit": map[string]any{"created": "now"}},
		"scalar": map[string]any{"inner": 2},
	}, doc)
}

func TestSet_Arrays(t *testing.T) {
	doc := map[string]any{"arr": []any{1, 2}}

	require.NoError(t, pointer.MustParse("arr.0").Set(doc, 10))
	require.NoError(t, pointer.MustParse("arr.3").Set(doc, 4))

	assert.Equal(t, []any{10, 2, nil, 4}, doc["arr"])
	assert.ErrorIs(t, pointer.MustParse("a").Set(nil, 1), pointer.ErrNilDocument)
}

func TestDelete(t *testing.T) {
	doc := map[string]any{
		"a":   1,
		"arr": []any{"x", "y", "z"},
		"obj": map[string]any{"list": []any{1, 2}},
	}

	assert.True(t, pointer.MustParse("a").Delete(doc))
	assert.True(t, pointer.MustParse("arr.1").Delete(doc))
	assert.True(t, pointer.MustParse("obj.list.0").Delete(doc))
	assert.False(t, pointer.MustParse("missing.key").Delete(doc))
	assert.False(t, pointer.MustParse("arr.9").Delete(doc))

	assert.Equal(t, map[string]any{
		"arr": []any{"x", "z"},
		"obj": map[string]any{"list": []any{2}},
	}, doc)
}

func TestApplyTimestamps_SharedInstant(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	doc := map[string]any{}
	ptrs := []pointer.Pointer{pointer.MustParse("createdAt"), pointer.MustParse("/meta/updatedAt")}

	instant, err := pointer.ApplyTimestamps(doc, ptrs, func() time.Time { return fixed })
	require.NoError(t, err)

	assert.Equal(t, time.UTC, instant.Location())
	assert.Equal(t, doc["createdAt"], doc["meta"].(map[string]any)["updatedAt"])
	assert.True(t, fixed.Equal(doc["createdAt"].(time.Time)))
}

func TestApplyTimestamps_NoPointers(t *testing.T) {
	doc := map[string]any{"a": 1}

	instant, err := pointer.ApplyTimestamps(doc, nil, nil)
	require.NoError(t, err)
	assert.True(t, instant.IsZero())
	assert.Equal(t, map[string]any{"a": 1}, doc)
}
