// Package adaptertest holds the contract suite every core.Collection
// implementation must pass.
package adaptertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/silo/pkg/core"
)

// Run runs the common collection contract against collections produced by open.
// Each subtest gets a fresh, empty collection.
func Run(t *testing.T, open func(t *testing.T) core.Collection) {
	t.Helper()
	ctx := context.Background()

	t.Run("FindOne missing", func(t *testing.T) {
		c := open(t)
		doc, err := c.FindOne(ctx, core.Filter{"_id": "missing"})
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("Insert and FindOne", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx, core.Document{"_id": "1", "title": "hello", "count": 42}))

		got, err := c.FindOne(ctx, core.Filter{"_id": "1"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hello", got["title"])
		assert.Equal(t, float64(42), got["count"])
	})

	t.Run("Insert duplicate", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx, core.Document{"_id": "1"}))

		err := c.Insert(ctx, core.Document{"_id": "1"})
		require.Error(t, err)
		assert.True(t, core.IsDuplicateKey(err), "expected duplicate key, got %v", err)
	})

	t.Run("Insert assigns identity", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx, core.Document{"title": "anon"}))

		got, err := c.FindOne(ctx, core.Filter{"title": "anon"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotEmpty(t, got["_id"])
	})

	t.Run("Insert does not alias caller document", func(t *testing.T) {
		c := open(t)
		doc := core.Document{"_id": "1", "tags": []any{"a"}}
		require.NoError(t, c.Insert(ctx, doc))
		doc["tags"].([]any)[0] = "mutated"

		got, err := c.FindOne(ctx, core.Filter{"_id": "1"})
		require.NoError(t, err)
		assert.Equal(t, []any{"a"}, got["tags"])
	})

	t.Run("Find with window", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx,
			core.Document{"_id": "a", "n": 3, "kind": "x"},
			core.Document{"_id": "b", "n": 1, "kind": "x"},
			core.Document{"_id": "c", "n": 2, "kind": "x"},
			core.Document{"_id": "d", "n": 4, "kind": "y"},
		))

		cur, err := c.Find(ctx, core.Filter{"kind": "x"}, core.FindOptions{
			Sort:  []core.SortField{{Field: "n", Desc: true}},
			Skip:  1,
			Limit: 1,
		})
		require.NoError(t, err)
		docs, err := core.All(ctx, cur)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "c", docs[0]["_id"])

		cur, err = c.Find(ctx, core.Filter{}, core.FindOptions{})
		require.NoError(t, err)
		docs, err = core.All(ctx, cur)
		require.NoError(t, err)
		assert.Len(t, docs, 4)
	})

	t.Run("Find with expression filter", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx,
			core.Document{"_id": "a", "n": 3},
			core.Document{"_id": "b", "n": 10},
		))

		cur, err := c.Find(ctx, core.Filter{"$expr": "n > 5"}, core.FindOptions{})
		require.NoError(t, err)
		docs, err := core.All(ctx, cur)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "b", docs[0]["_id"])
	})

	t.Run("Update applies partial set", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx, core.Document{"_id": "1", "a": 1, "arr": []any{1, 2}, "keep": "k"}))

		set := core.NewUpdateSet()
		set.Assign("arr.2", 3)
		set.Assign("nested.field", "v")
		set.Remove("a")

		res, err := c.Update(ctx, core.Filter{"_id": "1"}, set)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Matched)

		got, err := c.FindOne(ctx, core.Filter{"_id": "1"})
		require.NoError(t, err)
		assert.Equal(t, core.Document{
			"_id":    "1",
			"arr":    []any{float64(1), float64(2), float64(3)},
			"keep":   "k",
			"nested": map[string]any{"field": "v"},
		}, got)
	})

	t.Run("Update truncates arrays", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx, core.Document{"_id": "1", "arr": []any{"x", "y", "z"}}))

		set := core.NewUpdateSet()
		set.Remove("arr.1")
		set.Remove("arr.2")

		_, err := c.Update(ctx, core.Filter{"_id": "1"}, set)
		require.NoError(t, err)

		got, err := c.FindOne(ctx, core.Filter{"_id": "1"})
		require.NoError(t, err)
		assert.Equal(t, []any{"x"}, got["arr"])
	})

	t.Run("Update no match", func(t *testing.T) {
		c := open(t)
		set := core.NewUpdateSet()
		set.Assign("a", 1)

		res, err := c.Update(ctx, core.Filter{"_id": "ghost"}, set)
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Matched)
	})

	t.Run("Remove", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Insert(ctx,
			core.Document{"_id": "a", "kind": "x"},
			core.Document{"_id": "b", "kind": "x"},
			core.Document{"_id": "c", "kind": "y"},
		))

		n, err := c.Remove(ctx, core.Filter{"kind": "x"}, core.RemoveOptions{Single: true})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Remove(ctx, core.Filter{"kind": "x"}, core.RemoveOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Remove(ctx, core.Filter{"_id": "ghost"}, core.RemoveOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		got, err := c.FindOne(ctx, core.Filter{"_id": "c"})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}
