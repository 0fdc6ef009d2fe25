package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/silo/pkg/core"
)

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", &core.NotFoundError{Name: "user", ID: "1"}, core.ErrNotFound},
		{"conflict", &core.ConflictError{Name: "user", ID: "1"}, core.ErrConflict},
		{"validation", &core.ValidationError{Name: "user", Err: errors.New("bad")}, core.ErrValidation},
		{"invalid argument", &core.InvalidArgumentError{Arg: "model", Reason: "nil"}, core.ErrInvalidArgument},
		{"batch", &core.BatchValidationError{Items: []core.ItemError{{Index: 0, Err: errors.New("x")}}}, core.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.target)
		})
	}
}

func TestBatchValidationError_UnwrapsItems(t *testing.T) {
	inner := errors.New("name is required")
	err := &core.BatchValidationError{Items: []core.ItemError{
		{Index: 2, Err: &core.ValidationError{Name: "user", Err: inner}},
	}}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "item 2")

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "user", ve.Name)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, core.IsDuplicateKey(fmt.Errorf("insert: %w", core.ErrDuplicateKey)))
	assert.True(t, core.IsDuplicateKey(errors.New("E11000 duplicate key error collection: test.users")))
	assert.True(t, core.IsDuplicateKey(errors.New("UNIQUE constraint failed: documents.collection, documents.id")))
	assert.False(t, core.IsDuplicateKey(errors.New("connection refused")))
	assert.False(t, core.IsDuplicateKey(nil))
}

func TestUpdateSet_PathInOneMap(t *testing.T) {
	set := core.NewUpdateSet()
	set.Remove("a")
	set.Assign("a", 1)

	assert.Equal(t, map[string]any{"a": 1}, set.Assignments)
	assert.Empty(t, set.Removals)

	set.Remove("a")
	assert.Empty(t, set.Assignments)
	assert.Equal(t, []string{"a"}, set.RemovalPaths())
	assert.Equal(t, 1, set.Len())
	assert.True(t, core.UpdateSet{}.IsEmpty())
}

func TestAll_DrainsCursor(t *testing.T) {
	cur := core.NewSliceCursor([]core.Document{{"_id": "1"}, {"_id": "2"}})

	docs, err := core.All(context.Background(), cur)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.False(t, cur.Next(context.Background()))
}

func TestSliceCursor_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cur := core.NewSliceCursor([]core.Document{{"_id": "1"}})
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}
