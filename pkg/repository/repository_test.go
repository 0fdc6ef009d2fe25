package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/silo/pkg/adapters/memory"
	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
	"github.com/aretw0/silo/pkg/repository"
)

var fixed = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

const fixedText = "2024-01-02T03:04:05Z"

func fixedClock() time.Time { return fixed }

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) HandleEvent(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) last() core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newRepo(t *testing.T, cfg repository.Config) (*repository.Repository, *recorder) {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	if cfg.Clock == nil {
		cfg.Clock = fixedClock
	}
	repo, err := repository.New(memory.Connect(), cfg)
	require.NoError(t, err)
	rec := &recorder{}
	repo.Subscribe(rec)
	return repo, rec
}

func TestNew(t *testing.T) {
	_, err := repository.New(memory.Connect(), repository.Config{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = repository.New(nil, repository.Config{Collection: "users"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = repository.New(memory.Connect(), repository.Config{
		Collection:        "users",
		TimestampOnCreate: []any{"a..b"},
	})
	var ptrErr *pointer.InvalidPointerError
	assert.ErrorAs(t, err, &ptrErr)

	_, err = repository.New(memory.Connect(), repository.Config{
		Collection:        "users",
		TimestampOnUpdate: []any{42},
	})
	assert.ErrorAs(t, err, &ptrErr)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns identity and timestamps", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{
			TimestampOnCreate: []any{"createdAt", pointer.MustParse("/meta/updatedAt")},
			IDGenerator:       func() any { return "generated" },
		})

		out, err := repo.Create(ctx, core.Document{"name": "Ada"})
		require.NoError(t, err)
		assert.Equal(t, "generated", out["_id"])
		assert.Equal(t, fixedText, out["createdAt"])
		assert.Equal(t, out["createdAt"], out["meta"].(map[string]any)["updatedAt"])

		e := rec.last()
		assert.Equal(t, core.EventCreated, e.Kind)
		assert.Equal(t, "generated", e.ID)
		assert.Equal(t, out, e.Model)
	})

	t.Run("timestamps are identical within one call", func(t *testing.T) {
		ticks := 0
		repo, _ := newRepo(t, repository.Config{
			TimestampOnCreate: []any{"createdAt", "updatedAt"},
			Clock: func() time.Time {
				ticks++
				return fixed.Add(time.Duration(ticks) * time.Second)
			},
		})
		out, err := repo.Create(ctx, core.Document{"_id": "1"})
		require.NoError(t, err)
		assert.Equal(t, out["createdAt"], out["updatedAt"])
	})

	t.Run("uses the configured identity property", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{ID: "email"})
		out, err := repo.Create(ctx, core.Document{"email": "ada@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", out["_id"])

		_, err = repo.GetByID(ctx, "ada@example.com")
		assert.NoError(t, err)
	})

	t.Run("identity callback overrides the property", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{
			ID: "ignored",
			IDFunc: func(m core.Document) (any, bool) {
				return m["first"].(string) + "-" + m["last"].(string), true
			},
		})
		out, err := repo.Create(ctx, core.Document{"first": "ada", "last": "lovelace"})
		require.NoError(t, err)
		assert.Equal(t, "ada-lovelace", out["_id"])
	})

	t.Run("does not mutate the model", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{TimestampOnCreate: []any{"createdAt"}})
		model := core.Document{"name": "Ada"}
		_, err := repo.Create(ctx, model)
		require.NoError(t, err)
		assert.Equal(t, core.Document{"name": "Ada"}, model)
	})

	t.Run("duplicate identity is a conflict", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{DescriptiveName: "user"})
		_, err := repo.Create(ctx, core.Document{"_id": "1"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, core.Document{"_id": "1"})
		require.ErrorIs(t, err, core.ErrConflict)
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "user", conflict.Name)
		assert.Equal(t, "1", conflict.ID)
		assert.Len(t, rec.kinds(), 1, "failed create must not emit")
	})

	t.Run("validation failure writes nothing", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{
			Validate: func(_ context.Context, m core.Document) error {
				if _, ok := m["name"]; !ok {
					return errors.New("name is required")
				}
				return nil
			},
		})
		_, err := repo.Create(ctx, core.Document{"_id": "1"})
		require.ErrorIs(t, err, core.ErrValidation)
		assert.Contains(t, err.Error(), "name is required")
		assert.Empty(t, rec.kinds())

		_, err = repo.GetByID(ctx, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("nil model fails fast", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("unserializable model is an argument error", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"ch": make(chan int)})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})
}

func TestBatchCreate(t *testing.T) {
	ctx := context.Background()
	validate := func(_ context.Context, m core.Document) error {
		if m["bad"] == true {
			return errors.New("bad model")
		}
		return nil
	}

	t.Run("invalid items abort the batch", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{Validate: validate, BatchConcurrency: 2})
		_, err := repo.BatchCreate(ctx, []core.Document{
			{"_id": "a"},
			{"_id": "b", "bad": true},
			{"_id": "c"},
			{"_id": "d", "bad": true},
		})
		require.ErrorIs(t, err, core.ErrValidation)

		var batch *core.BatchValidationError
		require.ErrorAs(t, err, &batch)
		require.Len(t, batch.Items, 2)
		assert.Equal(t, 1, batch.Items[0].Index)
		assert.Equal(t, 3, batch.Items[1].Index)
		assert.Empty(t, rec.kinds())

		_, err = repo.GetByID(ctx, "a")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("valid batch emits one event", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{Validate: validate, TimestampOnCreate: []any{"createdAt"}})
		out, err := repo.BatchCreate(ctx, []core.Document{{"_id": "a"}, {"name": "anon"}})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0]["_id"])
		assert.NotEmpty(t, out[1]["_id"])
		assert.Equal(t, out[0]["createdAt"], out[1]["createdAt"])

		assert.Equal(t, []core.EventKind{core.EventBatchCreated}, rec.kinds())
		e := rec.last()
		require.Len(t, e.Models, 2)
		assert.Equal(t, "a", e.Models[0].ID)
		assert.Equal(t, out[1], e.Models[1].Model)
	})

	t.Run("empty batch writes nothing", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		out, err := repo.BatchCreate(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Empty(t, rec.kinds())
	})

	t.Run("nil item fails fast", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.BatchCreate(ctx, []core.Document{{"_id": "a"}, nil})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("store failure is translated", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.BatchCreate(ctx, []core.Document{{"_id": "a"}, {"_id": "a"}})
		assert.ErrorIs(t, err, core.ErrConflict)
	})
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	repo, rec := newRepo(t, repository.Config{DescriptiveName: "user"})

	_, err := repo.GetByID(ctx, "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ID)
	assert.Equal(t, "user", nf.Name)

	_, err = repo.GetByID(ctx, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = repo.Create(ctx, core.Document{"_id": "1", "n": 1})
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got["n"])

	e := rec.last()
	assert.Equal(t, core.EventFetched, e.Kind)
	assert.Equal(t, "1", e.ID)
}

func TestGetByID_CustomNotFound(t *testing.T) {
	sentinel := errors.New("gone")
	repo, _ := newRepo(t, repository.Config{OnNotFound: func(any) error { return sentinel }})
	_, err := repo.GetByID(context.Background(), "x")
	assert.ErrorIs(t, err, sentinel)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("scenario", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "a": 1, "arr": []any{1, 2}})
		require.NoError(t, err)

		n, err := repo.Update(ctx, core.Document{"_id": "1", "arr": []any{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		e := rec.last()
		assert.Equal(t, core.EventUpdated, e.Kind)
		assert.Equal(t, "1", e.ID)
		assert.Equal(t, int64(1), e.Affected)
		require.NotNil(t, e.ChangeSet)
		assert.Equal(t, map[string]any{"arr.2": float64(3)}, e.ChangeSet.Assignments)
		assert.Equal(t, map[string]struct{}{"a": {}}, e.ChangeSet.Removals)

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, core.Document{"_id": "1", "arr": []any{float64(1), float64(2), float64(3)}}, got)
	})

	t.Run("array truncation removes the index", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "arr": []any{"x", "y"}})
		require.NoError(t, err)

		_, err = repo.Update(ctx, core.Document{"_id": "1", "arr": []any{"x"}})
		require.NoError(t, err)
		set := rec.last().ChangeSet
		assert.Empty(t, set.Assignments)
		assert.Equal(t, map[string]struct{}{"arr.1": {}}, set.Removals)

		_, err = repo.Update(ctx, core.Document{"_id": "1", "arr": []any{"x", "y"}})
		require.NoError(t, err)
		set = rec.last().ChangeSet
		assert.Equal(t, map[string]any{"arr.1": "y"}, set.Assignments)
		assert.Empty(t, set.Removals)
	})

	t.Run("no-op update", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{TimestampOnUpdate: []any{"updatedAt"}})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "n": 1, "updatedAt": "never"})
		require.NoError(t, err)

		n, err := repo.Update(ctx, core.Document{"_id": "1", "n": 1.0, "updatedAt": "never"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		assert.Equal(t, []core.EventKind{core.EventCreated}, rec.kinds())

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "never", got["updatedAt"])
	})

	t.Run("not found", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.Update(ctx, core.Document{"_id": "ghost", "n": 1})
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Empty(t, rec.kinds())
	})

	t.Run("custom not found on update", func(t *testing.T) {
		sentinel := errors.New("vanished")
		repo, _ := newRepo(t, repository.Config{OnNotFoundOnUpdate: func(any) error { return sentinel }})
		_, err := repo.Update(ctx, core.Document{"_id": "ghost"})
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("model without identity", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.Update(ctx, core.Document{"n": 1})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("update timestamps always win", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{TimestampOnUpdate: []any{"updatedAt"}})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "n": 1, "updatedAt": "old"})
		require.NoError(t, err)

		// the model drops updatedAt, which the diff alone would remove
		_, err = repo.Update(ctx, core.Document{"_id": "1", "n": 2})
		require.NoError(t, err)

		set := rec.last().ChangeSet
		assert.Equal(t, fixed, set.Assignments["updatedAt"])
		assert.NotContains(t, set.Removals, "updatedAt")

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, fixedText, got["updatedAt"])
		assert.Equal(t, float64(2), got["n"])
	})

	t.Run("filter hook keeps fields out of the diff", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{
			TimestampOnCreate: []any{"createdAt"},
			FilterDiff: func(path []string, key string) bool {
				return len(path) == 0 && key == "createdAt"
			},
		})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "n": 1})
		require.NoError(t, err)

		_, err = repo.Update(ctx, core.Document{"_id": "1", "n": 2})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, fixedText, got["createdAt"])
	})

	t.Run("post compile hook", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{
			PostCompile: func(set core.UpdateSet, model core.Document) (core.UpdateSet, error) {
				set.Assign("revision", model["revision"].(int)+1)
				return set, nil
			},
		})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "n": 1, "revision": 1})
		require.NoError(t, err)

		_, err = repo.Update(ctx, core.Document{"_id": "1", "n": 2, "revision": 1})
		require.NoError(t, err)
		assert.Equal(t, 2, rec.last().ChangeSet.Assignments["revision"])

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, float64(2), got["revision"])
	})

	t.Run("validation failure", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{
			Validate: func(context.Context, core.Document) error { return errors.New("nope") },
		})
		_, err := repo.Update(ctx, core.Document{"_id": "1"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestTransforms(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{
		ID: "id",
		ToStorage: func(m core.Document) (core.Document, error) {
			out := core.Clone(m)
			out["_id"] = out["id"]
			delete(out, "id")
			return out, nil
		},
		FromStorage: func(s core.Document) (core.Document, error) {
			out := core.Clone(s)
			out["id"] = out["_id"]
			delete(out, "_id")
			return out, nil
		},
	})

	out, err := repo.Create(ctx, core.Document{"id": "1", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, core.Document{"id": "1", "name": "Ada"}, out)

	n, err := repo.Update(ctx, core.Document{"id": "1", "name": "Grace"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cur, err := repo.FindMatch(ctx, core.Filter{"name": "Grace"})
	require.NoError(t, err)
	docs, err := core.All(ctx, cur)
	require.NoError(t, err)
	assert.Equal(t, []core.Document{{"id": "1", "name": "Grace"}}, docs)
}

func TestTransformFailureSurfacesThroughCursor(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	repo, _ := newRepo(t, repository.Config{
		FromStorage: func(s core.Document) (core.Document, error) {
			if s["_id"] == "b" {
				return nil, boom
			}
			return s, nil
		},
	})
	conn := repo.Collection()
	require.NoError(t, conn.Insert(ctx, core.Document{"_id": "a"}, core.Document{"_id": "b"}))

	cur, err := repo.FindMatch(ctx, core.Filter{})
	require.NoError(t, err)
	_, err = core.All(ctx, cur)
	assert.ErrorIs(t, err, boom)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, rec := newRepo(t, repository.Config{})
	_, err := repo.BatchCreate(ctx, []core.Document{
		{"_id": "a", "kind": "x"},
		{"_id": "b", "kind": "x"},
		{"_id": "c", "kind": "y"},
	})
	require.NoError(t, err)

	n, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	e := rec.last()
	assert.Equal(t, core.EventDeleted, e.Kind)
	assert.Equal(t, "a", e.ID)

	n, err = repo.Delete(ctx, "a")
	require.NoError(t, err, "zero affected is not an error")
	assert.Equal(t, int64(0), n)

	n, err = repo.DeleteMatch(ctx, core.Filter{"kind": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	e = rec.last()
	assert.Equal(t, core.Filter{"kind": "x"}, e.Match)
	assert.Equal(t, int64(1), e.Affected)

	_, err = repo.DeleteMatch(ctx, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = repo.Delete(ctx, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestFindWindowedMatch(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{})
	for i, name := range []string{"d", "b", "a", "c"} {
		_, err := repo.Create(ctx, core.Document{"_id": name, "rank": i})
		require.NoError(t, err)
	}

	cur, err := repo.FindWindowedMatch(ctx, core.Filter{}, core.FindOptions{
		Sort:  []core.SortField{{Field: "_id"}},
		Skip:  1,
		Limit: 2,
	})
	require.NoError(t, err)
	docs, err := core.All(ctx, cur)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0]["_id"])
	assert.Equal(t, "c", docs[1]["_id"])

	_, err = repo.FindWindowedMatch(ctx, core.Filter{}, core.FindOptions{Skip: -1})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = repo.FindMatch(ctx, core.Filter{"$bogus": 1})
	assert.Error(t, err, "setup errors are returned directly")
}

func TestTranslateError(t *testing.T) {
	ctx := context.Background()
	custom := errors.New("translated")
	repo, _ := newRepo(t, repository.Config{
		TranslateError: func(err error) error { return errors.Join(custom, err) },
	})
	_, err := repo.Create(ctx, core.Document{"_id": "1"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, core.Document{"_id": "1"})
	assert.ErrorIs(t, err, custom)
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
	assert.NotErrorIs(t, err, core.ErrConflict)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{})

	streamCtx, cancel := context.WithCancel(ctx)
	events := repo.Events(streamCtx, 4)

	_, err := repo.Create(ctx, core.Document{"_id": "1"})
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, "1")
	require.NoError(t, err)

	assert.Equal(t, core.EventCreated, (<-events).Kind)
	assert.Equal(t, core.EventFetched, (<-events).Kind)

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	// operations keep working once the stream is gone
	_, err = repo.Delete(ctx, "1")
	assert.NoError(t, err)
}

func TestEvents_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{})
	_ = repo.Events(ctx, 1)

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, core.Document{"_id": id})
		require.NoError(t, err)
	}
	state := repo.State().(repository.RepositoryState)
	assert.Equal(t, int64(2), state.DroppedEvents)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{})

	var count int
	unsubscribe := repo.Subscribe(repository.ListenerFunc(func(core.Event) { count++ }))
	_, err := repo.Create(ctx, core.Document{"_id": "1"})
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = repo.Create(ctx, core.Document{"_id": "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestState(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{
		DescriptiveName:   "user",
		TimestampOnCreate: []any{"/meta/createdAt"},
	})
	_, err := repo.Create(ctx, core.Document{"_id": "1"})
	require.NoError(t, err)

	state := repo.State().(repository.RepositoryState)
	assert.Equal(t, "users", state.Collection)
	assert.Equal(t, "user", state.Name)
	assert.Equal(t, "_id", state.IDField)
	assert.Equal(t, []string{"meta.createdAt"}, state.TimestampOnCreate)
	assert.Equal(t, int64(1), state.Created)
	assert.Equal(t, 1, state.Listeners)
	assert.IsType(t, memory.CollectionState{}, state.Store)
	assert.Equal(t, "repository", repo.ComponentType())
}

func TestDocumentShape(t *testing.T) {
	ctx := context.Background()

	t.Run("create rejects keys the update set cannot address", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		for _, model := range []core.Document{
			{"_id": "1", "a.b": 1},
			{"_id": "1", "": 1},
			{"_id": "1", "meta": map[string]any{"x.y": true}},
			{"_id": "1", "list": []any{map[string]any{"": "v"}}},
		} {
			_, err := repo.Create(ctx, model)
			assert.ErrorIs(t, err, core.ErrInvalidArgument, "%v", model)
		}
		assert.Empty(t, rec.kinds())

		_, err := repo.GetByID(ctx, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("batch create rejects the whole batch", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.BatchCreate(ctx, []core.Document{{"_id": "a"}, {"_id": "b", "a.b": 1}})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.Empty(t, rec.kinds())

		_, err = repo.GetByID(ctx, "a")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("update leaves the stored document intact", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "a": 1})
		require.NoError(t, err)

		_, err = repo.Update(ctx, core.Document{"_id": "1", "a.b": 2})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		_, err = repo.Update(ctx, core.Document{"_id": "1", "": 2})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.Equal(t, []core.EventKind{core.EventCreated}, rec.kinds())

		got, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, core.Document{"_id": "1", "a": float64(1)}, got)
	})
}

func TestIntegerPrecision(t *testing.T) {
	ctx := context.Background()
	const exact = int64(1) << 53

	t.Run("identities beyond 2^53 are rejected", func(t *testing.T) {
		repo, rec := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": exact + 1, "n": 1})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = repo.GetByID(ctx, exact+1)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		_, err = repo.Delete(ctx, uint64(exact)+1)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.Empty(t, rec.kinds())
	})

	t.Run("values beyond 2^53 are rejected", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": "1", "big": uint64(1) << 60})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = repo.Create(ctx, core.Document{"_id": "2", "n": 1})
		require.NoError(t, err)
		_, err = repo.Update(ctx, core.Document{"_id": "2", "n": -exact - 1})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("2^53 round trips", func(t *testing.T) {
		repo, _ := newRepo(t, repository.Config{})
		_, err := repo.Create(ctx, core.Document{"_id": exact, "n": 1})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, exact)
		require.NoError(t, err)
		assert.Equal(t, float64(exact), got["_id"])
	})
}

// vanishingConn serves collections whose writes never find the document,
// as if it were removed between the fetch and the write.
type vanishingConn struct {
	core.Connection
}

func (c vanishingConn) Collection(name string) (core.Collection, error) {
	coll, err := c.Connection.Collection(name)
	if err != nil {
		return nil, err
	}
	return vanishingCollection{coll}, nil
}

type vanishingCollection struct {
	core.Collection
}

func (vanishingCollection) Update(context.Context, core.Filter, core.UpdateSet) (core.UpdateResult, error) {
	return core.UpdateResult{}, nil
}

func TestUpdate_RemovedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New(vanishingConn{memory.Connect()}, repository.Config{Collection: "users"})
	require.NoError(t, err)
	rec := &recorder{}
	repo.Subscribe(rec)

	_, err = repo.Create(ctx, core.Document{"_id": "1", "n": 1})
	require.NoError(t, err)

	n, err := repo.Update(ctx, core.Document{"_id": "1", "n": 2})
	require.ErrorIs(t, err, core.ErrNotFound)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "1", nf.ID)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, []core.EventKind{core.EventCreated}, rec.kinds())
}

func TestUpdate_PostCompileOnUnchangedModel(t *testing.T) {
	ctx := context.Background()
	calls, bump := 0, false
	repo, rec := newRepo(t, repository.Config{
		TimestampOnUpdate: []any{"updatedAt"},
		PostCompile: func(set core.UpdateSet, _ core.Document) (core.UpdateSet, error) {
			calls++
			if bump {
				set.Assign("revision", 2)
			}
			return set, nil
		},
	})
	_, err := repo.Create(ctx, core.Document{"_id": "1", "n": 1, "revision": 1})
	require.NoError(t, err)

	// the hook leaves the empty set alone: still a no-op
	n, err := repo.Update(ctx, core.Document{"_id": "1", "n": 1, "revision": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []core.EventKind{core.EventCreated}, rec.kinds())

	// the hook alone produces a write, which carries the update timestamp
	bump = true
	n, err = repo.Update(ctx, core.Document{"_id": "1", "n": 1, "revision": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, calls)

	set := rec.last().ChangeSet
	assert.Equal(t, 2, set.Assignments["revision"])
	assert.Equal(t, fixed, set.Assignments["updatedAt"])
	assert.Len(t, set.Assignments, 2)
}

func TestEvents_ModelIsACopy(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, repository.Config{})
	repo.Subscribe(repository.ListenerFunc(func(e core.Event) {
		if e.Model != nil {
			e.Model["touched"] = true
		}
		for _, c := range e.Models {
			c.Model["touched"] = true
		}
	}))

	out, err := repo.Create(ctx, core.Document{"_id": "1"})
	require.NoError(t, err)
	assert.NotContains(t, out, "touched")

	got, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.NotContains(t, got, "touched")

	batch, err := repo.BatchCreate(ctx, []core.Document{{"_id": "2"}})
	require.NoError(t, err)
	assert.NotContains(t, batch[0], "touched")
}
