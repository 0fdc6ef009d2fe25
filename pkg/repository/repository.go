// Package repository implements a single-collection repository facade.
//
// Each operation is a short pipeline over one core.Collection:
//
//	Create       validate, to storage, create timestamps, identity, insert, from storage, "created"
//	BatchCreate  validate all (parallel), then as Create in one insert, "batchCreated"
//	GetByID      find one, from storage, "fetched"
//	Update       validate, to storage, fetch, diff, compile, update timestamps, post compile, partial update, "updated"
//	Delete       remove by identity or filter, "deleted"
//	FindMatch    find, from storage on every item
//
// Updates never overwrite whole documents: the stored document is diffed
// against the incoming model and only the compiled update set is written.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/diff"
	"github.com/aretw0/silo/pkg/pointer"
	"github.com/aretw0/silo/pkg/update"
)

// Repository is safe for concurrent use. It holds no lock around I/O.
type Repository struct {
	coll       core.Collection
	collection string
	s          *strategy

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64

	stats stats
}

type stats struct {
	created, updated, deleted, fetched, dropped atomic.Int64
}

// New opens cfg.Collection on conn and returns its repository.
func New(conn core.Connection, cfg Config) (*Repository, error) {
	if conn == nil {
		return nil, &core.InvalidArgumentError{Arg: "connection", Reason: "connection is nil"}
	}
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	coll, err := conn.Collection(cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}
	return &Repository{
		coll:       coll,
		collection: cfg.Collection,
		s:          s,
		listeners:  make(map[uint64]Listener),
	}, nil
}

// Collection returns the backing collection.
func (r *Repository) Collection() core.Collection {
	return r.coll
}

// normalize round-trips doc through JSON so values compare in storage form.
func normalize(doc core.Document) (core.Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &core.InvalidArgumentError{Arg: "model", Reason: fmt.Sprintf("not serializable: %v", err)}
	}
	var out core.Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = core.Document{}
	}
	return out, nil
}

func (r *Repository) checkModel(model core.Document) error {
	if model == nil {
		return &core.InvalidArgumentError{Arg: "model", Reason: "model is nil"}
	}
	return checkValue("model", model)
}

// maxExactInt is the largest integer a JSON number (float64) holds exactly.
const maxExactInt = 1 << 53

// checkValue rejects what the dotted update set or the JSON storage form
// cannot represent: empty keys, keys containing '.', and integers beyond
// ±2^53.
func checkValue(at string, v any) error {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			if k == "" {
				return &core.InvalidArgumentError{Arg: at, Reason: "empty key"}
			}
			if strings.Contains(k, ".") {
				return &core.InvalidArgumentError{Arg: at, Reason: fmt.Sprintf("key %q contains '.'", k)}
			}
			if err := checkValue(at+"."+k, item); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range x {
			if err := checkValue(at+"."+strconv.Itoa(i), item); err != nil {
				return err
			}
		}
	default:
		if !exactInt(v) {
			return &core.InvalidArgumentError{Arg: at, Reason: fmt.Sprintf("integer %v cannot be stored exactly", v)}
		}
	}
	return nil
}

// exactInt is false for integers a float64 would round.
func exactInt(v any) bool {
	switch n := v.(type) {
	case int:
		return n >= -maxExactInt && n <= maxExactInt
	case int64:
		return n >= -maxExactInt && n <= maxExactInt
	case uint:
		return n <= maxExactInt
	case uint64:
		return n <= maxExactInt
	}
	return true
}

func checkID(id any) error {
	if id == nil {
		return &core.InvalidArgumentError{Arg: "id", Reason: "id is nil"}
	}
	return checkValue("id", id)
}

func (r *Repository) validate(ctx context.Context, model core.Document) error {
	if err := r.s.validate(ctx, model); err != nil {
		return &core.ValidationError{Name: r.s.name, Err: err}
	}
	return nil
}

// prepare turns a validated model into the document to insert.
func (r *Repository) prepare(model core.Document, now pointer.Clock) (core.Document, error) {
	stored, err := r.s.toStorage(core.Clone(model))
	if err != nil {
		return nil, fmt.Errorf("failed to transform %s: %w", r.s.name, err)
	}
	if stored == nil {
		stored = core.Document{}
	}
	if _, err := pointer.ApplyTimestamps(stored, r.s.onCreate, now); err != nil {
		return nil, err
	}
	if id, ok := stored[core.IDField]; !ok || id == nil {
		if id, ok := r.s.identity(model); ok {
			stored[core.IDField] = id
		} else {
			stored[core.IDField] = r.s.newID()
		}
	}
	if err := checkValue("model", stored); err != nil {
		return nil, err
	}
	return normalize(stored)
}

// translate runs a persistence error through the translation hook.
func (r *Repository) translate(op string, id any, err error) error {
	r.s.logger.Error("persistence failed", "op", op, "collection", r.collection, "id", id, "error", err)
	out := r.s.translate(err)
	var conflict *core.ConflictError
	if errors.As(out, &conflict) && conflict.ID == nil {
		conflict.ID = id
	}
	return out
}

// Create stores a new model and returns it as read back from storage form.
func (r *Repository) Create(ctx context.Context, model core.Document) (core.Document, error) {
	if err := r.checkModel(model); err != nil {
		return nil, err
	}
	if err := r.validate(ctx, model); err != nil {
		return nil, err
	}
	stored, err := r.prepare(model, r.s.clock)
	if err != nil {
		return nil, err
	}
	id := stored[core.IDField]

	r.s.logger.Debug("insert", "collection", r.collection, "id", id)
	if err := r.coll.Insert(ctx, stored); err != nil {
		return nil, r.translate("create", id, err)
	}

	out, err := r.s.fromStorage(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to transform %s %v: %w", r.s.name, id, err)
	}
	r.stats.created.Add(1)
	r.emit(core.Event{Kind: core.EventCreated, ID: id, Model: core.Clone(out)})
	return out, nil
}

// BatchCreate validates every model, in parallel, before writing any of
// them. Invalid models fail the whole batch with *core.BatchValidationError.
// Valid batches are written with one insert; a store failure midway is
// returned as is.
func (r *Repository) BatchCreate(ctx context.Context, models []core.Document) ([]core.Document, error) {
	for i, m := range models {
		if m == nil {
			return nil, &core.InvalidArgumentError{Arg: fmt.Sprintf("models[%d]", i), Reason: "model is nil"}
		}
	}
	if len(models) == 0 {
		return []core.Document{}, nil
	}

	failures := make([]error, len(models))
	var g errgroup.Group
	g.SetLimit(r.s.batchLimit)
	for i, m := range models {
		g.Go(func() error {
			failures[i] = r.validate(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	var invalid []core.ItemError
	for i, err := range failures {
		if err != nil {
			invalid = append(invalid, core.ItemError{Index: i, Err: err})
		}
	}
	if len(invalid) > 0 {
		r.s.logger.Debug("batch rejected", "collection", r.collection, "invalid", len(invalid), "total", len(models))
		return nil, &core.BatchValidationError{Items: invalid}
	}

	// one instant for the whole batch
	instant := r.s.clock()
	now := func() time.Time { return instant }

	docs := make([]core.Document, len(models))
	for i, m := range models {
		stored, err := r.prepare(m, now)
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		docs[i] = stored
	}

	r.s.logger.Debug("batch insert", "collection", r.collection, "count", len(docs))
	if err := r.coll.Insert(ctx, docs...); err != nil {
		return nil, r.translate("batchCreate", nil, err)
	}

	out := make([]core.Document, len(docs))
	created := make([]core.Created, len(docs))
	for i, stored := range docs {
		m, err := r.s.fromStorage(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to transform %s %v: %w", r.s.name, stored[core.IDField], err)
		}
		out[i] = m
		created[i] = core.Created{ID: stored[core.IDField], Model: core.Clone(m)}
	}
	r.stats.created.Add(int64(len(docs)))
	r.emit(core.Event{Kind: core.EventBatchCreated, Models: created})
	return out, nil
}

// GetByID returns the model stored under id.
func (r *Repository) GetByID(ctx context.Context, id any) (core.Document, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	stored, err := r.coll.FindOne(ctx, core.Filter{core.IDField: id})
	if err != nil {
		return nil, r.translate("getById", id, err)
	}
	if stored == nil {
		return nil, r.s.notFound(id)
	}
	out, err := r.s.fromStorage(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to transform %s %v: %w", r.s.name, id, err)
	}
	r.stats.fetched.Add(1)
	r.emit(core.Event{Kind: core.EventFetched, ID: id, Model: core.Clone(out)})
	return out, nil
}

// Update persists the difference between the stored document and model.
// It returns the number of documents modified; an unchanged model is a
// successful no-op that writes nothing and emits nothing.
func (r *Repository) Update(ctx context.Context, model core.Document) (int64, error) {
	if err := r.checkModel(model); err != nil {
		return 0, err
	}
	if err := r.validate(ctx, model); err != nil {
		return 0, err
	}

	transformed, err := r.s.toStorage(core.Clone(model))
	if err != nil {
		return 0, fmt.Errorf("failed to transform %s: %w", r.s.name, err)
	}
	if transformed == nil {
		transformed = core.Document{}
	}
	id, ok := r.s.identity(model)
	if !ok {
		if id, ok = transformed[core.IDField]; !ok || id == nil {
			return 0, &core.InvalidArgumentError{Arg: "model", Reason: "model has no identity"}
		}
	}
	if _, ok := transformed[core.IDField]; !ok {
		transformed[core.IDField] = id
	}
	if err := checkValue("model", transformed); err != nil {
		return 0, err
	}
	if transformed, err = normalize(transformed); err != nil {
		return 0, err
	}

	filter := core.Filter{core.IDField: id}
	current, err := r.coll.FindOne(ctx, filter)
	if err != nil {
		return 0, r.translate("update", id, err)
	}
	if current == nil {
		return 0, r.s.notFoundUpd(id)
	}
	if current, err = normalize(current); err != nil {
		return 0, err
	}

	set := update.Compile(diff.Diff(current, transformed, r.s.diffOpts...))
	changed := !set.IsEmpty()
	if changed {
		r.stamp(&set)
	}
	if r.s.postCompile != nil {
		if set, err = r.s.postCompile(set, model); err != nil {
			return 0, err
		}
		// the hook alone turned an unchanged model into a write
		if !changed && !set.IsEmpty() {
			r.stamp(&set)
		}
	}
	if set.IsEmpty() {
		r.s.logger.Debug("update is a no-op", "collection", r.collection, "id", id)
		return 0, nil
	}

	r.s.logger.Debug("partial update", "collection", r.collection, "id", id,
		"assignments", set.AssignmentPaths(), "removals", set.RemovalPaths())
	res, err := r.coll.Update(ctx, filter, set)
	if err != nil {
		return 0, r.translate("update", id, err)
	}
	if res.Matched == 0 {
		// removed between fetch and write
		return 0, r.s.notFoundUpd(id)
	}

	r.stats.updated.Add(res.Modified)
	r.emit(core.Event{Kind: core.EventUpdated, ID: id, ChangeSet: &set, Affected: res.Modified})
	return res.Modified, nil
}

// stamp assigns the update timestamps, overriding any change to the same paths.
func (r *Repository) stamp(set *core.UpdateSet) {
	if len(r.s.onUpdate) == 0 {
		return
	}
	instant := r.s.clock().UTC()
	for _, p := range r.s.onUpdate {
		set.Assign(p.Dotted(), instant)
	}
}

// Delete removes the document stored under id. Zero affected is not an error.
func (r *Repository) Delete(ctx context.Context, id any) (int64, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	n, err := r.coll.Remove(ctx, core.Filter{core.IDField: id}, core.RemoveOptions{Single: true})
	if err != nil {
		return 0, r.translate("delete", id, err)
	}
	r.stats.deleted.Add(n)
	r.emit(core.Event{Kind: core.EventDeleted, ID: id, Affected: n})
	return n, nil
}

// DeleteMatch removes every document matching filter. An empty filter
// matches everything; a nil filter is rejected.
func (r *Repository) DeleteMatch(ctx context.Context, filter core.Filter) (int64, error) {
	if filter == nil {
		return 0, &core.InvalidArgumentError{Arg: "filter", Reason: "filter is nil"}
	}
	n, err := r.coll.Remove(ctx, filter, core.RemoveOptions{})
	if err != nil {
		return 0, r.translate("deleteMatch", nil, err)
	}
	r.stats.deleted.Add(n)
	r.emit(core.Event{Kind: core.EventDeleted, Match: filter, Affected: n})
	return n, nil
}

// FindMatch streams every model matching filter.
func (r *Repository) FindMatch(ctx context.Context, filter core.Filter) (core.Cursor, error) {
	return r.FindWindowedMatch(ctx, filter, core.FindOptions{})
}

// FindWindowedMatch streams the models matching filter, sorted and
// windowed by opts. Setup errors are returned here; errors converting an
// item surface through the cursor's Err.
func (r *Repository) FindWindowedMatch(ctx context.Context, filter core.Filter, opts core.FindOptions) (core.Cursor, error) {
	if filter == nil {
		filter = core.Filter{}
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, &core.InvalidArgumentError{Arg: "options", Reason: "skip and limit must not be negative"}
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, r.translate("find", nil, err)
	}
	return &transformCursor{inner: cur, fn: r.s.fromStorage}, nil
}

// transformCursor applies FromStorage to every item of inner.
type transformCursor struct {
	inner core.Cursor
	fn    func(core.Document) (core.Document, error)
	cur   core.Document
	err   error
}

func (c *transformCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.inner.Next(ctx) {
		c.cur = nil
		return false
	}
	doc, err := c.fn(c.inner.Document())
	if err != nil {
		c.err = err
		c.cur = nil
		return false
	}
	c.cur = doc
	return true
}

func (c *transformCursor) Document() core.Document { return c.cur }

func (c *transformCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.inner.Err()
}

func (c *transformCursor) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
