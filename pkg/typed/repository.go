// Package typed layers type-safe access over a repository: models are Go
// values converted to documents through their JSON encoding.
package typed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/repository"
)

// Repository wraps a repository.Repository to provide type-safe access.
// T must encode to a JSON object; the identity travels in whatever field
// the underlying repository is configured with (json:"_id" by default).
type Repository[T any] struct {
	repo *repository.Repository
}

// NewRepository creates a new type-safe wrapper around an existing repository.
func NewRepository[T any](repo *repository.Repository) *Repository[T] {
	return &Repository[T]{repo: repo}
}

// Untyped returns the wrapped repository.
func (r *Repository[T]) Untyped() *repository.Repository {
	return r.repo
}

// Create stores model and returns it as stored.
func (r *Repository[T]) Create(ctx context.Context, model T) (T, error) {
	doc, err := toDocument(model)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := r.repo.Create(ctx, doc)
	if err != nil {
		var zero T
		return zero, err
	}
	return fromDocument[T](out)
}

// BatchCreate stores every model or none of them.
func (r *Repository[T]) BatchCreate(ctx context.Context, models []T) ([]T, error) {
	docs := make([]core.Document, len(models))
	for i, m := range models {
		doc, err := toDocument(m)
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		docs[i] = doc
	}
	out, err := r.repo.BatchCreate(ctx, docs)
	if err != nil {
		return nil, err
	}
	return fromDocuments[T](out)
}

// Get retrieves a model by identity.
func (r *Repository[T]) Get(ctx context.Context, id any) (T, error) {
	doc, err := r.repo.GetByID(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return fromDocument[T](doc)
}

// Update persists the fields of model that differ from the stored copy.
func (r *Repository[T]) Update(ctx context.Context, model T) (int64, error) {
	doc, err := toDocument(model)
	if err != nil {
		return 0, err
	}
	return r.repo.Update(ctx, doc)
}

// Delete removes a model by identity.
func (r *Repository[T]) Delete(ctx context.Context, id any) (int64, error) {
	return r.repo.Delete(ctx, id)
}

// DeleteMatch removes every model matching filter.
func (r *Repository[T]) DeleteMatch(ctx context.Context, filter core.Filter) (int64, error) {
	return r.repo.DeleteMatch(ctx, filter)
}

// Find returns every model matching filter, windowed by opts.
func (r *Repository[T]) Find(ctx context.Context, filter core.Filter, opts core.FindOptions) ([]T, error) {
	cur, err := r.repo.FindWindowedMatch(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	docs, err := core.All(ctx, cur)
	if err != nil {
		return nil, err
	}
	return fromDocuments[T](docs)
}

// All iterates over the models matching filter without loading them all.
// Iteration stops at the first error, which is yielded with a zero model.
func (r *Repository[T]) All(ctx context.Context, filter core.Filter, opts core.FindOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cur, err := r.repo.FindWindowedMatch(ctx, filter, opts)
		if err != nil {
			yield(zero, err)
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			model, err := fromDocument[T](cur.Document())
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(model, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(zero, err)
		}
	}
}

func toDocument[T any](model T) (core.Document, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed model: %w", err)
	}
	// integers stay integers so the repository can reject the ones
	// storage would round
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc core.Document
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, &core.InvalidArgumentError{Arg: "model", Reason: fmt.Sprintf("%T does not encode to an object", model)}
	}
	return resolveNumbers(doc).(core.Document), nil
}

func resolveNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			x[k] = resolveNumbers(item)
		}
	case []any:
		for i, item := range x {
			x[i] = resolveNumbers(item)
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
	}
	return v
}

func fromDocument[T any](doc core.Document) (T, error) {
	var model T
	data, err := json.Marshal(doc)
	if err != nil {
		return model, fmt.Errorf("document marshal failed: %w", err)
	}
	if err := json.Unmarshal(data, &model); err != nil {
		return model, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return model, nil
}

func fromDocuments[T any](docs []core.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		m, err := fromDocument[T](d)
		if err != nil {
			return nil, fmt.Errorf("failed to process document %v: %w", d[core.IDField], err)
		}
		out = append(out, m)
	}
	return out, nil
}
