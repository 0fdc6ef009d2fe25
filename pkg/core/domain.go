// Package core holds the domain types and the storage ports of silo.
package core

import (
	"fmt"
	"sort"
)

// Document is the central entity of the domain.
// It is a structured value keyed by strings whose values are scalars,
// nested documents (map[string]any) or ordered sequences ([]any).
type Document = map[string]any

// Filter is a query passed verbatim to the backing collection.
type Filter = map[string]any

// IDField is the storage identity field of every stored document.
const IDField = "_id"

// UpdateSet is the compiled form of a document diff: field assignments and
// field removals, keyed by dotted path ("a.b", "arr.2").
// A path never appears in both maps.
type UpdateSet struct {
	Assignments map[string]any      `json:"assignments,omitempty"`
	Removals    map[string]struct{} `json:"removals,omitempty"`
}

// NewUpdateSet returns an empty, writable update set.
func NewUpdateSet() UpdateSet {
	return UpdateSet{
		Assignments: make(map[string]any),
		Removals:    make(map[string]struct{}),
	}
}

// Assign records an assignment, dropping any removal of the same path.
func (u *UpdateSet) Assign(path string, value any) {
	if u.Assignments == nil {
		u.Assignments = make(map[string]any)
	}
	delete(u.Removals, path)
	u.Assignments[path] = value
}

// Remove records a removal, dropping any assignment of the same path.
func (u *UpdateSet) Remove(path string) {
	if u.Removals == nil {
		u.Removals = make(map[string]struct{})
	}
	delete(u.Assignments, path)
	u.Removals[path] = struct{}{}
}

// IsEmpty reports whether the set carries no mutation at all.
func (u UpdateSet) IsEmpty() bool {
	return len(u.Assignments) == 0 && len(u.Removals) == 0
}

// Len returns the number of mutated paths.
func (u UpdateSet) Len() int {
	return len(u.Assignments) + len(u.Removals)
}

// RemovalPaths returns the removed paths in lexical order.
func (u UpdateSet) RemovalPaths() []string {
	paths := make([]string, 0, len(u.Removals))
	for p := range u.Removals {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// AssignmentPaths returns the assigned paths in lexical order.
func (u UpdateSet) AssignmentPaths() []string {
	paths := make([]string, 0, len(u.Assignments))
	for p := range u.Assignments {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// UpdateResult reports the outcome of a partial update.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// SortField orders a find by one dotted field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions windows and orders a find.
type FindOptions struct {
	Sort  []SortField
	Skip  int64
	Limit int64 // zero means no limit
}

// RemoveOptions tunes a removal.
type RemoveOptions struct {
	// Single stops after the first matching document.
	Single bool
}

// EventKind represents the type of lifecycle notification.
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventBatchCreated EventKind = "batchCreated"
	EventUpdated      EventKind = "updated"
	EventDeleted      EventKind = "deleted"
	EventFetched      EventKind = "fetched"
)

// Created is the payload of one created model.
type Created struct {
	ID    any      `json:"id"`
	Model Document `json:"model"`
}

// Event is an immutable lifecycle notification emitted once per operation.
//
// Payload fields by kind:
//
//	created      ID, Model
//	batchCreated Models
//	updated      ID, ChangeSet, Affected
//	deleted      ID, Affected (single) or Match, Affected (bulk)
//	fetched      ID, Model
type Event struct {
	Kind      EventKind  `json:"kind"`
	ID        any        `json:"id,omitempty"`
	Model     Document   `json:"model,omitempty"`
	Models    []Created  `json:"models,omitempty"`
	ChangeSet *UpdateSet `json:"change_set,omitempty"`
	Match     Filter     `json:"match,omitempty"`
	Affected  int64      `json:"affected"`
}

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e.Kind {
	case EventBatchCreated:
		return fmt.Sprintf("%s(%d)", e.Kind, len(e.Models))
	case EventDeleted:
		if e.Match != nil {
			return fmt.Sprintf("%s(match, %d)", e.Kind, e.Affected)
		}
	}
	return fmt.Sprintf("%s(%v)", e.Kind, e.ID)
}

// Clone returns a deep copy of doc. Nested documents and sequences are
// copied; other values are shared.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
