package repository

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/silo/pkg/pointer"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Collection        string   `json:"collection"`
	Name              string   `json:"name"`
	IDField           string   `json:"id_field"`
	TimestampOnCreate []string `json:"timestamp_on_create,omitempty"`
	TimestampOnUpdate []string `json:"timestamp_on_update,omitempty"`
	Listeners         int      `json:"listeners"`
	Created           int64    `json:"created"`
	Updated           int64    `json:"updated"`
	Deleted           int64    `json:"deleted"`
	Fetched           int64    `json:"fetched"`
	DroppedEvents     int64    `json:"dropped_events"`
	Store             any      `json:"store,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	listeners := len(r.listeners)
	r.mu.RUnlock()

	state := RepositoryState{
		Collection:        r.collection,
		Name:              r.s.name,
		IDField:           r.s.idField,
		TimestampOnCreate: dotted(r.s.onCreate),
		TimestampOnUpdate: dotted(r.s.onUpdate),
		Listeners:         listeners,
		Created:           r.stats.created.Load(),
		Updated:           r.stats.updated.Load(),
		Deleted:           r.stats.deleted.Load(),
		Fetched:           r.stats.fetched.Load(),
		DroppedEvents:     r.stats.dropped.Load(),
	}
	if in, ok := r.coll.(introspection.Introspectable); ok {
		state.Store = in.State()
	}
	return state
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

func dotted(ps []pointer.Pointer) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Dotted()
	}
	return out
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
