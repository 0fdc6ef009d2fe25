// Package memory implements an ephemeral in-memory document store.
// Data is lost when the connection is closed. Safe for concurrent use.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/query"
	"github.com/aretw0/silo/pkg/update"
)

// Connection holds every collection in memory.
type Connection struct {
	mu          sync.Mutex
	collections map[string]*Collection
	matcher     *query.Matcher
}

// Connect returns a fresh, empty in-memory store.
func Connect() *Connection {
	return &Connection{
		collections: make(map[string]*Collection),
		matcher:     query.NewMatcher(),
	}
}

// Collection returns the named collection, creating it on first use.
func (c *Connection) Collection(name string) (core.Collection, error) {
	if name == "" {
		return nil, &core.InvalidArgumentError{Arg: "collection", Reason: "name is empty"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.collections[name]
	if !ok {
		coll = &Collection{
			name:    name,
			docs:    make(map[string]core.Document),
			matcher: c.matcher,
		}
		c.collections[name] = coll
	}
	return coll, nil
}

// Close drops every collection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = make(map[string]*Collection)
	return nil
}

// Collection is one in-memory collection. Documents are stored as JSON
// round-tripped copies so callers never share state with the store.
type Collection struct {
	mu      sync.RWMutex
	name    string
	docs    map[string]core.Document
	order   []string // insertion order of keys
	matcher *query.Matcher
}

// deepCopy returns a deep copy of a document by round-tripping through JSON.
func deepCopy(src core.Document) (core.Document, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("document is not serializable: %w", err)
	}
	var dst core.Document
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// key normalises an identity value into a map key.
func key(id any) (string, error) {
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("identity is not serializable: %w", err)
	}
	return string(b), nil
}

func (c *Collection) FindOne(ctx context.Context, filter core.Filter) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, k := range c.order {
		doc := c.docs[k]
		ok, err := c.matcher.Match(filter, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			return deepCopy(doc)
		}
	}
	return nil, nil
}

func (c *Collection) Find(ctx context.Context, filter core.Filter, opts core.FindOptions) (core.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	var matched []core.Document
	for _, k := range c.order {
		doc := c.docs[k]
		ok, err := c.matcher.Match(filter, doc)
		if err != nil {
			c.mu.RUnlock()
			return nil, err
		}
		if ok {
			cp, err := deepCopy(doc)
			if err != nil {
				c.mu.RUnlock()
				return nil, err
			}
			matched = append(matched, cp)
		}
	}
	c.mu.RUnlock()

	window, err := query.Window(matched, opts)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(window), nil
}

// Insert stores docs in order, stopping at the first failure.
func (c *Collection) Insert(ctx context.Context, docs ...core.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range docs {
		cp, err := deepCopy(doc)
		if err != nil {
			return fmt.Errorf("insert %d: %w", i, err)
		}
		if cp == nil {
			cp = core.Document{}
		}
		if _, ok := cp[core.IDField]; !ok {
			cp[core.IDField] = uuid.NewString()
		}
		k, err := key(cp[core.IDField])
		if err != nil {
			return err
		}
		if _, exists := c.docs[k]; exists {
			return fmt.Errorf("insert %s: %w: %s=%s", c.name, core.ErrDuplicateKey, core.IDField, k)
		}
		c.docs[k] = cp
		c.order = append(c.order, k)
	}
	return nil
}

func (c *Collection) Update(ctx context.Context, filter core.Filter, set core.UpdateSet) (core.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UpdateResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var res core.UpdateResult
	for _, k := range c.order {
		doc := c.docs[k]
		ok, err := c.matcher.Match(filter, doc)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		res.Matched++
		if set.IsEmpty() {
			continue
		}

		next, err := update.Apply(doc, set)
		if err != nil {
			return res, err
		}
		next, err = deepCopy(next)
		if err != nil {
			return res, err
		}
		if _, ok := next[core.IDField]; !ok {
			return res, fmt.Errorf("update %s: cannot remove %s", c.name, core.IDField)
		}
		nk, err := key(next[core.IDField])
		if err != nil {
			return res, err
		}
		if nk != k {
			return res, fmt.Errorf("update %s: cannot change %s", c.name, core.IDField)
		}
		c.docs[k] = next
		res.Modified++
	}
	return res, nil
}

func (c *Collection) Remove(ctx context.Context, filter core.Filter, opts core.RemoveOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := make(map[string]bool)
	for _, k := range c.order {
		ok, err := c.matcher.Match(filter, c.docs[k])
		if err != nil {
			return 0, err
		}
		if ok {
			doomed[k] = true
			if opts.Single {
				break
			}
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	kept := make([]string, 0, len(c.order)-len(doomed))
	for _, k := range c.order {
		if doomed[k] {
			delete(c.docs, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	return int64(len(doomed)), nil
}

// CollectionState exposes internal state for observability.
type CollectionState struct {
	Name      string   `json:"name"`
	Documents int      `json:"documents"`
	Sample    []string `json:"sample,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Collection) State() any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sample := append([]string(nil), c.order...)
	sort.Strings(sample)
	if len(sample) > 10 {
		sample = sample[:10]
	}
	return CollectionState{Name: c.name, Documents: len(c.docs), Sample: sample}
}

// ComponentType implements introspection.Component.
func (c *Collection) ComponentType() string {
	return "memory-collection"
}

var _ core.Connection = (*Connection)(nil)
var _ core.Collection = (*Collection)(nil)
var _ introspection.Introspectable = (*Collection)(nil)
var _ introspection.Component = (*Collection)(nil)
