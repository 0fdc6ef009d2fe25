// Package dir stores every collection as a directory and every document as
// one file inside it (JSON or YAML). Writes are atomic renames.
//
// Layout:
//
//	<root>/<collection>/<id>.json
//
// Listing order is file name order.
package dir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/query"
	"github.com/aretw0/silo/pkg/update"
)

// Config holds the configuration for a directory store.
type Config struct {
	Path     string
	Format   Format
	ReadOnly bool
	Logger   *slog.Logger
	// MustExist refuses to create Path when it is missing.
	MustExist bool
}

// Connection is a directory store rooted at Config.Path.
type Connection struct {
	Path    string
	config  Config
	matcher *query.Matcher

	mu            sync.Mutex
	collections   map[string]*Collection
	watchersAlive int
}

// Open prepares the root directory and returns a connection on it.
func Open(config Config) (*Connection, error) {
	if config.Path == "" {
		return nil, &core.InvalidArgumentError{Arg: "path", Reason: "path is empty"}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Format == "" {
		config.Format = FormatJSON
	}

	if config.MustExist || config.ReadOnly {
		info, err := os.Stat(config.Path)
		if err != nil {
			return nil, fmt.Errorf("store path does not exist: %s", config.Path)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("store path is not a directory: %s", config.Path)
		}
	} else if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	config.Logger.Debug("dir store opened", "path", config.Path, "format", config.Format, "read_only", config.ReadOnly)
	return &Connection{
		Path:        config.Path,
		config:      config,
		matcher:     query.NewMatcher(),
		collections: make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection. The directory is created on the
// first write, never in read-only mode.
func (c *Connection) Collection(name string) (core.Collection, error) {
	return c.collection(name)
}

func (c *Connection) collection(name string) (*Collection, error) {
	if name == "" {
		return nil, &core.InvalidArgumentError{Arg: "collection", Reason: "name is empty"}
	}
	if name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return nil, &core.InvalidArgumentError{Arg: "collection", Reason: fmt.Sprintf("%q is not a plain directory name", name)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.collections[name]
	if !ok {
		coll = &Collection{conn: c, name: name, path: filepath.Join(c.Path, name)}
		c.collections[name] = coll
	}
	return coll, nil
}

// Close releases nothing; watchers stop with their context.
func (c *Connection) Close() error {
	return nil
}

// Collection is one directory of document files.
type Collection struct {
	conn *Connection
	name string
	path string
	mu   sync.RWMutex
}

type entry struct {
	file string
	doc  core.Document
}

func (c *Collection) ext() string { return c.conn.config.Format.Ext() }

func (c *Collection) guard() error {
	if c.conn.config.ReadOnly {
		return fmt.Errorf("%s: %w", c.name, core.ErrReadOnly)
	}
	return nil
}

func (c *Collection) fileFor(id any) (string, error) {
	stem, err := encodeName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.path, stem+c.ext()), nil
}

func (c *Collection) read(file string) (core.Document, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	doc, err := c.conn.config.Format.unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	return doc, nil
}

func (c *Collection) write(file string, doc core.Document) error {
	data, err := c.conn.config.Format.marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	return replaceFile(file, data)
}

// scan reads and filters the collection. Caller holds c.mu.
func (c *Collection) scan(ctx context.Context, filter core.Filter, single bool) ([]entry, error) {
	if id, ok := filter[core.IDField]; ok && len(filter) == 1 && isScalar(id) {
		if file, err := c.fileFor(id); err == nil {
			doc, err := c.read(file)
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			ok, err := c.conn.matcher.Match(filter, doc)
			if err != nil || !ok {
				return nil, err
			}
			return []entry{{file: file, doc: doc}}, nil
		}
	}

	dirEntries, err := os.ReadDir(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || isTempFile(name) || filepath.Ext(name) != c.ext() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var out []entry
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file := filepath.Join(c.path, name)
		doc, err := c.read(file)
		if errors.Is(err, os.ErrNotExist) {
			continue // removed underneath us
		}
		if err != nil {
			c.conn.config.Logger.Warn("skipping unreadable document", "file", file, "error", err)
			continue
		}
		ok, err := c.conn.matcher.Match(filter, doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, entry{file: file, doc: doc})
		if single {
			break
		}
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return true
	}
	return false
}

func (c *Collection) FindOne(ctx context.Context, filter core.Filter) (core.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found, err := c.scan(ctx, filter, true)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0].doc, nil
}

func (c *Collection) Find(ctx context.Context, filter core.Filter, opts core.FindOptions) (core.Cursor, error) {
	c.mu.RLock()
	found, err := c.scan(ctx, filter, false)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	docs := make([]core.Document, len(found))
	for i, e := range found {
		docs[i] = e.doc
	}
	window, err := query.Window(docs, opts)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(window), nil
}

// Insert checks every document for conflicts before writing any of them.
func (c *Collection) Insert(ctx context.Context, docs ...core.Document) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	type pending struct {
		file string
		doc  core.Document
	}
	batch := make([]pending, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		norm, err := normalize(doc)
		if err != nil {
			return fmt.Errorf("insert %d: %w", i, err)
		}
		if _, ok := norm[core.IDField]; !ok {
			norm[core.IDField] = uuid.NewString()
		}
		file, err := c.fileFor(norm[core.IDField])
		if err != nil {
			return fmt.Errorf("insert %d: %w", i, err)
		}
		if seen[file] {
			return fmt.Errorf("insert %s: %w: %s=%v", c.name, core.ErrDuplicateKey, core.IDField, norm[core.IDField])
		}
		if _, err := os.Stat(file); err == nil {
			return fmt.Errorf("insert %s: %w: %s=%v", c.name, core.ErrDuplicateKey, core.IDField, norm[core.IDField])
		}
		seen[file] = true
		batch = append(batch, pending{file: file, doc: norm})
	}

	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}
	for _, p := range batch {
		if err := c.write(p.file, p.doc); err != nil {
			return fmt.Errorf("insert %s: %w", c.name, err)
		}
	}
	return nil
}

func (c *Collection) Update(ctx context.Context, filter core.Filter, set core.UpdateSet) (core.UpdateResult, error) {
	if err := c.guard(); err != nil {
		return core.UpdateResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	found, err := c.scan(ctx, filter, false)
	if err != nil {
		return core.UpdateResult{}, err
	}
	res := core.UpdateResult{Matched: int64(len(found))}
	if set.IsEmpty() {
		return res, nil
	}

	for _, e := range found {
		next, err := update.Apply(e.doc, set)
		if err != nil {
			return res, err
		}
		next, err = normalize(next)
		if err != nil {
			return res, err
		}
		id, ok := next[core.IDField]
		if !ok {
			return res, fmt.Errorf("update %s: cannot remove %s", c.name, core.IDField)
		}
		if file, err := c.fileFor(id); err != nil || file != e.file {
			return res, fmt.Errorf("update %s: cannot change %s", c.name, core.IDField)
		}
		if err := c.write(e.file, next); err != nil {
			return res, fmt.Errorf("update %s: %w", c.name, err)
		}
		res.Modified++
	}
	return res, nil
}

func (c *Collection) Remove(ctx context.Context, filter core.Filter, opts core.RemoveOptions) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	found, err := c.scan(ctx, filter, opts.Single)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, e := range found {
		if err := os.Remove(e.file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", c.name, err)
		}
		removed++
	}
	return removed, nil
}

// ConnectionState exposes internal state for observability.
type ConnectionState struct {
	Path        string   `json:"path"`
	Format      string   `json:"format"`
	ReadOnly    bool     `json:"read_only"`
	Collections []string `json:"collections,omitempty"`
	Watchers    int      `json:"watchers"`
}

// State implements introspection.Introspectable.
func (c *Connection) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return ConnectionState{
		Path:        c.Path,
		Format:      string(c.config.Format),
		ReadOnly:    c.config.ReadOnly,
		Collections: names,
		Watchers:    c.watchersAlive,
	}
}

// ComponentType implements introspection.Component.
func (c *Connection) ComponentType() string {
	return "dir-connection"
}

func (c *Connection) setWatcherActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.watchersAlive++
	} else {
		c.watchersAlive--
	}
}

var _ core.Connection = (*Connection)(nil)
var _ core.Collection = (*Collection)(nil)
var _ core.Watchable = (*Collection)(nil)
var _ introspection.Introspectable = (*Connection)(nil)
var _ introspection.Component = (*Connection)(nil)
