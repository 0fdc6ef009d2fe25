// Package sqlite stores collections in a single SQLite database.
//
// Table:
//
//	documents(seq, collection, id, data)  UNIQUE (collection, id)
//
// Each document is kept as a JSON text column; id holds the JSON encoding of
// the document's identity. Partial updates are applied as RFC 6902 patches.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/query"
	"github.com/aretw0/silo/pkg/update"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Connection is an open SQLite database.
type Connection struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	matcher *query.Matcher
}

// Open opens (and creates if needed) the database at path.
func Open(path string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == MemoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		UNIQUE (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("sqlite store opened", "path", path)
	return &Connection{db: db, path: path, logger: logger, matcher: query.NewMatcher()}, nil
}

// Collection returns a handle on the named collection.
func (c *Connection) Collection(name string) (core.Collection, error) {
	if name == "" {
		return nil, &core.InvalidArgumentError{Arg: "collection", Reason: "name is empty"}
	}
	return &Collection{conn: c, name: name}, nil
}

// Close closes the database.
func (c *Connection) Close() error {
	return c.db.Close()
}

// Collection is one named collection inside the database.
type Collection struct {
	conn *Connection
	name string
}

type row struct {
	seq int64
	id  string
	raw string
	doc core.Document
}

func encodeID(id any) (string, error) {
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("identity is not serializable: %w", err)
	}
	return string(b), nil
}

// idLookup returns the encoded identity when filter is a plain identity match.
func idLookup(filter core.Filter) (string, bool) {
	if len(filter) != 1 {
		return "", false
	}
	id, ok := filter[core.IDField]
	if !ok {
		return "", false
	}
	switch id.(type) {
	case map[string]any, []any, nil:
		return "", false
	}
	enc, err := encodeID(id)
	if err != nil {
		return "", false
	}
	return enc, true
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scan loads the candidate rows for filter and keeps those that match.
func (c *Collection) scan(ctx context.Context, q querier, filter core.Filter, single bool) ([]row, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if id, ok := idLookup(filter); ok {
		rows, err = q.QueryContext(ctx,
			"SELECT seq, id, data FROM documents WHERE collection = ? AND id = ?", c.name, id)
	} else {
		rows, err = q.QueryContext(ctx,
			"SELECT seq, id, data FROM documents WHERE collection = ? ORDER BY seq", c.name)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.id, &r.raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(r.raw), &r.doc); err != nil {
			c.conn.logger.Warn("skipping undecodable document", "collection", c.name, "id", r.id, "error", err)
			continue
		}
		ok, err := c.conn.matcher.Match(filter, r.doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, r)
		if single {
			break
		}
	}
	return out, rows.Err()
}

func (c *Collection) FindOne(ctx context.Context, filter core.Filter) (core.Document, error) {
	rows, err := c.scan(ctx, c.conn.db, filter, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].doc, nil
}

func (c *Collection) Find(ctx context.Context, filter core.Filter, opts core.FindOptions) (core.Cursor, error) {
	rows, err := c.scan(ctx, c.conn.db, filter, false)
	if err != nil {
		return nil, err
	}
	docs := make([]core.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	window, err := query.Window(docs, opts)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(window), nil
}

// Insert stores docs in one transaction: either all are stored or none.
func (c *Collection) Insert(ctx context.Context, docs ...core.Document) error {
	tx, err := c.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, doc := range docs {
		if doc == nil {
			doc = core.Document{}
		}
		id, ok := doc[core.IDField]
		if !ok {
			// shallow copy so the caller's map is left untouched
			withID := make(core.Document, len(doc)+1)
			for k, v := range doc {
				withID[k] = v
			}
			id = uuid.NewString()
			withID[core.IDField] = id
			doc = withID
		}
		encID, err := encodeID(id)
		if err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("insert %d: document is not serializable: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
			c.name, encID, string(data),
		); err != nil {
			var se sqlite3.Error
			if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
				return fmt.Errorf("insert %s: %w: %s=%s (%v)", c.name, core.ErrDuplicateKey, core.IDField, encID, err)
			}
			return fmt.Errorf("insert %s: %w", c.name, err)
		}
	}
	return tx.Commit()
}

func (c *Collection) Update(ctx context.Context, filter core.Filter, set core.UpdateSet) (core.UpdateResult, error) {
	tx, err := c.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return core.UpdateResult{}, err
	}
	defer tx.Rollback()

	rows, err := c.scan(ctx, tx, filter, false)
	if err != nil {
		return core.UpdateResult{}, err
	}

	res := core.UpdateResult{Matched: int64(len(rows))}
	if set.IsEmpty() {
		return res, tx.Commit()
	}

	for _, r := range rows {
		patched, err := update.ApplyJSON([]byte(r.raw), set)
		if err != nil {
			return core.UpdateResult{}, fmt.Errorf("update %s %s: %w", c.name, r.id, err)
		}
		var next core.Document
		if err := json.Unmarshal(patched, &next); err != nil {
			return core.UpdateResult{}, err
		}
		id, ok := next[core.IDField]
		if !ok {
			return core.UpdateResult{}, fmt.Errorf("update %s: cannot remove %s", c.name, core.IDField)
		}
		if enc, err := encodeID(id); err != nil || enc != r.id {
			return core.UpdateResult{}, fmt.Errorf("update %s: cannot change %s", c.name, core.IDField)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET data = ? WHERE seq = ?", string(patched), r.seq); err != nil {
			return core.UpdateResult{}, err
		}
		res.Modified++
	}
	return res, tx.Commit()
}

func (c *Collection) Remove(ctx context.Context, filter core.Filter, opts core.RemoveOptions) (int64, error) {
	tx, err := c.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := c.scan(ctx, tx, filter, opts.Single)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, r := range rows {
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE seq = ?", r.seq)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, tx.Commit()
}

// ConnectionState exposes internal state for observability.
type ConnectionState struct {
	Path        string         `json:"path"`
	OpenConns   int            `json:"open_connections"`
	Collections map[string]int `json:"collections,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Connection) State() any {
	state := ConnectionState{Path: c.path, OpenConns: c.db.Stats().OpenConnections}
	rows, err := c.db.Query("SELECT collection, COUNT(*) FROM documents GROUP BY collection")
	if err != nil {
		return state
	}
	defer rows.Close()
	state.Collections = make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			break
		}
		state.Collections[name] = n
	}
	return state
}

// ComponentType implements introspection.Component.
func (c *Connection) ComponentType() string {
	return "sqlite-connection"
}

var _ core.Connection = (*Connection)(nil)
var _ core.Collection = (*Collection)(nil)
var _ introspection.Introspectable = (*Connection)(nil)
var _ introspection.Component = (*Connection)(nil)
