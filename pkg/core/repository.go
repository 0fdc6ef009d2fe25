package core

import "context"

// Connection is an open handle on a backing document store.
// Adhering to this interface keeps the repository independent of the
// underlying storage mechanism (memory, SQLite, files, a remote server).
type Connection interface {
	// Collection returns a handle on the named collection, creating it lazily.
	Collection(name string) (Collection, error)

	// Close releases the underlying resources.
	Close() error
}

// Collection is one named set of documents keyed by IDField.
type Collection interface {
	// FindOne returns the first document matching filter, or nil when none does.
	FindOne(ctx context.Context, filter Filter) (Document, error)

	// Find returns a cursor over every document matching filter.
	Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error)

	// Insert stores new documents. A document whose IDField already exists
	// fails with an error matching ErrDuplicateKey. Documents preceding the
	// failing one may already be stored.
	Insert(ctx context.Context, docs ...Document) error

	// Update applies set to every document matching filter.
	Update(ctx context.Context, filter Filter, set UpdateSet) (UpdateResult, error)

	// Remove deletes matching documents and returns how many were removed.
	Remove(ctx context.Context, filter Filter, opts RemoveOptions) (int64, error)
}

// Cursor is a drainable sequence of documents.
type Cursor interface {
	// Next advances to the next document. It returns false at the end of the
	// sequence or on error.
	Next(ctx context.Context) bool

	// Document returns the current document.
	Document() Document

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the cursor.
	Close(ctx context.Context) error
}

// Watchable is implemented by collections that report external changes.
type Watchable interface {
	// Watch streams change notifications for ids matching pattern until ctx ends.
	Watch(ctx context.Context, pattern string) (<-chan Change, error)
}

// ChangeType is the type of an externally observed change.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeModify ChangeType = "MODIFY"
	ChangeDelete ChangeType = "DELETE"
)

// Change is a storage-level notification emitted by a Watchable collection.
type Change struct {
	Type      ChangeType
	ID        string
	Timestamp int64 // Unix timestamp
}

// String implements fmt.Stringer.
func (c Change) String() string {
	return string(c.Type) + " " + c.ID
}

// All drains cur into a slice and closes it.
func All(ctx context.Context, cur Cursor) ([]Document, error) {
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// SliceCursor serves documents from memory.
type SliceCursor struct {
	docs []Document
	pos  int
	cur  Document
	err  error
}

// NewSliceCursor creates a cursor over docs.
func NewSliceCursor(docs []Document) *SliceCursor {
	return &SliceCursor{docs: docs}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.docs) {
		c.cur = nil
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *SliceCursor) Document() Document { return c.cur }

func (c *SliceCursor) Err() error { return c.err }

func (c *SliceCursor) Close(ctx context.Context) error {
	c.docs = nil
	c.cur = nil
	return nil
}
