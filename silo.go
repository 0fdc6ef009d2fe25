package silo

import (
	_ "embed"
	"log/slog"

	"github.com/aretw0/silo/internal/platform"
	"github.com/aretw0/silo/pkg/adapters/dir"
	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
	"github.com/aretw0/silo/pkg/repository"
)

// Version exposes the version of the library.
//
//go:embed VERSION
var Version string

// --- Types ---

// Document is a stored or caller model.
type Document = core.Document

// Filter is a query passed to the backing collection.
type Filter = core.Filter

// Config describes one repository.
type Config = repository.Config

// Repository is the untyped repository facade.
type Repository = repository.Repository

// Event is a lifecycle notification.
type Event = core.Event

// Listener observes repository events.
type Listener = repository.Listener

// ListenerFunc adapts a function to Listener.
type ListenerFunc = repository.ListenerFunc

// --- Configuration ---

// Option defines a functional option for configuring silo.
type Option = platform.Option

// WithLogger sets the logger for the adapters and the repository.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithClock replaces the timestamp source.
func WithClock(clock pointer.Clock) Option {
	return platform.WithClock(clock)
}

// WithIDGenerator replaces the identity generator.
func WithIDGenerator(fn func() any) Option {
	return platform.WithIDGenerator(fn)
}

// WithConnection injects a custom adapter.
func WithConnection(conn core.Connection) Option {
	return platform.WithConnection(conn)
}

// WithReadOnly opens file based stores in read-only mode.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithMustExist refuses to create a missing store directory.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithFormat selects the file format of dir:// stores.
func WithFormat(format dir.Format) Option {
	return platform.WithFormat(format)
}

// WithBatchConcurrency bounds parallel validation in BatchCreate.
func WithBatchConcurrency(n int) Option {
	return platform.WithBatchConcurrency(n)
}

// --- Factory ---

// Connect opens the store addressed by uri (memory://, sqlite://<path>,
// sqlite::memory:, dir://<path>[?format=yaml]).
func Connect(uri string, opts ...Option) (core.Connection, error) {
	return platform.Connect(uri, opts...)
}

// Open connects to uri and returns the repository described by cfg.
// Closing the returned repository's store is done with Close.
func Open(uri string, cfg Config, opts ...Option) (*Handle, error) {
	repo, conn, err := platform.Open(uri, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Handle{Repository: repo, conn: conn}, nil
}

// Handle is a repository that owns its connection.
type Handle struct {
	*Repository
	conn core.Connection
}

// Close closes the underlying connection.
func (h *Handle) Close() error {
	return h.conn.Close()
}

// Connection returns the underlying store, e.g. to reach core.Watchable.
func (h *Handle) Connection() core.Connection {
	return h.conn
}
