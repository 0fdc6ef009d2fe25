package platform

import (
	"log/slog"

	"github.com/aretw0/silo/pkg/adapters/dir"
	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/pointer"
)

// options holds the internal configuration used by Connect and Open.
type options struct {
	connection       core.Connection
	logger           *slog.Logger
	clock            pointer.Clock
	idGenerator      func() any
	readOnly         bool
	mustExist        bool
	format           dir.Format
	batchConcurrency int
}

// Option defines a functional option for configuring silo.
type Option func(*options)

func defaultOptions() *options {
	return &options{}
}

func apply(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WithLogger sets the logger used by the adapters and the repository.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces the timestamp source.
func WithClock(clock pointer.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithIDGenerator replaces the identity generator for models with no identity.
func WithIDGenerator(fn func() any) Option {
	return func(o *options) {
		o.idGenerator = fn
	}
}

// WithConnection injects an already open connection (e.g. a custom adapter).
// The URI is ignored when set.
func WithConnection(conn core.Connection) Option {
	return func(o *options) {
		o.connection = conn
	}
}

// WithReadOnly opens file based stores in read-only mode: every write
// fails with core.ErrReadOnly and nothing is created on disk.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithMustExist refuses to create a missing store directory.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithFormat selects the document format of dir:// stores. A format query
// parameter in the URI takes precedence.
func WithFormat(format dir.Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithBatchConcurrency bounds parallel validation in BatchCreate.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		o.batchConcurrency = n
	}
}
