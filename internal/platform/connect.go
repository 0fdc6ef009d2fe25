package platform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aretw0/silo/pkg/adapters/dir"
	"github.com/aretw0/silo/pkg/adapters/memory"
	"github.com/aretw0/silo/pkg/adapters/sqlite"
	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/repository"
)

// Connect opens the store addressed by uri:
//
//	memory://                  ephemeral in-memory store
//	sqlite://<path>            SQLite database file
//	sqlite::memory:            private in-memory SQLite database
//	dir://<path>[?format=yaml] one file per document
func Connect(uri string, opts ...Option) (core.Connection, error) {
	o := apply(opts)
	if o.connection != nil {
		return o.connection, nil
	}
	return connect(uri, o)
}

func connect(uri string, o *options) (core.Connection, error) {
	if uri == "sqlite::memory:" {
		return sqlite.Open(sqlite.MemoryPath, o.logger)
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, &core.InvalidArgumentError{Arg: "uri", Reason: fmt.Sprintf("%q has no scheme", uri)}
	}
	path, rawQuery, _ := strings.Cut(rest, "?")

	switch scheme {
	case "memory":
		return memory.Connect(), nil
	case "sqlite":
		if path == "" {
			return nil, &core.InvalidArgumentError{Arg: "uri", Reason: "sqlite path is empty"}
		}
		if o.readOnly {
			return nil, fmt.Errorf("sqlite: %w", core.ErrReadOnly)
		}
		return sqlite.Open(path, o.logger)
	case "dir":
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, &core.InvalidArgumentError{Arg: "uri", Reason: err.Error()}
		}
		format := o.format
		if f := query.Get("format"); f != "" {
			if format, err = dir.ParseFormat(f); err != nil {
				return nil, err
			}
		}
		return dir.Open(dir.Config{
			Path:      path,
			Format:    format,
			ReadOnly:  o.readOnly,
			MustExist: o.mustExist,
			Logger:    o.logger,
		})
	default:
		return nil, &core.InvalidArgumentError{Arg: "uri", Reason: fmt.Sprintf("unknown scheme %q", scheme)}
	}
}

// Open connects to uri and builds the repository described by cfg.
// Options fill in the Config fields left unset. Closing the connection is
// up to the caller.
func Open(uri string, cfg repository.Config, opts ...Option) (*repository.Repository, core.Connection, error) {
	o := apply(opts)
	conn := o.connection
	if conn == nil {
		var err error
		if conn, err = connect(uri, o); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = o.logger
	}
	if cfg.Clock == nil {
		cfg.Clock = o.clock
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = o.idGenerator
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = o.batchConcurrency
	}

	repo, err := repository.New(conn, cfg)
	if err != nil {
		if o.connection == nil {
			conn.Close()
		}
		return nil, nil, err
	}
	return repo, conn, nil
}
