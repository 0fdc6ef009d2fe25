// Package silo is the composition root of the silo document repository.
//
// A repository wraps one collection of a backing store and maps create,
// batch create, read, update, delete and find on caller models to
// collection operations. Updates are persisted as minimal update sets:
// the stored document is diffed against the incoming model and only the
// changed fields (down to array indexes) are assigned or removed.
//
// Features:
//
//   - Diff-based partial updates (pkg/diff, pkg/update), exportable as RFC 6902 patches.
//   - Timestamp injection through declarative path pointers (pkg/pointer).
//   - Lifecycle events through listeners or a channel.
//   - Typed access over Go structs (NewTyped).
//   - Bundled stores: memory, SQLite and a directory of JSON/YAML files.
//
// Usage:
//
//	users, err := silo.Open("sqlite://./data/silo.db", silo.Config{
//		Collection:        "users",
//		TimestampOnCreate: []any{"createdAt", "updatedAt"},
//		TimestampOnUpdate: []any{"updatedAt"},
//	}, silo.WithLogger(logger))
//
//	user, err := users.Create(ctx, silo.Document{"name": "Ada"})
//	user["name"] = "Ada Lovelace"
//	n, err := users.Update(ctx, user)
package silo
