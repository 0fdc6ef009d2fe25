package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/diff"
	"github.com/aretw0/silo/pkg/pointer"
)

// DefaultBatchConcurrency bounds parallel validation in BatchCreate.
const DefaultBatchConcurrency = 8

// Config describes one repository. Every hook is optional.
type Config struct {
	// Collection is the backing collection name. Required.
	Collection string

	// ID names the model property holding the identity. Defaults to core.IDField.
	ID string
	// IDFunc extracts the identity of a model and overrides ID.
	IDFunc func(model core.Document) (any, bool)

	// DescriptiveName is used in error text. Defaults to Collection.
	DescriptiveName string

	// TimestampOnCreate and TimestampOnUpdate list the fields set to the
	// current UTC instant. Entries are path strings or pointer.Pointer values.
	TimestampOnCreate []any
	TimestampOnUpdate []any

	// Validate rejects a model before anything is written.
	Validate func(ctx context.Context, model core.Document) error

	// ToStorage and FromStorage convert between the model shape and the
	// stored shape. They must be stable: converting an unchanged model twice
	// must yield the same document.
	ToStorage   func(model core.Document) (core.Document, error)
	FromStorage func(stored core.Document) (core.Document, error)

	// FilterDiff excludes fields from update diffs.
	FilterDiff diff.Filter
	// PostCompile may rewrite the compiled update set of model.
	PostCompile func(set core.UpdateSet, model core.Document) (core.UpdateSet, error)

	// TranslateError maps every persistence error before it is returned.
	// The default rewrites duplicate keys to *core.ConflictError.
	TranslateError func(err error) error

	// OnNotFound and OnNotFoundOnUpdate build the error returned for a
	// missing identity. Both default to *core.NotFoundError.
	OnNotFound         func(id any) error
	OnNotFoundOnUpdate func(id any) error

	// IDGenerator creates identities for models that carry none.
	IDGenerator func() any
	// Clock is the timestamp source.
	Clock pointer.Clock
	// Logger receives pipeline diagnostics.
	Logger *slog.Logger
	// BatchConcurrency bounds parallel validation in BatchCreate.
	BatchConcurrency int
}

// strategy is a Config resolved once into immutable values.
type strategy struct {
	name        string
	idField     string
	identity    func(core.Document) (any, bool)
	onCreate    []pointer.Pointer
	onUpdate    []pointer.Pointer
	validate    func(context.Context, core.Document) error
	toStorage   func(core.Document) (core.Document, error)
	fromStorage func(core.Document) (core.Document, error)
	diffOpts    []diff.Option
	postCompile func(core.UpdateSet, core.Document) (core.UpdateSet, error)
	translate   func(error) error
	notFound    func(any) error
	notFoundUpd func(any) error
	newID       func() any
	clock       pointer.Clock
	logger      *slog.Logger
	batchLimit  int
}

func resolve(cfg Config) (*strategy, error) {
	if cfg.Collection == "" {
		return nil, &core.InvalidArgumentError{Arg: "collection", Reason: "collection name is required"}
	}
	s := &strategy{
		name:        cfg.DescriptiveName,
		idField:     cfg.ID,
		identity:    cfg.IDFunc,
		validate:    cfg.Validate,
		toStorage:   cfg.ToStorage,
		fromStorage: cfg.FromStorage,
		postCompile: cfg.PostCompile,
		translate:   cfg.TranslateError,
		notFound:    cfg.OnNotFound,
		notFoundUpd: cfg.OnNotFoundOnUpdate,
		newID:       cfg.IDGenerator,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		batchLimit:  cfg.BatchConcurrency,
	}
	if s.name == "" {
		s.name = cfg.Collection
	}
	if s.idField == "" {
		s.idField = core.IDField
	}
	if s.identity == nil {
		field := s.idField
		s.identity = func(model core.Document) (any, bool) {
			id, ok := model[field]
			return id, ok && id != nil
		}
	}

	var err error
	if s.onCreate, err = pointer.ResolveAll(cfg.TimestampOnCreate); err != nil {
		return nil, fmt.Errorf("timestamp_on_create: %w", err)
	}
	if s.onUpdate, err = pointer.ResolveAll(cfg.TimestampOnUpdate); err != nil {
		return nil, fmt.Errorf("timestamp_on_update: %w", err)
	}

	if s.validate == nil {
		s.validate = func(context.Context, core.Document) error { return nil }
	}
	if s.toStorage == nil {
		s.toStorage = passThrough
	}
	if s.fromStorage == nil {
		s.fromStorage = passThrough
	}
	if cfg.FilterDiff != nil {
		s.diffOpts = append(s.diffOpts, diff.WithFilter(cfg.FilterDiff))
	}
	if s.translate == nil {
		s.translate = DuplicateKeyTranslator(s.name)
	}
	if s.notFound == nil {
		s.notFound = notFoundFor(s.name)
	}
	if s.notFoundUpd == nil {
		s.notFoundUpd = notFoundFor(s.name)
	}
	if s.newID == nil {
		s.newID = func() any { return uuid.NewString() }
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.batchLimit <= 0 {
		s.batchLimit = DefaultBatchConcurrency
	}
	return s, nil
}

func passThrough(doc core.Document) (core.Document, error) { return doc, nil }

func notFoundFor(name string) func(any) error {
	return func(id any) error { return &core.NotFoundError{Name: name, ID: id} }
}

// DuplicateKeyTranslator returns the default error translation: duplicate
// key violations become *core.ConflictError, anything else passes through.
func DuplicateKeyTranslator(name string) func(error) error {
	return func(err error) error {
		if core.IsDuplicateKey(err) {
			return &core.ConflictError{Name: name, Err: err}
		}
		return err
	}
}
