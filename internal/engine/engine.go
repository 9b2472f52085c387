// Package engine executes tenant scoped reads and writes against the backing
// document store. Every operation takes an explicit organization ID.
//
// Writes fan out in two ways. Registered WriteHooks contribute additional
// writes to the same atomic commit as the source mutation, so derived documents
// such as index entries can never drift from their source. Registered Observers
// are notified after a successful commit and cannot fail the write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/cache"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"github.com/wolfeidau/disciplinary/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 500

	// DefaultMaxConflictRetries bounds read-modify-write attempts when a
	// concurrent writer changes the document between read and commit.
	DefaultMaxConflictRetries = 5
)

// Change describes a committed or about to be committed source mutation.
// Before is nil for creations and After is nil for deletions.
type Change struct {
	OrganizationID string
	Kind           tenant.Kind
	ID             string
	Before         store.Fields
	After          store.Fields
}

func (c Change) Created() bool { return c.Before == nil && c.After != nil }
func (c Change) Deleted() bool { return c.Before != nil && c.After == nil }

// WriteHook returns extra writes committed atomically with a source mutation.
// An error aborts the whole mutation.
type WriteHook interface {
	Writes(ctx context.Context, change Change) ([]store.Write, error)
}

// WriteHookFunc adapts a function to WriteHook.
type WriteHookFunc func(ctx context.Context, change Change) ([]store.Write, error)

func (f WriteHookFunc) Writes(ctx context.Context, change Change) ([]store.Write, error) {
	return f(ctx, change)
}

// Observer is notified after a mutation has been committed.
type Observer interface {
	Changed(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change)

func (f ObserverFunc) Changed(ctx context.Context, change Change) { f(ctx, change) }

// Options configures an Engine.
type Options struct {
	// Cache is optional; a nil cache disables result caching.
	Cache *cache.Cache
	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
	// NewID generates document IDs. Defaults to util.NewID.
	NewID func() string
	// MaxConflictRetries defaults to DefaultMaxConflictRetries.
	MaxConflictRetries int
}

// Engine is the tenant scoped query and write engine. It is safe for concurrent
// use once all hooks and observers have been registered.
type Engine struct {
	store     store.Store
	cache     *cache.Cache
	now       func() time.Time
	newID     func() string
	retries   int
	hooks     []WriteHook
	observers []Observer
}

// New creates an engine over the given store.
func New(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:   st,
		cache:   opts.Cache,
		now:     opts.Now,
		newID:   opts.NewID,
		retries: opts.MaxConflictRetries,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = util.NewID
	}
	if e.retries <= 0 {
		e.retries = DefaultMaxConflictRetries
	}
	return e
}

// Use registers a hook whose writes join every source mutation's commit.
func (e *Engine) Use(hook WriteHook) {
	e.hooks = append(e.hooks, hook)
}

// Observe registers an observer notified after every committed source mutation.
func (e *Engine) Observe(o Observer) {
	e.observers = append(e.observers, o)
}

// Now returns the engine clock truncated to the stored time precision.
func (e *Engine) Now() time.Time {
	return e.now().UTC().Truncate(store.TimePrecision)
}

// ReadDocument reads a document by full path. It is used for derived documents
// that are not addressed by an entity kind, such as employee summaries.
func (e *Engine) ReadDocument(ctx context.Context, path, id string) (*store.Document, error) {
	return e.store.Get(ctx, path, id)
}

// CommitWrites commits writes to derived documents atomically and invalidates
// the cache scopes they touch. Hooks and observers are not invoked.
func (e *Engine) CommitWrites(ctx context.Context, writes []store.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if err := e.store.Commit(ctx, writes); err != nil {
		return err
	}
	e.afterCommit(ctx, writes)
	return nil
}

// commit applies the source write together with every hook's writes.
func (e *Engine) commit(ctx context.Context, change Change, source store.Write) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.commit",
		attribute.String("org_id", change.OrganizationID),
		attribute.String("kind", string(change.Kind)),
		attribute.String("write", source.Kind.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	writes := []store.Write{source}
	for _, hook := range e.hooks {
		extra, err := hook.Writes(ctx, change)
		if err != nil {
			return fmt.Errorf("write hook for %s/%s: %w", change.Kind, change.ID, err)
		}
		writes = append(writes, extra...)
	}

	if err := e.store.Commit(ctx, writes); err != nil {
		if errors.Is(err, store.ErrConflict) {
			telemetry.GetMetrics().WriteConflictsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", string(change.Kind))))
		}
		return err
	}

	e.afterCommit(ctx, writes)

	for _, o := range e.observers {
		o.Changed(ctx, change)
	}
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, writes []store.Write) {
	telemetry.GetMetrics().WritesCommittedTotal.Add(ctx, int64(len(writes)))

	if e.cache == nil {
		return
	}
	invalidated := map[string]struct{}{}
	for _, w := range writes {
		loc, err := tenant.Parse(w.Path)
		if err != nil {
			// not tenant data, e.g. the audit collection
			continue
		}
		pattern := cache.ScopePattern(loc.OrganizationID, string(loc.Kind))
		if _, ok := invalidated[pattern]; ok {
			continue
		}
		invalidated[pattern] = struct{}{}
		n := e.cache.Invalidate(pattern)
		log.Debug().Str("org_id", loc.OrganizationID).Str("kind", string(loc.Kind)).Int("entries", n).Msg("cache invalidated")
	}
}
