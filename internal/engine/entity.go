package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/cache"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// Create stores a new document and returns its ID. When id is empty a new one
// is generated. The organization ID and timestamps are stamped on the document.
func (e *Engine) Create(ctx context.Context, orgID string, kind tenant.Kind, data store.Fields, id string) (string, error) {
	path, err := tenant.Resolve(orgID, kind)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = e.newID()
	}
	if strings.Contains(id, "/") {
		return "", store.InvalidArgumentf("document ID %q must not contain '/'", id)
	}

	fields, err := store.Normalize(data)
	if err != nil {
		return "", err
	}
	if err := validateFields(kind, fields); err != nil {
		return "", err
	}

	if kind == tenant.KindEmployees {
		if err := rejectLifecycleFields(fields, archivalFields); err != nil {
			return "", err
		}
		if err := e.ensureUniqueEmployeeNumber(ctx, path, fields["employeeNumber"], ""); err != nil {
			return "", err
		}
	}

	now := e.Now()
	fields["organizationId"] = orgID
	fields["createdAt"] = now
	fields["updatedAt"] = now

	change := Change{OrganizationID: orgID, Kind: kind, ID: id, After: fields}
	if err := e.commit(ctx, change, store.Create(path, id, fields)); err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}

	log.Debug().Str("org_id", orgID).Str("kind", string(kind)).Str("id", id).Msg("document created")
	return id, nil
}

// GetByID returns the document, or an ErrNotFound error when it is absent.
func (e *Engine) GetByID(ctx context.Context, orgID string, kind tenant.Kind, id string) (*store.Document, error) {
	path, err := tenant.Resolve(orgID, kind)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.InvalidArgumentf("document ID is required")
	}

	key := cache.Key("getById", orgID, string(kind), id)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(*store.Document).Clone(), nil
		}
	}

	doc, err := e.store.Get(ctx, path, id)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Put(key, doc.Clone())
	}
	return doc, nil
}

// Update merges partial into an existing document. It fails with ErrNotFound
// when the document does not exist. store.DeleteField removes a field.
func (e *Engine) Update(ctx context.Context, orgID string, kind tenant.Kind, id string, partial store.Fields) error {
	return e.Mutate(ctx, orgID, kind, id, func(*store.Document) (store.Fields, error) {
		return partial, nil
	})
}

// MutateFunc computes a partial update from the current document. Returning a
// nil patch leaves the document unchanged.
type MutateFunc func(current *store.Document) (store.Fields, error)

// MutateOption adjusts a single Mutate call.
type MutateOption func(*mutateOptions)

type mutateOptions struct {
	lifecycle bool
}

// WithLifecycleFields lets a mutation write the employee lifecycle fields.
// Only the lifecycle state machine uses it; every other employee write that
// touches those fields is rejected.
func WithLifecycleFields() MutateOption {
	return func(o *mutateOptions) { o.lifecycle = true }
}

var (
	// archivalFields are written only by archive and restore transitions.
	archivalFields = []string{"archivedAt", "archiveReason", "archivedBy", "restoredAt", "restoredBy"}
	// lifecycleFields additionally include the active flag.
	lifecycleFields = append([]string{"isActive"}, archivalFields...)
)

func rejectLifecycleFields(fields store.Fields, names []string) error {
	for _, name := range names {
		if _, ok := fields[name]; ok {
			return store.InvalidArgumentf("employee field %q is managed by lifecycle transitions", name)
		}
	}
	return checkLifecycleInvariant(fields)
}

// checkLifecycleInvariant rejects employee fields with an archive timestamp
// that are not explicitly inactive.
func checkLifecycleInvariant(fields store.Fields) error {
	if util.AsTime(fields["archivedAt"]).IsZero() {
		return nil
	}
	if active, ok := fields["isActive"].(bool); !ok || active {
		return store.InvalidStatef("an employee with archivedAt set must have isActive=false")
	}
	return nil
}

// Mutate performs a read-modify-write of a document guarded by its version.
// When a concurrent writer wins the race, the read and fn are retried so hooks
// always see the true before and after state.
func (e *Engine) Mutate(ctx context.Context, orgID string, kind tenant.Kind, id string, fn MutateFunc, opts ...MutateOption) error {
	var mo mutateOptions
	for _, opt := range opts {
		opt(&mo)
	}

	path, err := tenant.Resolve(orgID, kind)
	if err != nil {
		return err
	}
	if id == "" {
		return store.InvalidArgumentf("document ID is required")
	}

	for attempt := 1; ; attempt++ {
		err = e.mutateOnce(ctx, orgID, kind, path, id, fn, mo)
		if err == nil || !errors.Is(err, store.ErrConflict) || attempt >= e.retries {
			if err != nil {
				return fmt.Errorf("update %s/%s: %w", kind, id, err)
			}
			return nil
		}
		log.Debug().Str("org_id", orgID).Str("kind", string(kind)).Str("id", id).Int("attempt", attempt).Msg("update conflict, retrying")
	}
}

func (e *Engine) mutateOnce(ctx context.Context, orgID string, kind tenant.Kind, path, id string, fn MutateFunc, mo mutateOptions) error {
	current, err := e.store.Get(ctx, path, id)
	if err != nil {
		return err
	}

	patch, err := fn(current.Clone())
	if err != nil {
		return err
	}
	if patch == nil {
		return nil
	}
	patch, err = store.Normalize(patch)
	if err != nil {
		return err
	}
	delete(patch, "organizationId")
	delete(patch, "createdAt")

	if kind == tenant.KindEmployees {
		if !mo.lifecycle {
			for _, name := range lifecycleFields {
				if _, ok := patch[name]; ok {
					return store.InvalidArgumentf("employee field %q is managed by lifecycle transitions", name)
				}
			}
		}
		if num, ok := patch["employeeNumber"]; ok && store.Compare(num, current.Get("employeeNumber")) != 0 {
			if err := e.ensureUniqueEmployeeNumber(ctx, path, num, id); err != nil {
				return err
			}
		}
	}

	patch["updatedAt"] = e.Now()

	after := store.MergeFields(current.Fields, patch)
	if kind == tenant.KindEmployees {
		if err := checkLifecycleInvariant(after); err != nil {
			return err
		}
	}
	change := Change{OrganizationID: orgID, Kind: kind, ID: id, Before: current.Fields, After: after}
	return e.commit(ctx, change, store.Update(path, id, patch).WithVersion(current.Version))
}

// Delete hard deletes a document. It is irreversible and reserved for the
// lifecycle permanent deletion path.
func (e *Engine) Delete(ctx context.Context, orgID string, kind tenant.Kind, id string) error {
	return e.DeleteAtVersion(ctx, orgID, kind, id, 0)
}

// DeleteAtVersion hard deletes a document only if it is still at version, the
// version a caller checked before deciding to delete. A document changed since
// then fails with ErrConflict and is left in place. A zero version deletes
// whatever is currently stored.
func (e *Engine) DeleteAtVersion(ctx context.Context, orgID string, kind tenant.Kind, id string, version int64) error {
	path, err := tenant.Resolve(orgID, kind)
	if err != nil {
		return err
	}
	if id == "" {
		return store.InvalidArgumentf("document ID is required")
	}

	current, err := e.store.Get(ctx, path, id)
	if err != nil {
		return err
	}
	if version == 0 {
		version = current.Version
	}
	if current.Version != version {
		return fmt.Errorf("delete %s/%s: %w: document is at version %d, expected %d",
			kind, id, store.ErrConflict, current.Version, version)
	}

	change := Change{OrganizationID: orgID, Kind: kind, ID: id, Before: current.Fields}
	if err := e.commit(ctx, change, store.Delete(path, id).WithVersion(version)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}

	log.Info().Str("org_id", orgID).Str("kind", string(kind)).Str("id", id).Msg("document permanently deleted")
	return nil
}

func (e *Engine) ensureUniqueEmployeeNumber(ctx context.Context, path string, number any, selfID string) error {
	num := util.AsString(number)
	if num == "" {
		return nil
	}
	docs, err := e.store.Query(ctx, path, store.Query{
		Filters: []store.Filter{store.Where("employeeNumber", store.OpEqual, num)},
		Limit:   2,
	})
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID != selfID {
			return fmt.Errorf("%w: employee number %q is used by %s", store.ErrAlreadyExists, num, d.ID)
		}
	}
	return nil
}
