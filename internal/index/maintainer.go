// Package index keeps denormalized index collections in lockstep with their
// source entities. Index writes join the source mutation's atomic commit, so a
// failed commit leaves neither the source nor the index changed.
package index

import (
	"context"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const rebuildBatchSize = 400

// Maintainer is an engine.WriteHook maintaining a set of index definitions.
type Maintainer struct {
	engine *engine.Engine
	defs   []Definition
}

// NewMaintainer registers a maintainer for defs with the engine. When no
// definitions are given, Definitions is used.
func NewMaintainer(e *engine.Engine, defs ...Definition) *Maintainer {
	if len(defs) == 0 {
		defs = Definitions
	}
	m := &Maintainer{engine: e, defs: defs}
	e.Use(m)
	return m
}

// Writes returns the index writes for a source change:
// becoming active sets the entry, leaving the active set deletes it, and
// staying active with different mirrored fields rewrites it.
func (m *Maintainer) Writes(ctx context.Context, change engine.Change) ([]store.Write, error) {
	var writes []store.Write
	for _, def := range m.defs {
		if def.Source != change.Kind {
			continue
		}
		w, ok, err := entryWrite(def, change)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		writes = append(writes, w)
		telemetry.GetMetrics().IndexEntriesWrittenTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("index", string(def.Kind)), attribute.String("write", w.Kind.String())))
	}
	return writes, nil
}

func entryWrite(def Definition, change engine.Change) (store.Write, bool, error) {
	path, err := tenant.Resolve(change.OrganizationID, def.Kind)
	if err != nil {
		return store.Write{}, false, err
	}

	wasActive := change.Before != nil && def.Active(change.Before)
	isActive := change.After != nil && def.Active(change.After)

	switch {
	case isActive && !wasActive:
		entry, err := store.Normalize(def.Project(change.After))
		if err != nil {
			return store.Write{}, false, err
		}
		return store.Set(path, change.ID, entry), true, nil

	case wasActive && !isActive:
		return store.Delete(path, change.ID), true, nil

	case wasActive && isActive:
		before, err := store.Normalize(def.Project(change.Before))
		if err != nil {
			return store.Write{}, false, err
		}
		after, err := store.Normalize(def.Project(change.After))
		if err != nil {
			return store.Write{}, false, err
		}
		if reflect.DeepEqual(before, after) {
			return store.Write{}, false, nil
		}
		return store.Set(path, change.ID, after), true, nil
	}
	return store.Write{}, false, nil
}

// GetActiveIndex returns up to limit active warning entries, highest priority first.
func (m *Maintainer) GetActiveIndex(ctx context.Context, orgID string, limit int) ([]models.IndexEntry, error) {
	return m.entries(ctx, orgID, tenant.KindActiveWarnings, limit)
}

// GetUpcomingMeetings returns up to limit upcoming meeting entries, highest priority first.
func (m *Maintainer) GetUpcomingMeetings(ctx context.Context, orgID string, limit int) ([]models.IndexEntry, error) {
	return m.entries(ctx, orgID, tenant.KindUpcomingMeetings, limit)
}

func (m *Maintainer) entries(ctx context.Context, orgID string, kind tenant.Kind, limit int) ([]models.IndexEntry, error) {
	if limit <= 0 {
		limit = engine.DefaultPageSize
	}
	res, err := m.engine.Query(ctx, orgID, kind, nil, engine.Page{
		Size:      limit,
		OrderBy:   "priorityRank",
		Direction: store.Descending,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.IndexEntry, 0, len(res.Items))
	for _, doc := range res.Items {
		out = append(out, models.IndexEntryFromDocument(doc))
	}
	return out, nil
}

// ExpireWarnings moves active warnings whose expiry date has passed to the
// expired status. Each warning is updated through the engine so its index entry
// is removed in the same commit. It returns how many warnings expired.
func (m *Maintainer) ExpireWarnings(ctx context.Context, orgID string) (int, error) {
	now := m.engine.Now()
	due, err := m.engine.All(ctx, orgID, tenant.KindWarnings, []store.Filter{
		store.Where("isActive", store.OpEqual, true),
		store.Where("expiryDate", store.OpLessEqual, now),
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, doc := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		err := m.engine.Mutate(ctx, orgID, tenant.KindWarnings, doc.ID, func(current *store.Document) (store.Fields, error) {
			if !models.WarningIsActive(current.Fields) {
				return nil, nil
			}
			return store.Fields{"status": string(models.StatusExpired), "isActive": false}, nil
		})
		if err != nil {
			return expired, fmt.Errorf("expire warning %s: %w", doc.ID, err)
		}
		expired++
	}

	log.Info().Str("org_id", orgID).Int("expired", expired).Msg("warnings expired")
	return expired, nil
}

// Rebuild recomputes every index of an organization from its source entities,
// adding missing entries, rewriting drifted ones and removing orphans.
// It returns the number of index writes made.
func (m *Maintainer) Rebuild(ctx context.Context, orgID string) (int, error) {
	total := 0
	for _, def := range m.defs {
		n, err := m.rebuild(ctx, orgID, def)
		if err != nil {
			return total, fmt.Errorf("rebuild %s: %w", def.Kind, err)
		}
		total += n
	}
	return total, nil
}

func (m *Maintainer) rebuild(ctx context.Context, orgID string, def Definition) (int, error) {
	path, err := tenant.Resolve(orgID, def.Kind)
	if err != nil {
		return 0, err
	}

	sources, err := m.engine.All(ctx, orgID, def.Source, nil)
	if err != nil {
		return 0, err
	}
	existing, err := m.engine.All(ctx, orgID, def.Kind, nil)
	if err != nil {
		return 0, err
	}

	current := make(map[string]store.Fields, len(existing))
	for _, doc := range existing {
		current[doc.ID] = doc.Fields
	}

	var writes []store.Write
	for _, src := range sources {
		if !def.Active(src.Fields) {
			continue
		}
		want, err := store.Normalize(def.Project(src.Fields))
		if err != nil {
			return 0, err
		}
		have, ok := current[src.ID]
		delete(current, src.ID)
		if ok && reflect.DeepEqual(have, want) {
			continue
		}
		writes = append(writes, store.Set(path, src.ID, want))
	}
	for id := range current {
		writes = append(writes, store.Delete(path, id))
	}

	for start := 0; start < len(writes); start += rebuildBatchSize {
		end := min(start+rebuildBatchSize, len(writes))
		if err := m.engine.CommitWrites(ctx, writes[start:end]); err != nil {
			return start, err
		}
	}

	log.Info().Str("org_id", orgID).Str("index", string(def.Kind)).Int("writes", len(writes)).Msg("index rebuilt")
	return len(writes), nil
}
