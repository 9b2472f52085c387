package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/cache"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Page describes the slice of a result set to return.
type Page struct {
	// Size defaults to DefaultPageSize and is capped at MaxPageSize.
	Size      int             `json:"size"`
	OrderBy   string          `json:"orderBy"`
	Direction store.Direction `json:"direction"`
	// Cursor is the opaque continuation returned by the previous page.
	Cursor string `json:"cursor"`
}

// Result is one page of documents.
type Result struct {
	Items   []*store.Document
	HasMore bool
	// Cursor continues after the last item. Empty when HasMore is false.
	Cursor string
}

// Query returns one page of an organization's documents matching every filter.
//
// Filters on isActive are evaluated in process through models.ActiveStateOf
// rather than pushed to the store, because stored flags may be absent, null or
// false and only false means archived. Metadata and tombstone pseudo documents
// are always skipped.
func (e *Engine) Query(ctx context.Context, orgID string, kind tenant.Kind, filters []store.Filter, page Page) (*Result, error) {
	path, err := tenant.Resolve(orgID, kind)
	if err != nil {
		return nil, err
	}

	key := cache.Key("query", orgID, string(kind), struct {
		Filters []store.Filter `json:"filters"`
		Page    Page           `json:"page"`
	}{filters, page})
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return cloneResult(v.(*Result)), nil
		}
	}

	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "engine.query",
		attribute.String("org_id", orgID),
		attribute.String("kind", string(kind)))
	res, err := e.paginate(filters, page, func(q store.Query) ([]*store.Document, error) {
		return e.store.Query(ctx, path, q)
	}, nil)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	telemetry.GetMetrics().QueryDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("kind", string(kind))))

	log.Debug().Str("org_id", orgID).Str("kind", string(kind)).Int("items", len(res.Items)).Bool("has_more", res.HasMore).Msg("query")

	if e.cache != nil {
		e.cache.Put(key, cloneResult(res))
	}
	return res, nil
}

// All returns every document of a kind matching filters by walking all pages.
func (e *Engine) All(ctx context.Context, orgID string, kind tenant.Kind, filters []store.Filter) ([]*store.Document, error) {
	var (
		out  []*store.Document
		page = Page{Size: MaxPageSize}
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.Query(ctx, orgID, kind, filters, page)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if !res.HasMore {
			return out, nil
		}
		page.Cursor = res.Cursor
	}
}

// paginate fetches batches until a full page of matching documents plus one
// look ahead item has been collected or the source is exhausted.
func (e *Engine) paginate(filters []store.Filter, page Page, fetch func(store.Query) ([]*store.Document, error), keep func(*store.Document) bool) (*Result, error) {
	size := page.Size
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	pushed, active, err := splitActiveFilters(filters)
	if err != nil {
		return nil, err
	}

	q := store.Query{
		Filters:   pushed,
		OrderBy:   page.OrderBy,
		Direction: page.Direction,
		Limit:     size + 1,
	}
	if page.Cursor != "" {
		q.After, err = decodeCursor(page.Cursor, page.OrderBy)
		if err != nil {
			return nil, err
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	matched := make([]*store.Document, 0, size+1)
	for len(matched) <= size {
		batch, err := fetch(q)
		if err != nil {
			return nil, err
		}
		for _, doc := range batch {
			if models.IsPseudoDocument(doc) || !active(doc) {
				continue
			}
			if keep != nil && !keep(doc) {
				continue
			}
			matched = append(matched, doc)
			if len(matched) > size {
				break
			}
		}
		if len(batch) < q.Limit {
			break
		}
		q.After = store.CursorFor(batch[len(batch)-1], page.OrderBy)
	}

	res := &Result{Items: matched}
	if len(matched) > size {
		res.Items = matched[:size]
		res.HasMore = true
		res.Cursor, err = encodeCursor(store.CursorFor(res.Items[size-1], page.OrderBy), page.OrderBy)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// splitActiveFilters separates isActive predicates, which are evaluated in
// process, from filters the store can evaluate.
func splitActiveFilters(filters []store.Filter) ([]store.Filter, func(*store.Document) bool, error) {
	pushed := make([]store.Filter, 0, len(filters))
	var preds []func(*store.Document) bool

	for _, f := range filters {
		if f.Field != "isActive" {
			pushed = append(pushed, f)
			continue
		}
		want, ok := f.Value.(bool)
		if !ok || (f.Op != store.OpEqual && f.Op != store.OpNotEqual) {
			return nil, nil, store.InvalidArgumentf("isActive supports only == and != with a boolean")
		}
		if f.Op == store.OpNotEqual {
			want = !want
		}
		preds = append(preds, func(d *store.Document) bool {
			return models.ActiveStateOf(d.Get("isActive")).IsActive() == want
		})
	}

	return pushed, func(d *store.Document) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}, nil
}

type cursorToken struct {
	OrderBy string `json:"o,omitempty"`
	Value   any    `json:"v,omitempty"`
	// Time marks Value as an RFC3339 timestamp.
	Time bool   `json:"t,omitempty"`
	ID   string `json:"id"`
}

func encodeCursor(c *store.Cursor, orderBy string) (string, error) {
	tok := cursorToken{OrderBy: orderBy, Value: c.Value, ID: c.ID}
	if t, ok := c.Value.(time.Time); ok {
		tok.Value = t.UTC().Format(time.RFC3339Nano)
		tok.Time = true
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return "", store.InvalidArgumentf("cursor value is not encodable: %v", err)
	}
	return base58.Encode(raw), nil
}

func decodeCursor(s, orderBy string) (*store.Cursor, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, store.InvalidArgumentf("malformed cursor")
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, store.InvalidArgumentf("malformed cursor")
	}
	if tok.OrderBy != orderBy || tok.ID == "" {
		return nil, store.InvalidArgumentf("cursor does not belong to this query")
	}

	c := &store.Cursor{Value: tok.Value, ID: tok.ID}
	if tok.Time {
		s, _ := tok.Value.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, store.InvalidArgumentf("malformed cursor time")
		}
		c.Value = t
	}
	return c, nil
}

func cloneResult(r *Result) *Result {
	out := &Result{HasMore: r.HasMore, Cursor: r.Cursor, Items: make([]*store.Document, len(r.Items))}
	for i, d := range r.Items {
		out.Items[i] = d.Clone()
	}
	return out
}

// TenantScope is the mandatory isolation parameter of a cross tenant scan.
// The zero value is rejected.
type TenantScope struct {
	orgID  string
	reason string
	all    bool
}

// SingleOrganization scopes a scan to one organization. The engine enforces it.
func SingleOrganization(orgID string) TenantScope {
	return TenantScope{orgID: orgID}
}

// AllOrganizations deliberately scans every organization. A reason is required
// and logged.
func AllOrganizations(reason string) TenantScope {
	return TenantScope{reason: reason, all: true}
}

func (s TenantScope) String() string {
	if s.all {
		return "all organizations (" + s.reason + ")"
	}
	return "organization " + s.orgID
}

func (s TenantScope) validate() error {
	switch {
	case s.all && s.reason == "":
		return store.InvalidArgumentf("cross tenant scans must state a reason")
	case s.all:
		return nil
	case s.orgID == "":
		return store.InvalidArgumentf("a tenant scope is required")
	default:
		return tenant.ValidateOrganizationID(s.orgID)
	}
}

// QueryAcrossTenant scans every collection of a kind regardless of parent
// organization, for system level reporting. Results are ordered and paginated
// like Query. A single organization scope adds an organization filter and also
// drops any document whose path belongs to another organization.
func (e *Engine) QueryAcrossTenant(ctx context.Context, scope TenantScope, kind tenant.Kind, filters []store.Filter, page Page) (*Result, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, store.InvalidArgumentf("unknown entity kind %q", kind)
	}

	var keep func(*store.Document) bool
	if !scope.all {
		filters = append(append([]store.Filter{}, filters...), store.Where("organizationId", store.OpEqual, scope.orgID))
		keep = func(d *store.Document) bool {
			loc, err := tenant.Parse(d.Path)
			return err == nil && loc.OrganizationID == scope.orgID
		}
	} else {
		log.Warn().Str("kind", string(kind)).Str("reason", scope.reason).Msg("cross tenant scan of all organizations")
	}

	return e.paginate(filters, page, func(q store.Query) ([]*store.Document, error) {
		return e.store.QueryGroup(ctx, kind.CollectionID(), q)
	}, keep)
}
