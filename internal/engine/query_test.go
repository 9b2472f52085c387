package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

const acmeEmployees = "organizations/acme/employees"

func seed(t *testing.T, st store.Store, path string, docs map[string]store.Fields) {
	t.Helper()
	writes := make([]store.Write, 0, len(docs))
	for id, f := range docs {
		writes = append(writes, store.Create(path, id, f))
	}
	require.NoError(t, st.Commit(context.Background(), writes))
}

func collect(t *testing.T, e *Engine, orgID string, kind tenant.Kind, filters []store.Filter, page Page) []string {
	t.Helper()
	var ids []string
	for i := 0; ; i++ {
		require.Less(t, i, 100, "pagination did not terminate")
		res, err := e.Query(context.Background(), orgID, kind, filters, page)
		require.NoError(t, err)
		for _, d := range res.Items {
			ids = append(ids, d.ID)
		}
		if !res.HasMore {
			require.Empty(t, res.Cursor)
			return ids
		}
		page.Cursor = res.Cursor
	}
}

func TestQueryPaginationCompleteness(t *testing.T) {
	e, st := newTestEngine(t)

	docs := map[string]store.Fields{}
	for i := 0; i < 23; i++ {
		// only three distinct department values so ties dominate
		docs[fmt.Sprintf("e%02d", i)] = store.Fields{"department": fmt.Sprintf("d%d", i%3), "grade": i}
	}
	docs["_metadata"] = store.Fields{"_metadata": true}
	seed(t, st, acmeEmployees, docs)

	for _, dir := range []store.Direction{store.Ascending, store.Descending} {
		for _, size := range []int{1, 4, 7, 23, 50} {
			t.Run(fmt.Sprintf("%s size %d", dir, size), func(t *testing.T) {
				ids := collect(t, e, "acme", tenant.KindEmployees, nil, Page{Size: size, OrderBy: "department", Direction: dir})
				require.Len(t, ids, 23)

				seen := map[string]bool{}
				for _, id := range ids {
					require.False(t, seen[id], "duplicate %s", id)
					seen[id] = true
				}
				require.False(t, seen["_metadata"])
			})
		}
	}

	t.Run("range filter with ordering", func(t *testing.T) {
		ids := collect(t, e, "acme", tenant.KindEmployees,
			[]store.Filter{store.Where("grade", store.OpGreaterEqual, 20)},
			Page{Size: 2, OrderBy: "grade", Direction: store.Descending})
		require.Equal(t, []string{"e22", "e21", "e20"}, ids)
	})
}

func TestQueryActiveFlagSemantics(t *testing.T) {
	e, st := newTestEngine(t)
	seed(t, st, acmeEmployees, map[string]store.Fields{
		"absent":   {"firstName": "A"},
		"null":     {"firstName": "B", "isActive": nil},
		"true":     {"firstName": "C", "isActive": true},
		"false":    {"firstName": "D", "isActive": false},
		"_deleted": {"firstName": "E", "isActive": true},
		"tomb":     {"firstName": "F", "_deleted": true},
	})

	tests := []struct {
		name    string
		filters []store.Filter
		want    []string
	}{
		{"unfiltered", nil, []string{"absent", "false", "null", "true"}},
		{"active", []store.Filter{store.Where("isActive", store.OpEqual, true)}, []string{"absent", "null", "true"}},
		{"archived", []store.Filter{store.Where("isActive", store.OpEqual, false)}, []string{"false"}},
		{"not archived", []store.Filter{store.Where("isActive", store.OpNotEqual, false)}, []string{"absent", "null", "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, collect(t, e, "acme", tenant.KindEmployees, tt.filters, Page{Size: 2}))
		})
	}

	t.Run("unsupported isActive operator", func(t *testing.T) {
		_, err := e.Query(context.Background(), "acme", tenant.KindEmployees,
			[]store.Filter{store.Where("isActive", store.OpIn, []any{true})}, Page{})
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func TestQueryCursorValidation(t *testing.T) {
	e, st := newTestEngine(t)
	seed(t, st, acmeEmployees, map[string]store.Fields{
		"e1": {"createdAt": epoch},
		"e2": {"createdAt": epoch.AddDate(0, 0, 1)},
		"e3": {"createdAt": epoch.AddDate(0, 0, 2)},
	})
	ctx := context.Background()

	res, err := e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{Size: 1, OrderBy: "createdAt"})
	require.NoError(t, err)
	require.True(t, res.HasMore)

	t.Run("time cursors round trip", func(t *testing.T) {
		next, err := e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{Size: 1, OrderBy: "createdAt", Cursor: res.Cursor})
		require.NoError(t, err)
		require.Equal(t, "e2", next.Items[0].ID)
	})

	t.Run("cursor from another ordering", func(t *testing.T) {
		_, err := e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{Size: 1, OrderBy: "lastName", Cursor: res.Cursor})
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("garbage cursor", func(t *testing.T) {
		_, err := e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{Cursor: "0OIl"})
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func TestQueryCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	res, err := e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{})
	require.NoError(t, err)
	require.Empty(t, res.Items)

	_, err = e.Create(ctx, "acme", tenant.KindEmployees, employee("E1", "Ada"), "")
	require.NoError(t, err)

	res, err = e.Query(ctx, "acme", tenant.KindEmployees, nil, Page{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
}

func TestQueryCacheKeepsValueTypesApart(t *testing.T) {
	ctx := context.Background()
	_ = ctx
	e, st := newTestEngine(t)
	hired :=time.Date(2020, 1, 10, 12, 0, 0, 0, time.UTC)
	seed(t, st, acmeEmployees, map[string]store.Fields{
		"a": {"employeeNumber": "1", "hiredAt": hired},
		"b": {"employeeNumber": "2", "hiredAt": "2020-01-10T12:00:00Z"},
	})

	byTime := collect(t, e, "acme", tenant.KindEmployees,
		[]store.Filter{store.Where("hiredAt", store.OpEqual, hired)}, Page{})
	require.Equal(t, []string{"a"}, byTime)

	byString := collect(t, e, "acme", tenant.KindEmployees,
		[]store.Filter{store.Where("hiredAt", store.OpEqual, "2020-01-10T12:00:00Z")}, Page{})
	require.Equal(t, []string{"b"}, byString)
}

func TestAll(t *testing.T) {
	e, st := newTestEngine(t)
	docs := map[string]store.Fields{}
	for i := 0; i < MaxPageSize+3; i++ {
		docs[fmt.Sprintf("w%04d", i)] = store.Fields{"employeeId": "e1"}
	}
	seed(t, st, "organizations/acme/warnings", docs)

	all, err := e.All(context.Background(), "acme", tenant.KindWarnings, []store.Filter{store.Where("employeeId", store.OpEqual, "e1")})
	require.NoError(t, err)
	require.Len(t, all, MaxPageSize+3)
}

func TestQueryAcrossTenant(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)

	seed(t, st, "organizations/a/warnings", map[string]store.Fields{
		"a1": {"organizationId": "a", "level": "verbal"},
		"a2": {"organizationId": "a", "level": "final_written"},
	})
	seed(t, st, "organizations/b/warnings", map[string]store.Fields{
		"b1": {"organizationId": "b", "level": "final_written"},
		// mislabelled document: the path wins
		"b2": {"organizationId": "a", "level": "final_written"},
	})

	t.Run("zero scope is rejected", func(t *testing.T) {
		_, err := e.QueryAcrossTenant(ctx, TenantScope{}, tenant.KindWarnings, nil, Page{})
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("all organizations requires a reason", func(t *testing.T) {
		_, err := e.QueryAcrossTenant(ctx, AllOrganizations(""), tenant.KindWarnings, nil, Page{})
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("single organization is enforced", func(t *testing.T) {
		res, err := e.QueryAcrossTenant(ctx, SingleOrganization("a"), tenant.KindWarnings, nil, Page{})
		require.NoError(t, err)
		var ids []string
		for _, d := range res.Items {
			ids = append(ids, d.ID)
		}
		require.Equal(t, []string{"a1", "a2"}, ids)
	})

	t.Run("all organizations", func(t *testing.T) {
		res, err := e.QueryAcrossTenant(ctx, AllOrganizations("severity report"), tenant.KindWarnings,
			[]store.Filter{store.Where("level", store.OpEqual, "final_written")}, Page{Size: 2})
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		require.True(t, res.HasMore)
	})
}
