package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/cache"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
	"github.com/wolfeidau/disciplinary/internal/summary"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2020, 1, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts Options) (*Machine, *engine.Engine, *memory.DocumentStore, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	st := memory.NewDocumentStore(memory.WithClock(clk.Now))
	e := engine.New(st, engine.Options{Cache: cache.New(time.Minute), Now: clk.Now})
	return New(e, opts), e, st, clk
}

func createEmployee(t *testing.T, e *engine.Engine, id, number string) {
	t.Helper()
	_, err := e.Create(context.Background(), "acme", tenant.KindEmployees, store.Fields{
		"employeeNumber": number,
		"firstName":      "Ada",
		"lastName":       "Lovelace",
	}, id)
	require.NoError(t, err)
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	m, e, st, clk := setup(t, Options{})
	createEmployee(t, e, "e1", "1042")

	require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "user-abcd"))

	status, err := m.GetEmployeeLifecycleState(ctx, "acme", "e1")
	require.NoError(t, err)
	require.Equal(t, StateArchived, status.State)
	require.Equal(t, t0, status.ArchivedAt)
	require.Equal(t, "resignation", status.ArchiveReason)

	actor := "admin-7f3k"
	code := ConfirmationCode("1042", actor)
	require.Equal(t, "DELETE-1042-7F3K", code)

	t.Run("not deletable strictly before the retention period", func(t *testing.T) {
		clk.Set(t0.Add(DefaultRetention - time.Millisecond))
		_, err := m.PermanentlyDelete(ctx, "acme", "e1", actor, code)
		require.ErrorIs(t, err, store.ErrInvalidState)
	})

	clk.Set(t0.AddDate(0, 0, 1825))
	status, err = m.GetEmployeeLifecycleState(ctx, "acme", "e1")
	require.NoError(t, err)
	require.Equal(t, StateDeletionEligible, status.State)

	t.Run("wrong confirmation code", func(t *testing.T) {
		_, err := m.PermanentlyDelete(ctx, "acme", "e1", actor, "DELETE-1042-XXXX")
		require.ErrorIs(t, err, store.ErrInvalidArgument)
		_, err = e.GetByID(ctx, "acme", tenant.KindEmployees, "e1")
		require.NoError(t, err)
	})

	rec, err := m.PermanentlyDelete(ctx, "acme", "e1", actor, code)
	require.NoError(t, err)
	require.Equal(t, 1825, rec.ArchivedDays)

	_, err = e.GetByID(ctx, "acme", tenant.KindEmployees, "e1")
	require.ErrorIs(t, err, store.ErrNotFound)

	stored, err := m.ReadAuditRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "e1", stored.EntityID)
	require.Equal(t, "1042", stored.EmployeeNumber)
	require.Equal(t, "Ada Lovelace", stored.EmployeeName)
	require.Equal(t, actor, stored.DeletedBy)
	require.Equal(t, code, stored.ConfirmationCode)
	require.Equal(t, 1, st.Len(tenant.AuditCollection))

	snapshot, err := ReadSnapshot(stored.Snapshot, stored.SnapshotChecksum)
	require.NoError(t, err)
	require.Equal(t, "1042", snapshot["employeeNumber"])
	require.Equal(t, "resignation", snapshot["archiveReason"])
}

func TestArchiveAndRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("archive twice is invalid state", func(t *testing.T) {
		m, e, _, _ := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
		require.ErrorIs(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"), store.ErrInvalidState)
	})

	t.Run("archive sets archival fields", func(t *testing.T) {
		m, e, _, _ := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.NoError(t, m.Archive(ctx, "acme", "e1", "dismissal", "u1"))

		doc, err := e.GetByID(ctx, "acme", tenant.KindEmployees, "e1")
		require.NoError(t, err)
		require.Equal(t, false, doc.Get("isActive"))
		require.Equal(t, t0, doc.Get("archivedAt"))
		require.Equal(t, "u1", doc.Get("archivedBy"))
	})

	t.Run("restore active is invalid state", func(t *testing.T) {
		m, e, _, _ := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.ErrorIs(t, m.Restore(ctx, "acme", "e1", "u1"), store.ErrInvalidState)
	})

	t.Run("restore clears archival fields", func(t *testing.T) {
		m, e, _, _ := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
		require.NoError(t, m.Restore(ctx, "acme", "e1", "u2"))

		doc, err := e.GetByID(ctx, "acme", tenant.KindEmployees, "e1")
		require.NoError(t, err)
		require.Equal(t, true, doc.Get("isActive"))
		for _, f := range []string{"archivedAt", "archiveReason", "archivedBy"} {
			_, ok := doc.Fields[f]
			require.False(t, ok, f)
		}
		require.Equal(t, "u2", doc.Get("restoredBy"))

		status, err := m.GetEmployeeLifecycleState(ctx, "acme", "e1")
		require.NoError(t, err)
		require.Equal(t, StateActive, status.State)
	})

	t.Run("restore from deletion eligible is rejected by default", func(t *testing.T) {
		m, e, _, clk := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
		clk.Set(t0.Add(DefaultRetention))
		require.ErrorIs(t, m.Restore(ctx, "acme", "e1", "u1"), store.ErrInvalidState)
	})

	t.Run("restore from deletion eligible when allowed", func(t *testing.T) {
		m, e, _, clk := setup(t, Options{AllowRestoreWhenEligible: true})
		createEmployee(t, e, "e1", "1")
		require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
		clk.Set(t0.Add(DefaultRetention))
		require.NoError(t, m.Restore(ctx, "acme", "e1", "u1"))
	})

	t.Run("missing employee", func(t *testing.T) {
		m, _, _, _ := setup(t, Options{})
		require.ErrorIs(t, m.Archive(ctx, "acme", "nope", "r", "u1"), store.ErrNotFound)
	})

	t.Run("missing reason", func(t *testing.T) {
		m, e, _, _ := setup(t, Options{})
		createEmployee(t, e, "e1", "1")
		require.ErrorIs(t, m.Archive(ctx, "acme", "e1", "", "u1"), store.ErrInvalidArgument)
	})
}

func TestPermanentlyDeleteRemovesSummary(t *testing.T) {
	ctx := context.Background()
	m, e, st, clk := setup(t, Options{})
	agg := summary.NewAggregator(e, summary.Options{})
	t.Cleanup(agg.Close)

	createEmployee(t, e, "e1", "7")
	_, err := agg.GetSummary(ctx, "acme", "e1")
	require.NoError(t, err)

	require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
	clk.Set(t0.Add(DefaultRetention))

	_, err = m.PermanentlyDelete(ctx, "acme", "e1", "u1", ConfirmationCode("7", "u1"))
	require.NoError(t, err)
	require.Equal(t, 0, st.Len("organizations/acme/employees/e1/summary"))
}

// afterAuditStore runs a callback once, right after the first commit that
// writes a lifecycle audit record.
type afterAuditStore struct {
	*memory.DocumentStore
	once  sync.Once
	after func()
}

func (s *afterAuditStore) Commit(ctx context.Context, writes []store.Write) error {
	if err := s.DocumentStore.Commit(ctx, writes); err != nil {
		return err
	}
	for _, w := range writes {
		if w.Path == tenant.AuditCollection {
			s.once.Do(s.after)
			break
		}
	}
	return nil
}

func TestPermanentlyDeleteLosesToConcurrentRestore(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	st := &afterAuditStore{DocumentStore: memory.NewDocumentStore(memory.WithClock(clk.Now))}
	e := engine.New(st, engine.Options{Cache: cache.New(time.Minute), Now: clk.Now})
	m := New(e, Options{AllowRestoreWhenEligible: true})

	createEmployee(t, e, "e1", "1042")
	require.NoError(t, m.Archive(ctx, "acme", "e1", "resignation", "u1"))
	clk.Set(t0.Add(DefaultRetention))

	var restoreErr error
	st.after = func() {
		restoreErr = m.Restore(ctx, "acme", "e1", "hr-2")
	}

	_, err := m.PermanentlyDelete(ctx, "acme", "e1", "u1", ConfirmationCode("1042", "u1"))
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, restoreErr)

	status, err := m.GetEmployeeLifecycleState(ctx, "acme", "e1")
	require.NoError(t, err)
	require.Equal(t, StateActive, status.State)
	require.Equal(t, 1, st.Len(tenant.AuditCollection))
}

func TestBulkArchive(t *testing.T) {
	ctx := context.Background()
	m, e, _, _ := setup(t, Options{})
	createEmployee(t, e, "e1", "1")
	createEmployee(t, e, "e2", "2")
	createEmployee(t, e, "e3", "3")
	require.NoError(t, m.Archive(ctx, "acme", "e2", "resignation", "u1"))

	res, err := m.BulkArchive(ctx, "acme", []string{"e1", "e2", "missing", "e3"}, "restructure", "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e3"}, res.Successful)
	require.Len(t, res.Failed, 2)
	require.Equal(t, "e2", res.Failed[0].ID)
	require.Equal(t, "missing", res.Failed[1].ID)

	t.Run("cancellation stops between items", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := m.BulkArchive(cctx, "acme", []string{"e1"}, "r", "u1")
		require.ErrorIs(t, err, context.Canceled)
		require.Empty(t, res.Successful)
		require.Empty(t, res.Failed)
	})
}

func TestListDeletionEligible(t *testing.T) {
	ctx := context.Background()
	m, e, _, clk := setup(t, Options{})
	createEmployee(t, e, "old", "1")
	createEmployee(t, e, "active", "2")
	require.NoError(t, m.Archive(ctx, "acme", "old", "resignation", "u1"))

	clk.Set(t0.AddDate(1, 0, 0))
	createEmployee(t, e, "recent", "3")
	require.NoError(t, m.Archive(ctx, "acme", "recent", "resignation", "u1"))

	clk.Set(t0.Add(DefaultRetention))
	eligible, err := m.ListDeletionEligible(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, "old", eligible[0].EmployeeID)
	require.Equal(t, t0.Add(DefaultRetention), eligible[0].EligibleAt)
}

func TestStateOf(t *testing.T) {
	retention := DefaultRetention
	tests := []struct {
		name   string
		fields store.Fields
		now    time.Time
		want   State
	}{
		{"missing flag", store.Fields{}, t0, StateActive},
		{"null flag", store.Fields{"isActive": nil}, t0, StateActive},
		{"explicitly active", store.Fields{"isActive": true}, t0, StateActive},
		{"archived without timestamp", store.Fields{"isActive": false}, t0.AddDate(10, 0, 0), StateArchived},
		{"archived within retention", store.Fields{"isActive": false, "archivedAt": t0}, t0.Add(retention - time.Millisecond), StateArchived},
		{"archived at the retention instant", store.Fields{"isActive": false, "archivedAt": t0}, t0.Add(retention), StateDeletionEligible},
		{"archive timestamp wins over a stale flag", store.Fields{"isActive": true, "archivedAt": t0}, t0, StateArchived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StateOf(tt.fields, tt.now, retention))
		})
	}
}

func TestConfirmationCode(t *testing.T) {
	require.Equal(t, "DELETE-E-17-WXYZ", ConfirmationCode("E-17", "user-wxyz"))
	require.Equal(t, "DELETE-9-AB", ConfirmationCode("9", "ab"))
}

func TestSnapshotIntegrity(t *testing.T) {
	snapshot, checksum, err := encodeSnapshot(store.Fields{"employeeNumber": "1", "days": 2.5})
	require.NoError(t, err)
	require.Len(t, checksum, 16)

	out, err := ReadSnapshot(snapshot, checksum)
	require.NoError(t, err)
	require.Equal(t, 2.5, out["days"])

	_, err = ReadSnapshot(snapshot, "0000000000000000")
	require.Error(t, err)

	_, err = ReadSnapshot("not base64!", checksum)
	require.Error(t, err)
}
