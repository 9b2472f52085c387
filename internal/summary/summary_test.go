package summary

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
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

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const summaryPath = "organizations/acme/employees/e1/summary"

func setup(t *testing.T) (*engine.Engine, *Aggregator, *memory.DocumentStore, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	st := memory.NewDocumentStore(memory.WithClock(clk.Now))
	e := engine.New(st, engine.Options{Now: clk.Now})
	a := NewAggregator(e, Options{StaleAfter: time.Hour})
	t.Cleanup(a.Close)
	return e, a, st, clk
}

func seedRecords(t *testing.T, e *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	create := func(kind tenant.Kind, f store.Fields) {
		_, err := e.Create(ctx, "acme", kind, f, "")
		require.NoError(t, err)
	}

	create(tenant.KindWarnings, models.Warning{EmployeeID: "e1", Level: models.LevelFinalWritten}.Fields())
	create(tenant.KindWarnings, models.Warning{EmployeeID: "e1", Level: models.LevelVerbal}.Fields())
	create(tenant.KindWarnings, models.Warning{EmployeeID: "e1", Level: models.LevelVerbal, Status: models.StatusExpired}.Fields())
	create(tenant.KindWarnings, models.Warning{EmployeeID: "e2", Level: models.LevelVerbal}.Fields())

	create(tenant.KindMeetings, models.Meeting{EmployeeID: "e1", Status: models.MeetingScheduled}.Fields())
	create(tenant.KindMeetings, models.Meeting{EmployeeID: "e1", Status: models.MeetingPending}.Fields())

	create(tenant.KindAbsences, models.Absence{EmployeeID: "e1", StartDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Days: 2}.Fields())
	create(tenant.KindAbsences, models.Absence{EmployeeID: "e1", StartDate: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), Days: 1.5, Unpaid: true}.Fields())
}

func TestGetSummaryComputesCounters(t *testing.T) {
	e, a, _, _ := setup(t)
	seedRecords(t, e)
	a.Scheduler().Wait()

	s, err := a.GetSummary(context.Background(), "acme", "e1")
	require.NoError(t, err)

	require.Equal(t, models.WarningCounts{
		Total:         3,
		Active:        2,
		FinalWarnings: 1,
		ByLevel:       map[string]int{"counselling": 0, "verbal": 2, "first_written": 0, "final_written": 1},
	}, s.Warnings)
	require.Equal(t, models.MeetingCounts{Total: 2, Upcoming: 1, Pending: 1}, s.Meetings)
	require.Equal(t, models.AbsenceCounts{TotalDays: 3.5, ThisMonthDays: 2, UnpaidDays: 1.5}, s.Absences)
}

func TestGetSummaryFreshness(t *testing.T) {
	ctx := context.Background()
	e, a, st, clk := setup(t)
	seedRecords(t, e)
	a.Scheduler().Wait()

	first, err := a.GetSummary(ctx, "acme", "e1")
	require.NoError(t, err)
	require.Equal(t, 3, first.Warnings.Total)

	// written behind the engine's back so nothing is invalidated
	require.NoError(t, st.Commit(ctx, []store.Write{
		store.Create("organizations/acme/warnings", "sneaky", models.Warning{EmployeeID: "e1", Level: models.LevelVerbal}.Fields()),
	}))

	t.Run("fresh summary is served from storage", func(t *testing.T) {
		clk.Advance(time.Hour)
		s, err := a.GetSummary(ctx, "acme", "e1")
		require.NoError(t, err)
		require.Equal(t, 3, s.Warnings.Total)
	})

	t.Run("stale summary is recomputed", func(t *testing.T) {
		clk.Advance(time.Millisecond)
		s, err := a.GetSummary(ctx, "acme", "e1")
		require.NoError(t, err)
		require.Equal(t, 4, s.Warnings.Total)
		require.Equal(t, clk.Now(), s.LastUpdated)
	})
}

func TestSourceWriteInvalidatesSummary(t *testing.T) {
	ctx := context.Background()
	e, a, st, _ := setup(t)
	seedRecords(t, e)
	a.Scheduler().Wait()

	_, err := a.GetSummary(ctx, "acme", "e1")
	require.NoError(t, err)

	_, err = e.Create(ctx, "acme", tenant.KindWarnings, models.Warning{EmployeeID: "e1", Level: models.LevelFirstWritten}.Fields(), "")
	require.NoError(t, err)

	t.Run("read after write recomputes", func(t *testing.T) {
		s, err := a.GetSummary(ctx, "acme", "e1")
		require.NoError(t, err)
		require.Equal(t, 4, s.Warnings.Total)
	})

	t.Run("background refresh clears the marker", func(t *testing.T) {
		a.Scheduler().Wait()
		doc, err := st.Get(ctx, summaryPath, tenant.SummaryDocumentID)
		require.NoError(t, err)
		_, marked := doc.Fields["invalidatedAt"]
		require.False(t, marked)
		require.Equal(t, 4, models.SummaryFromDocument("e1", doc).Warnings.Total)
	})
}

func TestRecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, a, st, clk := setup(t)
	seedRecords(t, e)
	a.Scheduler().Wait()

	first, err := a.Recompute(ctx, "acme", "e1")
	require.NoError(t, err)
	doc1, err := st.Get(ctx, summaryPath, tenant.SummaryDocumentID)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second, err := a.Recompute(ctx, "acme", "e1")
	require.NoError(t, err)
	doc2, err := st.Get(ctx, summaryPath, tenant.SummaryDocumentID)
	require.NoError(t, err)

	require.Equal(t, first.CounterFields(), second.CounterFields())
	for _, field := range []string{"warnings", "meetings", "absences"} {
		require.Equal(t, doc1.Get(field), doc2.Get(field), field)
	}
}

func TestEmployeeDeletionRemovesSummary(t *testing.T) {
	ctx := context.Background()
	e, a, st, _ := setup(t)

	_, err := e.Create(ctx, "acme", tenant.KindEmployees, store.Fields{"employeeNumber": "E1", "firstName": "A", "lastName": "B"}, "e1")
	require.NoError(t, err)
	_, err = a.GetSummary(ctx, "acme", "e1")
	require.NoError(t, err)
	require.Equal(t, 1, st.Len(summaryPath))

	require.NoError(t, e.Delete(ctx, "acme", tenant.KindEmployees, "e1"))
	require.Equal(t, 0, st.Len(summaryPath))
}

func TestGetSummaryInvalidArguments(t *testing.T) {
	_, a, _, _ := setup(t)
	_, err := a.GetSummary(context.Background(), "", "e1")
	require.ErrorIs(t, err, store.ErrInvalidArgument)
	_, err = a.GetSummary(context.Background(), "acme", "")
	require.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestScheduler(t *testing.T) {
	t.Run("deduplicates pending refreshes and drains on close", func(t *testing.T) {
		var runs atomic.Int32
		s := NewScheduler(time.Hour, func(context.Context, string, string) error {
			runs.Add(1)
			return nil
		})

		require.True(t, s.Schedule("acme", "e1"))
		require.False(t, s.Schedule("acme", "e1"))
		require.True(t, s.Schedule("acme", "e2"))
		require.True(t, s.Schedule("globex", "e1"))
		require.Equal(t, 3, s.Pending())

		s.Close()
		require.Equal(t, int32(3), runs.Load())
		require.Equal(t, 0, s.Pending())
		require.False(t, s.Schedule("acme", "e1"))
	})

	t.Run("errors do not stop later refreshes", func(t *testing.T) {
		var runs atomic.Int32
		s := NewScheduler(0, func(context.Context, string, string) error {
			runs.Add(1)
			return store.ErrTransient
		})
		require.True(t, s.Schedule("acme", "e1"))
		s.Wait()
		require.True(t, s.Schedule("acme", "e1"))
		s.Wait()
		require.Equal(t, int32(2), runs.Load())
		s.Close()
	})
}

func TestCompute(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	doc := func(f store.Fields) *store.Document {
		nf, err := store.Normalize(f)
		require.NoError(t, err)
		return &store.Document{ID: "x", Fields: nf}
	}

	s := Compute("e1",
		[]*store.Document{
			doc(store.Fields{"level": "final_written", "isActive": false}),
			doc(store.Fields{"level": "custom"}),
		},
		nil,
		[]*store.Document{
			doc(store.Fields{"days": 1, "startDate": time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)}),
		},
		now)

	require.Equal(t, 2, s.Warnings.Total)
	require.Equal(t, 1, s.Warnings.Active)
	require.Equal(t, 0, s.Warnings.FinalWarnings)
	require.Equal(t, 1, s.Warnings.ByLevel["custom"])
	require.Equal(t, 0.0, s.Absences.ThisMonthDays, "same month of another year")
	require.Equal(t, 1.0, s.Absences.TotalDays)
}
