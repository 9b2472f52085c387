package bulk

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/lifecycle"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

// flakyStore fails commits whose first write targets a scripted document ID.
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failures map[string][]error
	commits  map[string]int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Store:    memory.NewDocumentStore(),
		failures: map[string][]error{},
		commits:  map[string]int{},
	}
}

func (f *flakyStore) Commit(ctx context.Context, writes []store.Write) error {
	f.mu.Lock()
	id := writes[0].ID
	f.commits[id]++
	if errs := f.failures[id]; len(errs) > 0 {
		f.failures[id] = errs[1:]
		f.mu.Unlock()
		return errs[0]
	}
	f.mu.Unlock()
	return f.Store.Commit(ctx, writes)
}

func fastOptions() Options {
	return Options{
		Delay:       time.Millisecond,
		MaxAttempts: 3,
		RetryBackoff: BackoffConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func setup(t *testing.T, opts Options) (*Coordinator, *engine.Engine, *flakyStore) {
	t.Helper()
	st := newFlakyStore()
	e := engine.New(st, engine.Options{})
	return NewCoordinator(e, lifecycle.New(e, lifecycle.Options{}), opts), e, st
}

func employeeItem(id string) Item {
	return Item{
		Kind:        tenant.KindEmployees,
		ID:          id,
		Data:        store.Fields{"employeeNumber": id, "firstName": "Ada", "lastName": "Lovelace"},
		Description: "employee " + id,
	}
}

func TestBulkCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("all items succeed and progress is reported", func(t *testing.T) {
		c, _, _ := setup(t, fastOptions())
		var reports []Progress
		res, err := c.BulkCreate(ctx, "acme", []Item{employeeItem("a"), employeeItem("b"), employeeItem("c"), employeeItem("d")},
			func(p Progress) { reports = append(reports, p) })
		require.NoError(t, err)
		require.Equal(t, 4, res.Success)
		require.Equal(t, 0, res.Failed)
		require.Equal(t, []string{"a", "b", "c", "d"}, res.IDs)

		require.Len(t, reports, 4)
		require.Equal(t, Progress{Processed: 2, Total: 4, Percent: 50, Current: "employee b"}, reports[1])
		require.Equal(t, 100, reports[3].Percent)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		c, e, st := setup(t, fastOptions())
		st.failures["b"] = []error{
			fmt.Errorf("%w: rate limited", store.ErrTransient),
			fmt.Errorf("%w: token not yet valid", store.ErrPermissionDenied),
		}

		res, err := c.BulkCreate(ctx, "acme", []Item{employeeItem("a"), employeeItem("b")}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.Success)
		require.Equal(t, 3, st.commits["b"])

		_, err = e.GetByID(ctx, "acme", tenant.KindEmployees, "b")
		require.NoError(t, err)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		c, _, st := setup(t, fastOptions())
		st.failures["b"] = []error{store.ErrTransient, store.ErrTransient, store.ErrTransient, store.ErrTransient}

		res, err := c.BulkCreate(ctx, "acme", []Item{employeeItem("a"), employeeItem("b"), employeeItem("c")}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.Success)
		require.Equal(t, 1, res.Failed)
		require.Equal(t, 3, st.commits["b"])
		require.Equal(t, ItemError{Index: 1, Description: "employee b", Attempts: 3, Error: res.Errors[0].Error}, res.Errors[0])
		require.Contains(t, res.Errors[0].Error, "transient")
	})

	t.Run("permanent failures are not retried and do not abort", func(t *testing.T) {
		c, _, st := setup(t, fastOptions())
		bad := employeeItem("b")
		delete(bad.Data, "lastName")

		res, err := c.BulkCreate(ctx, "acme", []Item{employeeItem("a"), bad, employeeItem("a"), employeeItem("c")}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.Success)
		require.Equal(t, 2, res.Failed)
		require.Equal(t, 1, res.Errors[0].Attempts)
		require.Equal(t, 1, res.Errors[1].Attempts)
		require.Equal(t, 0, st.commits["b"], "validation fails before the store")
	})

	t.Run("cancellation stops between items", func(t *testing.T) {
		c, e, _ := setup(t, Options{Delay: time.Hour})
		cctx, cancel := context.WithCancel(ctx)

		done := make(chan struct{})
		var (
			res *Result
			err error
		)
		go func() {
			defer close(done)
			res, err = c.BulkCreate(cctx, "acme", []Item{employeeItem("a"), employeeItem("b")}, func(Progress) { cancel() })
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("bulk create did not stop")
		}

		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, res.Success)
		_, getErr := e.GetByID(ctx, "acme", tenant.KindEmployees, "a")
		require.NoError(t, getErr, "processed items stay committed")
	})
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(store.ErrTransient))
	require.True(t, Retryable(store.ErrConflict))
	require.True(t, Retryable(fmt.Errorf("wrapped: %w", store.ErrPermissionDenied)))
	require.True(t, Retryable(context.DeadlineExceeded))
	require.False(t, Retryable(store.ErrInvalidArgument))
	require.False(t, Retryable(store.ErrAlreadyExists))
	require.False(t, Retryable(fmt.Errorf("boom")))
}

func TestApplyAction(t *testing.T) {
	ctx := context.Background()
	c, e, _ := setup(t, fastOptions())
	for _, id := range []string{"e1", "e2"} {
		_, err := e.Create(ctx, "acme", tenant.KindEmployees, employeeItem(id).Data, id)
		require.NoError(t, err)
	}

	t.Run("update department", func(t *testing.T) {
		res, err := c.ApplyAction(ctx, "acme", []string{"e1", "missing", "e2"}, UpdateDepartmentAction{Department: "Ops"})
		require.NoError(t, err)
		require.Equal(t, []string{"e1", "e2"}, res.Successful)
		require.Len(t, res.Failed, 1)

		doc, err := e.GetByID(ctx, "acme", tenant.KindEmployees, "e2")
		require.NoError(t, err)
		require.Equal(t, "Ops", doc.Get("department"))
	})

	t.Run("update delivery method", func(t *testing.T) {
		res, err := c.ApplyAction(ctx, "acme", []string{"e1"}, UpdateDeliveryMethodAction{Method: models.DeliveryPrint})
		require.NoError(t, err)
		require.Equal(t, []string{"e1"}, res.Successful)
	})

	t.Run("archive", func(t *testing.T) {
		res, err := c.ApplyAction(ctx, "acme", []string{"e1", "e1"}, ArchiveAction{Reason: "restructure", ActorID: "u1"})
		require.NoError(t, err)
		require.Equal(t, []string{"e1"}, res.Successful)
		require.Len(t, res.Failed, 1)
		require.Contains(t, res.Failed[0].Error, "invalid state")
	})

	t.Run("invalid actions are rejected up front", func(t *testing.T) {
		for _, a := range []Action{
			nil,
			ArchiveAction{Reason: "r"},
			UpdateDepartmentAction{},
			UpdateDeliveryMethodAction{Method: "pigeon"},
		} {
			_, err := c.ApplyAction(ctx, "acme", []string{"e2"}, a)
			require.ErrorIs(t, err, store.ErrInvalidArgument)
		}
	})
}
