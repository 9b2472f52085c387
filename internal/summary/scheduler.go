package summary

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
)

// RefreshFunc recomputes one employee's summary.
type RefreshFunc func(ctx context.Context, orgID, employeeID string) error

type refreshKey struct {
	orgID      string
	employeeID string
}

// Scheduler runs deferred summary refreshes. Requests for an employee that
// already has a refresh pending are merged into it. Tests await completion
// with Wait.
type Scheduler struct {
	delay time.Duration
	run   RefreshFunc

	mu      sync.Mutex
	pending map[refreshKey]struct{}
	closed  bool
	flush   chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler running refreshes delay after they are requested.
func NewScheduler(delay time.Duration, run RefreshFunc) *Scheduler {
	return &Scheduler{
		delay:   delay,
		run:     run,
		pending: make(map[refreshKey]struct{}),
		flush:   make(chan struct{}),
	}
}

// Schedule queues a refresh. It returns false when one is already pending for
// the employee or the scheduler is closed.
func (s *Scheduler) Schedule(orgID, employeeID string) bool {
	key := refreshKey{orgID: orgID, employeeID: employeeID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.pending[key]; ok {
		return false
	}
	s.pending[key] = struct{}{}
	s.wg.Add(1)
	telemetry.GetMetrics().PendingSummaryRefreshes.Add(context.Background(), 1)

	go s.process(key)
	return true
}

func (s *Scheduler) process(key refreshKey) {
	defer s.wg.Done()

	timer := time.NewTimer(s.delay)
	select {
	case <-timer.C:
	case <-s.flush:
		timer.Stop()
	}

	// removed before running so writes made during the refresh schedule another
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	ctx := context.Background()
	telemetry.GetMetrics().PendingSummaryRefreshes.Add(ctx, -1)

	if err := s.run(ctx, key.orgID, key.employeeID); err != nil {
		telemetry.GetMetrics().SummaryRecomputeErrors.Add(ctx, 1)
		log.Warn().Err(err).
			Str("org_id", key.orgID).
			Str("employee_id", key.employeeID).
			Msg("background summary refresh failed")
	}
}

// Pending returns the number of refreshes waiting to run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Wait blocks until every scheduled refresh has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close stops accepting refreshes, runs pending ones without further delay and
// waits for them to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.flush)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
