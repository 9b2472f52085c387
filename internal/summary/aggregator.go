// Package summary computes per employee rollup statistics from warnings,
// meetings and absences, and refreshes them lazily. A summary may briefly lag
// its source records after a write; it is never older than the staleness
// threshold when read.
package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"github.com/wolfeidau/disciplinary/internal/util"
)

const (
	DefaultStaleAfter   = time.Hour
	DefaultRefreshDelay = 2 * time.Second
)

type Options struct {
	// StaleAfter is the age after which a stored summary is recomputed on read.
	StaleAfter time.Duration
	// RefreshDelay defers background recomputation after a source write. Zero
	// refreshes immediately.
	RefreshDelay time.Duration
}

// Aggregator serves employee summaries. It observes engine writes to warnings,
// meetings and absences and removes an employee's summary together with the
// employee.
type Aggregator struct {
	engine     *engine.Engine
	staleAfter time.Duration
	scheduler  *Scheduler
}

// NewAggregator creates an aggregator and registers it with the engine.
func NewAggregator(e *engine.Engine, opts Options) *Aggregator {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.RefreshDelay < 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}

	a := &Aggregator{engine: e, staleAfter: opts.StaleAfter}
	a.scheduler = NewScheduler(opts.RefreshDelay, func(ctx context.Context, orgID, employeeID string) error {
		_, err := a.Recompute(ctx, orgID, employeeID)
		return err
	})

	e.Observe(a)
	e.Use(engine.WriteHookFunc(a.deleteWithEmployee))
	return a
}

// Scheduler exposes the background refresh queue.
func (a *Aggregator) Scheduler() *Scheduler {
	return a.scheduler
}

// Close drains pending background refreshes.
func (a *Aggregator) Close() {
	a.scheduler.Close()
}

// GetSummary returns the stored summary when it is fresh and recomputes it otherwise.
func (a *Aggregator) GetSummary(ctx context.Context, orgID, employeeID string) (*models.Summary, error) {
	path, err := tenant.ResolveSummary(orgID, employeeID)
	if err != nil {
		return nil, err
	}

	doc, err := a.read(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		s := models.SummaryFromDocument(employeeID, doc)
		if a.fresh(s) {
			return &s, nil
		}
	}

	return a.recompute(ctx, orgID, employeeID, path, doc)
}

// Recompute rebuilds the summary from source records and persists it.
func (a *Aggregator) Recompute(ctx context.Context, orgID, employeeID string) (*models.Summary, error) {
	path, err := tenant.ResolveSummary(orgID, employeeID)
	if err != nil {
		return nil, err
	}
	doc, err := a.read(ctx, path)
	if err != nil {
		return nil, err
	}
	return a.recompute(ctx, orgID, employeeID, path, doc)
}

// UpdateSummaryStats marks the summary as needing a refresh and schedules one.
// It does not recompute synchronously.
func (a *Aggregator) UpdateSummaryStats(ctx context.Context, orgID, employeeID string) error {
	path, err := tenant.ResolveSummary(orgID, employeeID)
	if err != nil {
		return err
	}
	if err := a.engine.CommitWrites(ctx, []store.Write{
		store.Merge(path, tenant.SummaryDocumentID, store.Fields{"invalidatedAt": a.engine.Now()}),
	}); err != nil {
		return fmt.Errorf("invalidate summary: %w", err)
	}
	a.scheduler.Schedule(orgID, employeeID)
	return nil
}

// Changed implements engine.Observer. Failures are logged and never reach the
// writer.
func (a *Aggregator) Changed(ctx context.Context, change engine.Change) {
	switch change.Kind {
	case tenant.KindWarnings, tenant.KindMeetings, tenant.KindAbsences:
	default:
		return
	}

	employees := map[string]struct{}{}
	for _, f := range []store.Fields{change.Before, change.After} {
		if id := util.AsString(f["employeeId"]); id != "" {
			employees[id] = struct{}{}
		}
	}

	for employeeID := range employees {
		if err := a.UpdateSummaryStats(ctx, change.OrganizationID, employeeID); err != nil {
			log.Warn().Err(err).
				Str("org_id", change.OrganizationID).
				Str("employee_id", employeeID).
				Str("kind", string(change.Kind)).
				Msg("summary invalidation failed")
		}
	}
}

func (a *Aggregator) deleteWithEmployee(_ context.Context, change engine.Change) ([]store.Write, error) {
	if change.Kind != tenant.KindEmployees || !change.Deleted() {
		return nil, nil
	}
	path, err := tenant.ResolveSummary(change.OrganizationID, change.ID)
	if err != nil {
		return nil, err
	}
	return []store.Write{store.Delete(path, tenant.SummaryDocumentID)}, nil
}

func (a *Aggregator) read(ctx context.Context, path string) (*store.Document, error) {
	doc, err := a.engine.ReadDocument(ctx, path, tenant.SummaryDocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// fresh reports whether a stored summary can be served: it has been computed,
// not invalidated since, and is younger than the staleness threshold.
func (a *Aggregator) fresh(s models.Summary) bool {
	if s.LastUpdated.IsZero() {
		return false
	}
	if !s.InvalidatedAt.IsZero() && !s.LastUpdated.After(s.InvalidatedAt) {
		return false
	}
	return a.engine.Now().Sub(s.LastUpdated) <= a.staleAfter
}

func (a *Aggregator) recompute(ctx context.Context, orgID, employeeID, path string, current *store.Document) (*models.Summary, error) {
	byEmployee := []store.Filter{store.Where("employeeId", store.OpEqual, employeeID)}

	warnings, err := a.engine.All(ctx, orgID, tenant.KindWarnings, byEmployee)
	if err != nil {
		return nil, err
	}
	meetings, err := a.engine.All(ctx, orgID, tenant.KindMeetings, byEmployee)
	if err != nil {
		return nil, err
	}
	absences, err := a.engine.All(ctx, orgID, tenant.KindAbsences, byEmployee)
	if err != nil {
		return nil, err
	}

	now := a.engine.Now()
	s := Compute(employeeID, warnings, meetings, absences, now)
	s.LastUpdated = now
	telemetry.GetMetrics().SummaryRecomputesTotal.Add(ctx, 1)

	fields := s.CounterFields()
	fields["lastUpdated"] = now

	var w store.Write
	if current == nil {
		w = store.Create(path, tenant.SummaryDocumentID, fields)
	} else {
		fields["invalidatedAt"] = store.DeleteField
		w = store.Merge(path, tenant.SummaryDocumentID, fields).WithVersion(current.Version)
	}

	err = a.engine.CommitWrites(ctx, []store.Write{w})
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrAlreadyExists):
		// a concurrent invalidation or refresh won; the result is still correct
		// for the data read, and the next refresh persists the newer state
		log.Debug().Str("org_id", orgID).Str("employee_id", employeeID).Msg("summary persist skipped")
	case err != nil:
		return nil, fmt.Errorf("persist summary: %w", err)
	}

	return &s, nil
}

// Compute derives summary counters from an employee's source records. It is
// pure: the same records and month always give identical counters.
func Compute(employeeID string, warnings, meetings, absences []*store.Document, now time.Time) models.Summary {
	s := models.Summary{
		EmployeeID: employeeID,
		Warnings:   models.WarningCounts{ByLevel: make(map[string]int, len(models.Levels))},
	}
	for _, level := range models.Levels {
		s.Warnings.ByLevel[string(level)] = 0
	}

	for _, doc := range warnings {
		s.Warnings.Total++
		level := util.AsString(doc.Get("level"))
		if level != "" {
			s.Warnings.ByLevel[level]++
		}
		if models.WarningIsActive(doc.Fields) {
			s.Warnings.Active++
			if models.Level(level) == models.LevelFinalWritten {
				s.Warnings.FinalWarnings++
			}
		}
	}

	for _, doc := range meetings {
		s.Meetings.Total++
		if models.MeetingIsUpcoming(doc.Fields) {
			s.Meetings.Upcoming++
		}
		if models.MeetingStatus(util.AsString(doc.Get("status"))) == models.MeetingPending {
			s.Meetings.Pending++
		}
	}

	year, month, _ := now.UTC().Date()
	for _, doc := range absences {
		a := models.AbsenceFromDocument(doc)
		s.Absences.TotalDays += a.Days
		if a.Unpaid {
			s.Absences.UnpaidDays += a.Days
		}
		if y, m, _ := a.StartDate.UTC().Date(); !a.StartDate.IsZero() && y == year && m == month {
			s.Absences.ThisMonthDays += a.Days
		}
	}

	return s
}
