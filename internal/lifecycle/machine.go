// Package lifecycle governs the active, archived and deletion eligible states
// of personnel records and the retention period that must pass before a record
// may be permanently deleted.
package lifecycle

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/logger"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"github.com/wolfeidau/disciplinary/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Options struct {
	// Retention defaults to DefaultRetention.
	Retention time.Duration
	// AllowRestoreWhenEligible permits restoring a record that has already
	// passed the retention period.
	AllowRestoreWhenEligible bool
	// NewID generates audit record IDs. Defaults to util.NewID.
	NewID func() string
}

// Machine performs lifecycle transitions through the engine.
type Machine struct {
	engine       *engine.Engine
	retention    time.Duration
	allowRestore bool
	newID        func() string
}

func New(e *engine.Engine, opts Options) *Machine {
	m := &Machine{
		engine:       e,
		retention:    opts.Retention,
		allowRestore: opts.AllowRestoreWhenEligible,
		newID:        opts.NewID,
	}
	if m.retention <= 0 {
		m.retention = DefaultRetention
	}
	if m.newID == nil {
		m.newID = util.NewID
	}
	return m
}

// GetEmployeeLifecycleState returns the employee's current lifecycle status.
func (m *Machine) GetEmployeeLifecycleState(ctx context.Context, orgID, employeeID string) (*Status, error) {
	doc, err := m.engine.GetByID(ctx, orgID, tenant.KindEmployees, employeeID)
	if err != nil {
		return nil, err
	}
	s := statusOf(doc, m.engine.Now(), m.retention)
	return &s, nil
}

// Archive moves an active employee to archived. It fails with ErrInvalidState
// when the employee is already archived.
func (m *Machine) Archive(ctx context.Context, orgID, employeeID, reason, actorID string) (err error) {
	ctx = logger.WithOrganization(ctx, orgID, "archive")
	defer logger.Operation(ctx, "archive", time.Now())(&err)

	if reason == "" || actorID == "" {
		return store.InvalidArgumentf("archive reason and actor are required")
	}

	err = m.engine.Mutate(ctx, orgID, tenant.KindEmployees, employeeID, func(current *store.Document) (store.Fields, error) {
		now := m.engine.Now()
		if state := StateOf(current.Fields, now, m.retention); state != StateActive {
			return nil, store.InvalidStatef("employee %s is %s", employeeID, state)
		}
		return store.Fields{
			"isActive":      false,
			"archivedAt":    now,
			"archiveReason": reason,
			"archivedBy":    actorID,
		}, nil
	}, engine.WithLifecycleFields())
	if err != nil {
		return err
	}

	m.transitioned(ctx, "archive")
	log.Info().Str("org_id", orgID).Str("employee_id", employeeID).Str("reason", reason).Str("actor", actorID).Msg("employee archived")
	return nil
}

// Restore returns an archived employee to active and clears its archival fields.
// A deletion eligible record is only restorable when the machine allows it.
func (m *Machine) Restore(ctx context.Context, orgID, employeeID, actorID string) (err error) {
	ctx = logger.WithOrganization(ctx, orgID, "restore")
	defer logger.Operation(ctx, "restore", time.Now())(&err)

	if actorID == "" {
		return store.InvalidArgumentf("actor is required")
	}

	err = m.engine.Mutate(ctx, orgID, tenant.KindEmployees, employeeID, func(current *store.Document) (store.Fields, error) {
		now := m.engine.Now()
		switch state := StateOf(current.Fields, now, m.retention); {
		case state == StateActive:
			return nil, store.InvalidStatef("employee %s is not archived", employeeID)
		case state == StateDeletionEligible && !m.allowRestore:
			return nil, store.InvalidStatef("employee %s has passed the retention period", employeeID)
		}
		return store.Fields{
			"isActive":      true,
			"archivedAt":    store.DeleteField,
			"archiveReason": store.DeleteField,
			"archivedBy":    store.DeleteField,
			"restoredAt":    now,
			"restoredBy":    actorID,
		}, nil
	}, engine.WithLifecycleFields())
	if err != nil {
		return err
	}

	m.transitioned(ctx, "restore")
	log.Info().Str("org_id", orgID).Str("employee_id", employeeID).Str("actor", actorID).Msg("employee restored")
	return nil
}

// PermanentlyDelete hard deletes a deletion eligible employee. The confirmation
// code must equal ConfirmationCode for the employee and actor. The audit record
// is committed before the employee is deleted. If the employee changed after
// its eligibility was checked, the delete fails with ErrConflict and the audit
// record remains.
func (m *Machine) PermanentlyDelete(ctx context.Context, orgID, employeeID, actorID, confirmationCode string) (rec *models.AuditRecord, err error) {
	ctx = logger.WithOrganization(ctx, orgID, "permanent_delete")
	defer logger.Operation(ctx, "permanent_delete", time.Now())(&err)

	if actorID == "" {
		return nil, store.InvalidArgumentf("actor is required")
	}

	doc, err := m.engine.GetByID(ctx, orgID, tenant.KindEmployees, employeeID)
	if err != nil {
		return nil, err
	}

	now := m.engine.Now()
	if state := StateOf(doc.Fields, now, m.retention); state != StateDeletionEligible {
		return nil, store.InvalidStatef("employee %s is %s, not %s", employeeID, state, StateDeletionEligible)
	}

	emp := models.EmployeeFromDocument(doc)
	want := ConfirmationCode(emp.EmployeeNumber, actorID)
	if subtle.ConstantTimeCompare([]byte(want), []byte(confirmationCode)) != 1 {
		return nil, store.InvalidArgumentf("confirmation code does not match")
	}

	snapshot, checksum, err := encodeSnapshot(doc.Fields)
	if err != nil {
		return nil, err
	}

	rec = &models.AuditRecord{
		ID:               m.newID(),
		OrganizationID:   orgID,
		EntityKind:       string(tenant.KindEmployees),
		EntityID:         employeeID,
		EmployeeNumber:   emp.EmployeeNumber,
		EmployeeName:     emp.FullName(),
		ArchivedAt:       emp.ArchivedAt,
		ArchiveReason:    emp.ArchiveReason,
		ArchivedDays:     int(now.Sub(emp.ArchivedAt) / (24 * time.Hour)),
		DeletedAt:        now,
		DeletedBy:        actorID,
		ConfirmationCode: confirmationCode,
		Snapshot:         snapshot,
		SnapshotChecksum: checksum,
	}

	if err := m.engine.CommitWrites(ctx, []store.Write{
		store.Create(tenant.AuditCollection, rec.ID, rec.Fields()),
	}); err != nil {
		return nil, fmt.Errorf("write audit record: %w", err)
	}

	// The delete is guarded by the version whose eligibility was checked, so a
	// restore or edit committed in between leaves the record in place.
	if err := m.engine.DeleteAtVersion(ctx, orgID, tenant.KindEmployees, employeeID, doc.Version); err != nil {
		return nil, fmt.Errorf("audit record %s written but delete failed: %w", rec.ID, err)
	}

	m.transitioned(ctx, "permanent_delete")
	log.Info().Str("org_id", orgID).Str("employee_id", employeeID).Str("audit_id", rec.ID).Str("actor", actorID).Msg("employee permanently deleted")
	return rec, nil
}

// Failure is a per item error of a bulk transition.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult reports the outcome of every item of a bulk transition.
type BulkResult struct {
	Successful []string  `json:"successful"`
	Failed     []Failure `json:"failed"`
}

// BulkArchive archives each employee independently. One failure never aborts
// the batch. Cancellation stops before the next item and is returned alongside
// the items processed so far.
func (m *Machine) BulkArchive(ctx context.Context, orgID string, employeeIDs []string, reason, actorID string) (*BulkResult, error) {
	res := &BulkResult{Successful: []string{}, Failed: []Failure{}}
	for _, id := range employeeIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := m.Archive(ctx, orgID, id, reason, actorID); err != nil {
			res.Failed = append(res.Failed, Failure{ID: id, Error: err.Error()})
			continue
		}
		res.Successful = append(res.Successful, id)
	}
	return res, nil
}

// ListDeletionEligible returns the organization's employees that may be
// permanently deleted now.
func (m *Machine) ListDeletionEligible(ctx context.Context, orgID string) ([]Status, error) {
	now := m.engine.Now()
	docs, err := m.engine.All(ctx, orgID, tenant.KindEmployees, []store.Filter{
		store.Where("isActive", store.OpEqual, false),
		store.Where("archivedAt", store.OpLessEqual, now.Add(-m.retention)),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(docs))
	for _, doc := range docs {
		if s := statusOf(doc, now, m.retention); s.State == StateDeletionEligible {
			out = append(out, s)
		}
	}
	return out, nil
}

// ReadAuditRecord returns a lifecycle audit record by ID.
func (m *Machine) ReadAuditRecord(ctx context.Context, id string) (*models.AuditRecord, error) {
	doc, err := m.engine.ReadDocument(ctx, tenant.AuditCollection, id)
	if err != nil {
		return nil, err
	}
	rec := models.AuditRecordFromDocument(doc)
	return &rec, nil
}

func (m *Machine) transitioned(ctx context.Context, transition string) {
	telemetry.GetMetrics().LifecycleTransitionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transition", transition)))
}
