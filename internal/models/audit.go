package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// AuditRecord is the immutable evidence of a permanent deletion. It is stored
// outside the organization's collections so it survives the deleted entity.
type AuditRecord struct {
	ID               string
	OrganizationID   string
	EntityKind       string
	EntityID         string
	EmployeeNumber   string
	EmployeeName     string
	ArchivedAt       time.Time
	ArchiveReason    string
	ArchivedDays     int
	DeletedAt        time.Time
	DeletedBy        string
	ConfirmationCode string

	// Snapshot is the zstd compressed JSON of the deleted document, base64 encoded.
	Snapshot         string
	SnapshotChecksum string
}

func (a AuditRecord) Fields() store.Fields {
	return store.Fields{
		"organizationId":   a.OrganizationID,
		"entityKind":       a.EntityKind,
		"entityId":         a.EntityID,
		"employeeNumber":   a.EmployeeNumber,
		"employeeName":     a.EmployeeName,
		"archivedAt":       a.ArchivedAt,
		"archiveReason":    a.ArchiveReason,
		"archivedDays":     a.ArchivedDays,
		"deletedAt":        a.DeletedAt,
		"deletedBy":        a.DeletedBy,
		"confirmationCode": a.ConfirmationCode,
		"snapshot":         a.Snapshot,
		"snapshotChecksum": a.SnapshotChecksum,
	}
}

func AuditRecordFromDocument(doc *store.Document) AuditRecord {
	return AuditRecord{
		ID:               doc.ID,
		OrganizationID:   util.AsString(doc.Get("organizationId")),
		EntityKind:       util.AsString(doc.Get("entityKind")),
		EntityID:         util.AsString(doc.Get("entityId")),
		EmployeeNumber:   util.AsString(doc.Get("employeeNumber")),
		EmployeeName:     util.AsString(doc.Get("employeeName")),
		ArchivedAt:       util.AsTime(doc.Get("archivedAt")),
		ArchiveReason:    util.AsString(doc.Get("archiveReason")),
		ArchivedDays:     util.AsInt(doc.Get("archivedDays")),
		DeletedAt:        util.AsTime(doc.Get("deletedAt")),
		DeletedBy:        util.AsString(doc.Get("deletedBy")),
		ConfirmationCode: util.AsString(doc.Get("confirmationCode")),
		Snapshot:         util.AsString(doc.Get("snapshot")),
		SnapshotChecksum: util.AsString(doc.Get("snapshotChecksum")),
	}
}
