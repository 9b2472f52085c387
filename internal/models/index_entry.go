package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// IndexEntry is a read optimized projection of an active source entity, keyed
// by the source entity's ID.
type IndexEntry struct {
	SourceID     string
	EmployeeID   string
	EmployeeName string
	Level        Level
	Category     string
	Status       string
	Priority     Priority
	IssueDate    time.Time
	ExpiryDate   time.Time
	ScheduledAt  time.Time
}

func IndexEntryFromDocument(doc *store.Document) IndexEntry {
	return IndexEntry{
		SourceID:     doc.ID,
		EmployeeID:   util.AsString(doc.Get("employeeId")),
		EmployeeName: util.AsString(doc.Get("employeeName")),
		Level:        Level(util.AsString(doc.Get("level"))),
		Category:     util.AsString(doc.Get("category")),
		Status:       util.AsString(doc.Get("status")),
		Priority:     Priority(util.AsString(doc.Get("priority"))),
		IssueDate:    util.AsTime(doc.Get("issueDate")),
		ExpiryDate:   util.AsTime(doc.Get("expiryDate")),
		ScheduledAt:  util.AsTime(doc.Get("scheduledAt")),
	}
}
