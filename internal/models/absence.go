package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// Absence records days an employee was away from work.
type Absence struct {
	ID         string
	EmployeeID string
	Type       string
	StartDate  time.Time
	Days       float64
	Unpaid     bool
}

func (a Absence) Fields() store.Fields {
	return store.Fields{
		"employeeId": a.EmployeeID,
		"type":       a.Type,
		"startDate":  a.StartDate,
		"days":       a.Days,
		"unpaid":     a.Unpaid,
	}
}

func AbsenceFromDocument(doc *store.Document) Absence {
	unpaid, _ := doc.Get("unpaid").(bool)
	return Absence{
		ID:         doc.ID,
		EmployeeID: util.AsString(doc.Get("employeeId")),
		Type:       util.AsString(doc.Get("type")),
		StartDate:  util.AsTime(doc.Get("startDate")),
		Days:       util.AsFloat(doc.Get("days")),
		Unpaid:     unpaid,
	}
}
