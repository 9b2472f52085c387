package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

type MeetingStatus string

const (
	MeetingPending   MeetingStatus = "pending"
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

type MeetingType string

const (
	MeetingCheckIn             MeetingType = "check_in"
	MeetingCounselling         MeetingType = "counselling"
	MeetingDisciplinaryHearing MeetingType = "disciplinary_hearing"
)

// Meeting is a HR meeting held with an employee.
type Meeting struct {
	ID          string
	EmployeeID  string
	Type        MeetingType
	Status      MeetingStatus
	ScheduledAt time.Time
	ActiveState ActiveState
}

func (m Meeting) Fields() store.Fields {
	return store.Fields{
		"employeeId":  m.EmployeeID,
		"type":        string(m.Type),
		"status":      string(m.Status),
		"scheduledAt": m.ScheduledAt,
		"isActive":    m.ActiveState != Archived,
	}
}

func MeetingFromDocument(doc *store.Document) Meeting {
	return Meeting{
		ID:          doc.ID,
		EmployeeID:  util.AsString(doc.Get("employeeId")),
		Type:        MeetingType(util.AsString(doc.Get("type"))),
		Status:      MeetingStatus(util.AsString(doc.Get("status"))),
		ScheduledAt: util.AsTime(doc.Get("scheduledAt")),
		ActiveState: ActiveStateOf(doc.Get("isActive")),
	}
}

// MeetingIsUpcoming reports whether a meeting is still scheduled to happen.
func MeetingIsUpcoming(f store.Fields) bool {
	return ActiveStateOf(f["isActive"]).IsActive() &&
		MeetingStatus(util.AsString(f["status"])) == MeetingScheduled
}
