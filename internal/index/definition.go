package index

import (
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// Definition describes one denormalized index over a source entity kind.
// An index entry exists for a source document exactly when Active reports true
// for its fields, and holds Project of those fields.
type Definition struct {
	Kind    tenant.Kind
	Source  tenant.Kind
	Active  func(store.Fields) bool
	Project func(store.Fields) store.Fields
}

// ActiveWarnings mirrors every active warning of an organization, tagged with a
// priority derived from its level.
var ActiveWarnings = Definition{
	Kind:   tenant.KindActiveWarnings,
	Source: tenant.KindWarnings,
	Active: models.WarningIsActive,
	Project: func(f store.Fields) store.Fields {
		priority := models.PriorityForLevel(models.Level(util.AsString(f["level"])))
		return store.Fields{
			"organizationId": f["organizationId"],
			"employeeId":     f["employeeId"],
			"employeeName":   f["employeeName"],
			"level":          f["level"],
			"category":       f["category"],
			"status":         f["status"],
			"issueDate":      f["issueDate"],
			"expiryDate":     f["expiryDate"],
			"priority":       string(priority),
			"priorityRank":   priority.Rank(),
		}
	},
}

// UpcomingMeetings mirrors scheduled meetings. Disciplinary hearings are high
// priority, everything else medium.
var UpcomingMeetings = Definition{
	Kind:   tenant.KindUpcomingMeetings,
	Source: tenant.KindMeetings,
	Active: models.MeetingIsUpcoming,
	Project: func(f store.Fields) store.Fields {
		priority := models.PriorityMedium
		if models.MeetingType(util.AsString(f["type"])) == models.MeetingDisciplinaryHearing {
			priority = models.PriorityHigh
		}
		return store.Fields{
			"organizationId": f["organizationId"],
			"employeeId":     f["employeeId"],
			"employeeName":   f["employeeName"],
			"type":           f["type"],
			"status":         f["status"],
			"scheduledAt":    f["scheduledAt"],
			"priority":       string(priority),
			"priorityRank":   priority.Rank(),
		}
	},
}

// Definitions lists every index maintained by default.
var Definitions = []Definition{ActiveWarnings, UpcomingMeetings}
