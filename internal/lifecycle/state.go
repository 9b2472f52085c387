package lifecycle

import (
	"strings"
	"time"

	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// State is the lifecycle position of a personnel record.
type State string

const (
	StateActive           State = "active"
	StateArchived         State = "archived"
	StateDeletionEligible State = "deletion_eligible"
)

// DefaultRetention is how long an archived record is retained before it may be
// permanently deleted: five years of 365 days.
const DefaultRetention = 1825 * 24 * time.Hour

// StateOf derives the lifecycle state of stored employee fields at now.
// Deletion eligibility is never stored. A record is archived when its active
// flag is false or an archive timestamp is present. An archived record without
// an archive timestamp cannot become eligible.
func StateOf(f store.Fields, now time.Time, retention time.Duration) State {
	archivedAt := util.AsTime(f["archivedAt"])
	archived := !models.ActiveStateOf(f["isActive"]).IsActive() || !archivedAt.IsZero()

	switch {
	case !archived:
		return StateActive
	case archivedAt.IsZero():
		return StateArchived
	case !now.Before(archivedAt.Add(retention)):
		return StateDeletionEligible
	default:
		return StateArchived
	}
}

// ConfirmationCode is the code an actor must present to permanently delete an
// employee: "DELETE-{employeeNumber}-{last four characters of the actor ID, upper case}".
func ConfirmationCode(employeeNumber, actorID string) string {
	return "DELETE-" + employeeNumber + "-" + strings.ToUpper(util.Last(actorID, 4))
}

// Status is the lifecycle view of one employee.
type Status struct {
	EmployeeID    string
	State         State
	ArchivedAt    time.Time
	ArchiveReason string
	ArchivedBy    string
	// EligibleAt is when an archived record becomes deletion eligible.
	EligibleAt time.Time
}

func statusOf(doc *store.Document, now time.Time, retention time.Duration) Status {
	s := Status{
		EmployeeID:    doc.ID,
		State:         StateOf(doc.Fields, now, retention),
		ArchivedAt:    util.AsTime(doc.Get("archivedAt")),
		ArchiveReason: util.AsString(doc.Get("archiveReason")),
		ArchivedBy:    util.AsString(doc.Get("archivedBy")),
	}
	if !s.ArchivedAt.IsZero() {
		s.EligibleAt = s.ArchivedAt.Add(retention)
	}
	return s
}
