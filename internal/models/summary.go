package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

type WarningCounts struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	ByLevel       map[string]int `json:"byLevel"`
	FinalWarnings int            `json:"finalWarnings"`
}

type MeetingCounts struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Pending  int `json:"pending"`
}

type AbsenceCounts struct {
	TotalDays     float64 `json:"totalDays"`
	ThisMonthDays float64 `json:"thisMonthDays"`
	UnpaidDays    float64 `json:"unpaidDays"`
}

// Summary holds rollup counters derived from an employee's subordinate records.
type Summary struct {
	EmployeeID    string        `json:"employeeId"`
	Warnings      WarningCounts `json:"warnings"`
	Meetings      MeetingCounts `json:"meetings"`
	Absences      AbsenceCounts `json:"absences"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	InvalidatedAt time.Time     `json:"invalidatedAt,omitzero"`
}

// CounterFields returns the counters without bookkeeping timestamps.
func (s Summary) CounterFields() store.Fields {
	byLevel := make(store.Fields, len(s.Warnings.ByLevel))
	for level, n := range s.Warnings.ByLevel {
		byLevel[level] = n
	}
	return store.Fields{
		"warnings": store.Fields{
			"total":         s.Warnings.Total,
			"active":        s.Warnings.Active,
			"byLevel":       byLevel,
			"finalWarnings": s.Warnings.FinalWarnings,
		},
		"meetings": store.Fields{
			"total":    s.Meetings.Total,
			"upcoming": s.Meetings.Upcoming,
			"pending":  s.Meetings.Pending,
		},
		"absences": store.Fields{
			"totalDays":     s.Absences.TotalDays,
			"thisMonthDays": s.Absences.ThisMonthDays,
			"unpaidDays":    s.Absences.UnpaidDays,
		},
	}
}

func SummaryFromDocument(employeeID string, doc *store.Document) Summary {
	warnings := asFields(doc.Get("warnings"))
	meetings := asFields(doc.Get("meetings"))
	absences := asFields(doc.Get("absences"))

	byLevel := map[string]int{}
	for level, n := range asFields(warnings["byLevel"]) {
		byLevel[level] = util.AsInt(n)
	}

	return Summary{
		EmployeeID: employeeID,
		Warnings: WarningCounts{
			Total:         util.AsInt(warnings["total"]),
			Active:        util.AsInt(warnings["active"]),
			ByLevel:       byLevel,
			FinalWarnings: util.AsInt(warnings["finalWarnings"]),
		},
		Meetings: MeetingCounts{
			Total:    util.AsInt(meetings["total"]),
			Upcoming: util.AsInt(meetings["upcoming"]),
			Pending:  util.AsInt(meetings["pending"]),
		},
		Absences: AbsenceCounts{
			TotalDays:     util.AsFloat(absences["totalDays"]),
			ThisMonthDays: util.AsFloat(absences["thisMonthDays"]),
			UnpaidDays:    util.AsFloat(absences["unpaidDays"]),
		},
		LastUpdated:   util.AsTime(doc.Get("lastUpdated")),
		InvalidatedAt: util.AsTime(doc.Get("invalidatedAt")),
	}
}

func asFields(v any) store.Fields {
	switch f := v.(type) {
	case store.Fields:
		return f
	case map[string]any:
		return f
	default:
		return store.Fields{}
	}
}
