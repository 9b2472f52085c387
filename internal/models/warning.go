package models

import (
	"strings"
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// Level is the severity of a warning, ordered from least to most severe.
type Level string

const (
	LevelCounselling  Level = "counselling"
	LevelVerbal       Level = "verbal"
	LevelFirstWritten Level = "first_written"
	LevelFinalWritten Level = "final_written"
)

// Levels lists every level in ascending severity.
var Levels = []Level{LevelCounselling, LevelVerbal, LevelFirstWritten, LevelFinalWritten}

// Severity returns the ordinal of the level, or -1 when unknown.
func (l Level) Severity() int {
	for i, candidate := range Levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Priority of an index entry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities so index queries can sort numerically.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// PriorityForLevel derives an index priority from a warning level: final written
// warnings are high, any other written level medium, everything else low.
func PriorityForLevel(l Level) Priority {
	switch {
	case l == LevelFinalWritten:
		return PriorityHigh
	case strings.Contains(string(l), "written"):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// WarningStatus is the workflow status of a warning.
type WarningStatus string

const (
	StatusIssued       WarningStatus = "issued"
	StatusAcknowledged WarningStatus = "acknowledged"
	StatusAppealed     WarningStatus = "appealed"
	StatusExpired      WarningStatus = "expired"
	StatusArchived     WarningStatus = "archived"
)

// Warning belongs to exactly one employee and organization.
type Warning struct {
	ID           string
	EmployeeID   string
	EmployeeName string
	Level        Level
	Category     string
	Description  string
	IssueDate    time.Time
	ExpiryDate   time.Time
	Status       WarningStatus
	ActiveState  ActiveState
}

func (w Warning) Fields() store.Fields {
	status := w.Status
	if status == "" {
		status = StatusIssued
	}
	f := store.Fields{
		"employeeId": w.EmployeeID,
		"level":      string(w.Level),
		"category":   w.Category,
		"issueDate":  w.IssueDate,
		"expiryDate": w.ExpiryDate,
		"status":     string(status),
		"isActive":   w.ActiveState != Archived,
	}
	if w.EmployeeName != "" {
		f["employeeName"] = w.EmployeeName
	}
	if w.Description != "" {
		f["description"] = w.Description
	}
	return f
}

func WarningFromDocument(doc *store.Document) Warning {
	return Warning{
		ID:           doc.ID,
		EmployeeID:   util.AsString(doc.Get("employeeId")),
		EmployeeName: util.AsString(doc.Get("employeeName")),
		Level:        Level(util.AsString(doc.Get("level"))),
		Category:     util.AsString(doc.Get("category")),
		Description:  util.AsString(doc.Get("description")),
		IssueDate:    util.AsTime(doc.Get("issueDate")),
		ExpiryDate:   util.AsTime(doc.Get("expiryDate")),
		Status:       WarningStatus(util.AsString(doc.Get("status"))),
		ActiveState:  ActiveStateOf(doc.Get("isActive")),
	}
}

// WarningIsActive classifies stored warning fields. Active warnings are a
// subset of the non-expired, non-archived warnings.
func WarningIsActive(f store.Fields) bool {
	if !ActiveStateOf(f["isActive"]).IsActive() {
		return false
	}
	switch WarningStatus(util.AsString(f["status"])) {
	case StatusExpired, StatusArchived:
		return false
	}
	return true
}
