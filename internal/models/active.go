package models

import (
	"strings"

	"github.com/wolfeidau/disciplinary/internal/store"
)

// ActiveState is the interpretation of a stored isActive flag. Stored data is
// inconsistent: the flag may be absent, null or a boolean, and only an explicit
// false means archived.
type ActiveState int

const (
	// ActiveUnknown is an absent or null flag, which defaults to active.
	ActiveUnknown ActiveState = iota
	Active
	Archived
)

func (s ActiveState) String() string {
	switch s {
	case Active:
		return "active"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// IsActive reports whether the state counts as active.
func (s ActiveState) IsActive() bool {
	return s != Archived
}

// ActiveStateOf maps a raw stored isActive value to an ActiveState. This is the
// only place the raw flag is interpreted.
func ActiveStateOf(raw any) ActiveState {
	switch v := raw.(type) {
	case bool:
		if v {
			return Active
		}
		return Archived
	case string:
		switch strings.ToLower(v) {
		case "true":
			return Active
		case "false":
			return Archived
		}
	}
	return ActiveUnknown
}

// IsPseudoDocument reports whether a document is bookkeeping rather than an
// entity: metadata placeholders and soft deleted tombstones.
func IsPseudoDocument(doc *store.Document) bool {
	if strings.HasPrefix(doc.ID, "_") {
		return true
	}
	if deleted, _ := doc.Get("_deleted").(bool); deleted {
		return true
	}
	meta, _ := doc.Get("_metadata").(bool)
	return meta
}
