package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// Organization represents an organization (tenant) in the system.
// Organizations are never merged; deactivation is a soft flag.
type Organization struct {
	OrgID         string
	Name          string
	Active        bool
	CreatedAt     time.Time
	DeactivatedAt time.Time
}

func (o Organization) Fields() store.Fields {
	return store.Fields{
		"name":          o.Name,
		"isActive":      o.Active,
		"createdAt":     o.CreatedAt,
		"deactivatedAt": o.DeactivatedAt,
	}
}

func OrganizationFromDocument(doc *store.Document) Organization {
	return Organization{
		OrgID:         doc.ID,
		Name:          util.AsString(doc.Get("name")),
		Active:        ActiveStateOf(doc.Get("isActive")).IsActive(),
		CreatedAt:     util.AsTime(doc.Get("createdAt")),
		DeactivatedAt: util.AsTime(doc.Get("deactivatedAt")),
	}
}
