package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
)

// Directory keeps the registry of organizations in the root collection.
type Directory struct {
	store store.Store
	now   func() time.Time
}

// NewDirectory creates an organization directory on st. A nil now uses time.Now.
func NewDirectory(st store.Store, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{store: st, now: now}
}

// Create registers a new active organization.
// Returns ErrAlreadyExists if the organization ID is taken.
func (d *Directory) Create(ctx context.Context, orgID, name string) (*models.Organization, error) {
	if err := ValidateOrganizationID(orgID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.InvalidArgumentf("organization name is required")
	}

	org := models.Organization{
		OrgID:     orgID,
		Name:      name,
		Active:    true,
		CreatedAt: d.now().UTC().Truncate(store.TimePrecision),
	}

	if err := d.store.Commit(ctx, []store.Write{store.Create(OrganizationsCollection, orgID, org.Fields())}); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	log.Debug().
		Str("org_id", orgID).
		Str("name", name).
		Msg("Created organization")

	return &org, nil
}

// Get retrieves an organization by ID.
func (d *Directory) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	if err := ValidateOrganizationID(orgID); err != nil {
		return nil, err
	}
	doc, err := d.store.Get(ctx, OrganizationsCollection, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org := models.OrganizationFromDocument(doc)
	return &org, nil
}

// RequireActive returns ErrInvalidState unless the organization exists and is active.
func (d *Directory) RequireActive(ctx context.Context, orgID string) error {
	org, err := d.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if !org.Active {
		return store.InvalidStatef("organization %s is deactivated", orgID)
	}
	return nil
}

// Deactivate marks an organization inactive. Its data is left untouched.
func (d *Directory) Deactivate(ctx context.Context, orgID string) error {
	if err := ValidateOrganizationID(orgID); err != nil {
		return err
	}
	err := d.store.Commit(ctx, []store.Write{store.Update(OrganizationsCollection, orgID, store.Fields{
		"isActive":      false,
		"deactivatedAt": d.now().UTC().Truncate(store.TimePrecision),
	})})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to deactivate organization: %w", err)
	}

	log.Info().
		Str("org_id", orgID).
		Msg("Deactivated organization")

	return nil
}

// List returns every registered organization ordered by ID.
func (d *Directory) List(ctx context.Context) ([]*models.Organization, error) {
	docs, err := d.store.Query(ctx, OrganizationsCollection, store.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	orgs := make([]*models.Organization, 0, len(docs))
	for _, doc := range docs {
		org := models.OrganizationFromDocument(doc)
		orgs = append(orgs, &org)
	}
	return orgs, nil
}
