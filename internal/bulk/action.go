package bulk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/lifecycle"
	"github.com/wolfeidau/disciplinary/internal/models"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

// Action is a bulk action applied to each selected employee. The set of
// actions is closed: ArchiveAction, UpdateDepartmentAction and
// UpdateDeliveryMethodAction.
type Action interface {
	action()
	Name() string
}

// ArchiveAction archives each employee.
type ArchiveAction struct {
	Reason  string
	ActorID string
}

// UpdateDepartmentAction moves each employee to a department.
type UpdateDepartmentAction struct {
	Department string
}

// UpdateDeliveryMethodAction changes how warning documents reach each employee.
type UpdateDeliveryMethodAction struct {
	Method models.DeliveryMethod
}

func (ArchiveAction) action()              {}
func (UpdateDepartmentAction) action()     {}
func (UpdateDeliveryMethodAction) action() {}

func (ArchiveAction) Name() string              { return "archive" }
func (UpdateDepartmentAction) Name() string     { return "update_department" }
func (UpdateDeliveryMethodAction) Name() string { return "update_delivery_method" }

// ApplyAction applies action to each employee in turn with the inter item
// delay. Failures are recorded per employee and never abort the batch.
func (c *Coordinator) ApplyAction(ctx context.Context, orgID string, employeeIDs []string, action Action) (*lifecycle.BulkResult, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	res := &lifecycle.BulkResult{Successful: []string{}, Failed: []lifecycle.Failure{}}
	for i, id := range employeeIDs {
		if i > 0 {
			if err := c.pause(ctx); err != nil {
				return res, err
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := c.apply(ctx, orgID, id, action); err != nil {
			res.Failed = append(res.Failed, lifecycle.Failure{ID: id, Error: err.Error()})
			c.count(ctx, "failed")
			continue
		}
		res.Successful = append(res.Successful, id)
		c.count(ctx, "succeeded")
	}

	log.Info().Str("org_id", orgID).Str("action", action.Name()).
		Int("successful", len(res.Successful)).Int("failed", len(res.Failed)).Msg("bulk action finished")
	return res, nil
}

func validateAction(action Action) error {
	switch a := action.(type) {
	case ArchiveAction:
		if a.Reason == "" || a.ActorID == "" {
			return store.InvalidArgumentf("archive action requires a reason and actor")
		}
	case UpdateDepartmentAction:
		if a.Department == "" {
			return store.InvalidArgumentf("department is required")
		}
	case UpdateDeliveryMethodAction:
		if !a.Method.Valid() {
			return store.InvalidArgumentf("unknown delivery method %q", a.Method)
		}
	case nil:
		return store.InvalidArgumentf("action is required")
	default:
		return store.InvalidArgumentf("unsupported action %T", action)
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, orgID, employeeID string, action Action) error {
	switch a := action.(type) {
	case ArchiveAction:
		return c.lifecycle.Archive(ctx, orgID, employeeID, a.Reason, a.ActorID)
	case UpdateDepartmentAction:
		return c.engine.Update(ctx, orgID, tenant.KindEmployees, employeeID, store.Fields{"department": a.Department})
	case UpdateDeliveryMethodAction:
		return c.engine.Update(ctx, orgID, tenant.KindEmployees, employeeID, store.Fields{"deliveryMethod": string(a.Method)})
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}
