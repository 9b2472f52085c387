package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/disciplinary/internal/bulk"
	"github.com/wolfeidau/disciplinary/internal/models"
)

type UpdateCmd struct {
	Org            string   `help:"Organization ID" required:""`
	Department     string   `help:"Move employees to this department" xor:"action"`
	DeliveryMethod string   `help:"Set the preferred delivery method" xor:"action"`
	Employees      []string `arg:"" help:"Employee IDs"`
}

func (c *UpdateCmd) Run(ctx context.Context, globals *Globals) error {
	var action bulk.Action
	switch {
	case c.Department != "":
		action = bulk.UpdateDepartmentAction{Department: c.Department}
	case c.DeliveryMethod != "":
		action = bulk.UpdateDeliveryMethodAction{Method: models.DeliveryMethod(c.DeliveryMethod)}
	default:
		return fmt.Errorf("one of --department or --delivery-method is required")
	}

	return withApp(ctx, globals, c.Org, func(a *app) error {
		res, err := a.bulk.ApplyAction(ctx, c.Org, c.Employees, action)
		if res != nil {
			printBulkResult(globals.out(), "updated", res)
		}
		return err
	})
}
