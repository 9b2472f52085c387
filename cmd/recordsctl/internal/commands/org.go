package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
)

type OrgCmd struct {
	Create     OrgCreateCmd     `cmd:"" help:"Register an organization"`
	List       OrgListCmd       `cmd:"" help:"List organizations"`
	Deactivate OrgDeactivateCmd `cmd:"" help:"Deactivate an organization"`
}

type OrgCreateCmd struct {
	ID   string `arg:"" help:"Organization ID"`
	Name string `help:"Display name" required:""`
}

func (c *OrgCreateCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, "", func(a *app) error {
		org, err := a.directory.Create(ctx, c.ID, c.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Created organization %s (%s)\n", org.OrgID, org.Name)
		return nil
	})
}

type OrgListCmd struct{}

func (c *OrgListCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, "", func(a *app) error {
		orgs, err := a.directory.List(ctx)
		if err != nil {
			return err
		}
		if len(orgs) == 0 {
			fmt.Fprintln(globals.out(), "No organizations found.")
			return nil
		}

		w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACTIVE\tCREATED")
		for _, org := range orgs {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", org.OrgID, org.Name, org.Active, formatTime(org.CreatedAt))
		}
		return w.Flush()
	})
}

type OrgDeactivateCmd struct {
	ID string `arg:"" help:"Organization ID"`
}

func (c *OrgDeactivateCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, "", func(a *app) error {
		if err := a.directory.Deactivate(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Deactivated organization %s\n", c.ID)
		return nil
	})
}
