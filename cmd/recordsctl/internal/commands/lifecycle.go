package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/wolfeidau/disciplinary/internal/lifecycle"
)

type StatusCmd struct {
	Org      string `help:"Organization ID" required:""`
	Employee string `arg:"" help:"Employee ID"`
}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		status, err := a.lifecycle.GetEmployeeLifecycleState(ctx, c.Org, c.Employee)
		if err != nil {
			return err
		}
		return printStatuses(globals.out(), []lifecycle.Status{*status})
	})
}

type ArchiveCmd struct {
	Org       string   `help:"Organization ID" required:""`
	Reason    string   `help:"Archive reason" required:""`
	Actor     string   `help:"ID of the user performing the archive" required:"" env:"DISCIPLINARY_ACTOR"`
	Employees []string `arg:"" help:"Employee IDs"`
}

func (c *ArchiveCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		res, err := a.lifecycle.BulkArchive(ctx, c.Org, c.Employees, c.Reason, c.Actor)
		if res != nil {
			printBulkResult(globals.out(), "archived", res)
		}
		return err
	})
}

type RestoreCmd struct {
	Org      string `help:"Organization ID" required:""`
	Actor    string `help:"ID of the user performing the restore" required:"" env:"DISCIPLINARY_ACTOR"`
	Employee string `arg:"" help:"Employee ID"`
}

func (c *RestoreCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		if err := a.lifecycle.Restore(ctx, c.Org, c.Employee, c.Actor); err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Restored employee %s\n", c.Employee)
		return nil
	})
}

type PurgeCmd struct {
	Org      string `help:"Organization ID" required:""`
	Actor    string `help:"ID of the user performing the deletion" required:"" env:"DISCIPLINARY_ACTOR"`
	Confirm  string `help:"Confirmation code, DELETE-<employee number>-<last 4 of actor ID>" required:""`
	Employee string `arg:"" help:"Employee ID"`
}

func (c *PurgeCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		rec, err := a.lifecycle.PermanentlyDelete(ctx, c.Org, c.Employee, c.Actor, c.Confirm)
		if err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Permanently deleted employee %s (audit record %s, archived %d days)\n",
			c.Employee, rec.ID, rec.ArchivedDays)
		return nil
	})
}

type EligibleCmd struct {
	Org string `help:"Organization ID" required:""`
}

func (c *EligibleCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		statuses, err := a.lifecycle.ListDeletionEligible(ctx, c.Org)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Fprintln(globals.out(), "No employees are eligible for deletion.")
			return nil
		}
		return printStatuses(globals.out(), statuses)
	})
}

func printStatuses(out io.Writer, statuses []lifecycle.Status) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMPLOYEE\tSTATE\tARCHIVED\tREASON\tELIGIBLE")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.EmployeeID, s.State, formatTime(s.ArchivedAt), s.ArchiveReason, formatTime(s.EligibleAt))
	}
	return w.Flush()
}

func printBulkResult(out io.Writer, verb string, res *lifecycle.BulkResult) {
	fmt.Fprintf(out, "%d %s, %d failed\n", len(res.Successful), verb, len(res.Failed))
	for _, f := range res.Failed {
		fmt.Fprintf(out, "  %s: %s\n", f.ID, f.Error)
	}
}
