package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/wolfeidau/disciplinary/internal/models"
)

type IndexCmd struct {
	List     IndexListCmd     `cmd:"" help:"List active warnings by priority"`
	Meetings IndexMeetingsCmd `cmd:"" help:"List upcoming meetings by priority"`
	Rebuild  IndexRebuildCmd  `cmd:"" help:"Recompute an organization's indexes from source records"`
	Expire   IndexExpireCmd   `cmd:"" help:"Expire warnings past their expiry date"`
}

type IndexListCmd struct {
	Org   string `help:"Organization ID" required:""`
	Limit int    `help:"Maximum entries" default:"50"`
}

func (c *IndexListCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		entries, err := a.index.GetActiveIndex(ctx, c.Org, c.Limit)
		if err != nil {
			return err
		}
		return printEntries(globals, entries, "No active warnings.")
	})
}

type IndexMeetingsCmd struct {
	Org   string `help:"Organization ID" required:""`
	Limit int    `help:"Maximum entries" default:"50"`
}

func (c *IndexMeetingsCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		entries, err := a.index.GetUpcomingMeetings(ctx, c.Org, c.Limit)
		if err != nil {
			return err
		}
		return printEntries(globals, entries, "No upcoming meetings.")
	})
}

type IndexRebuildCmd struct {
	Org string `help:"Organization ID" required:""`
}

func (c *IndexRebuildCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		n, err := a.index.Rebuild(ctx, c.Org)
		if err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Rebuilt indexes for %s (%d entries written)\n", c.Org, n)
		return nil
	})
}

type IndexExpireCmd struct {
	Org string `help:"Organization ID" required:""`
}

func (c *IndexExpireCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		n, err := a.index.ExpireWarnings(ctx, c.Org)
		if err != nil {
			return err
		}
		fmt.Fprintf(globals.out(), "Expired %d warnings\n", n)
		return nil
	})
}

func printEntries(globals *Globals, entries []models.IndexEntry, empty string) error {
	if len(entries) == 0 {
		fmt.Fprintln(globals.out(), empty)
		return nil
	}
	w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tEMPLOYEE\tNAME\tLEVEL\tPRIORITY\tDATE")
	for _, e := range entries {
		date := e.IssueDate
		if date.IsZero() {
			date = e.ScheduledAt
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.SourceID, e.EmployeeID, e.EmployeeName, e.Level, e.Priority, formatTime(date))
	}
	return w.Flush()
}
