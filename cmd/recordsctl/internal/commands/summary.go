package commands

import (
	"context"
)

type SummaryCmd struct {
	Org       string `help:"Organization ID" required:""`
	Employee  string `arg:"" help:"Employee ID"`
	Recompute bool   `help:"Recompute even when the stored summary is fresh"`
}

func (c *SummaryCmd) Run(ctx context.Context, globals *Globals) error {
	return withApp(ctx, globals, c.Org, func(a *app) error {
		get := a.summary.GetSummary
		if c.Recompute {
			get = a.summary.Recompute
		}
		s, err := get(ctx, c.Org, c.Employee)
		if err != nil {
			return err
		}
		return printJSON(globals.out(), s)
	})
}
