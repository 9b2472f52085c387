package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/disciplinary/cmd/recordsctl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool   `help:"Enable debug mode."`
		Config  string `help:"Path to a YAML config file." type:"path" env:"DISCIPLINARY_CONFIG"`
		Version kong.VersionFlag

		Migrate  commands.MigrateCmd  `cmd:"" help:"Apply store migrations and indexes"`
		Org      commands.OrgCmd      `cmd:"" help:"Manage organizations"`
		Import   commands.ImportCmd   `cmd:"" help:"Bulk import records from a JSON lines file"`
		Update   commands.UpdateCmd   `cmd:"" help:"Apply a bulk action to employees"`
		Status   commands.StatusCmd   `cmd:"" help:"Show an employee's lifecycle state"`
		Archive  commands.ArchiveCmd  `cmd:"" help:"Archive employees"`
		Restore  commands.RestoreCmd  `cmd:"" help:"Restore an archived employee"`
		Purge    commands.PurgeCmd    `cmd:"" help:"Permanently delete an employee past retention"`
		Eligible commands.EligibleCmd `cmd:"" help:"List employees eligible for permanent deletion"`
		Summary  commands.SummaryCmd  `cmd:"" help:"Show an employee's disciplinary summary"`
		Index    commands.IndexCmd    `cmd:"" help:"Inspect and maintain secondary indexes"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Config: cli.Config})
	cmd.FatalIfErrorf(err)
}
