package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/bulk"
	"github.com/wolfeidau/disciplinary/internal/cache"
	"github.com/wolfeidau/disciplinary/internal/config"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/index"
	"github.com/wolfeidau/disciplinary/internal/lifecycle"
	"github.com/wolfeidau/disciplinary/internal/logger"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
	"github.com/wolfeidau/disciplinary/internal/store/mongo"
	"github.com/wolfeidau/disciplinary/internal/store/postgres"
	"github.com/wolfeidau/disciplinary/internal/summary"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

type Globals struct {
	Debug   bool
	Version string
	Config  string

	// Out receives command output. Defaults to stdout.
	Out io.Writer
	// Store overrides the configured backend.
	Store store.Store
	// Now overrides the clock.
	Now func() time.Time
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// app holds the wired components for one command invocation.
type app struct {
	cfg       *config.Config
	store     store.Store
	engine    *engine.Engine
	directory *tenant.Directory
	index     *index.Maintainer
	summary   *summary.Aggregator
	lifecycle *lifecycle.Machine
	bulk      *bulk.Coordinator
	shutdown  func(context.Context) error
}

func openApp(ctx context.Context, globals *Globals) (*app, error) {
	log.Logger = logger.Setup(globals.Debug)

	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdown, err = telemetry.InitTelemetry(ctx, cfg.TelemetryConfig(globals.Version))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	st := globals.Store
	if st == nil {
		st, err = openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	now := globals.Now
	if now == nil {
		now = time.Now
	}

	e := engine.New(st, engine.Options{
		Cache: cache.New(cfg.Cache.TTL, cache.WithClock(now)),
		Now:   now,
	})
	machine := lifecycle.New(e, cfg.LifecycleOptions())

	return &app{
		cfg:       cfg,
		store:     st,
		engine:    e,
		directory: tenant.NewDirectory(st, now),
		index:     index.NewMaintainer(e),
		summary:   summary.NewAggregator(e, cfg.SummaryOptions()),
		lifecycle: machine,
		bulk:      bulk.NewCoordinator(e, machine, cfg.BulkOptions()),
		shutdown:  shutdown,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if cfg.Telemetry.Enabled {
			cfg.Store.Postgres.TraceQueries = true
		}
		return postgres.NewDocumentStore(ctx, &cfg.Store.Postgres)
	case config.BackendMongo:
		return mongo.NewDocumentStore(ctx, &cfg.Store.Mongo)
	default:
		log.Warn().Msg("Using the in-memory store, data is discarded on exit")
		return memory.NewDocumentStore(), nil
	}
}

// Close waits for pending summary refreshes and releases the store.
func (a *app) Close(ctx context.Context) {
	a.summary.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
	if err := a.shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// withApp opens the application, requires orgID to be an active
// organization when non-empty and runs fn.
func withApp(ctx context.Context, globals *Globals, orgID string, fn func(*app) error) error {
	a, err := openApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if orgID != "" {
		if err := a.directory.RequireActive(ctx, orgID); err != nil {
			return err
		}
	}
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
