package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/config"
	"github.com/wolfeidau/disciplinary/internal/logger"
	"github.com/wolfeidau/disciplinary/internal/store/mongo"
	"github.com/wolfeidau/disciplinary/internal/store/postgres"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	cfg, err := config.Load(globals.Config)
	if err != nil {
		return err
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Store.Postgres.PoolConfig)
		if err != nil {
			return err
		}
		defer pool.Close()
		return postgres.RunMigrations(ctx, pool)

	case config.BackendMongo:
		s, err := mongo.NewDocumentStore(ctx, &cfg.Store.Mongo)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck
		return s.EnsureIndexes(ctx, collectionIDs()...)

	default:
		fmt.Fprintf(globals.out(), "backend %s has nothing to migrate\n", cfg.Store.Backend)
		return nil
	}
}

// collectionIDs lists every collection the records core writes to.
func collectionIDs() []string {
	return []string{
		tenant.OrganizationsCollection,
		tenant.KindEmployees.CollectionID(),
		tenant.KindWarnings.CollectionID(),
		tenant.KindMeetings.CollectionID(),
		tenant.KindAbsences.CollectionID(),
		tenant.KindActiveWarnings.CollectionID(),
		tenant.KindUpcomingMeetings.CollectionID(),
		tenant.KindSummary.CollectionID(),
		tenant.AuditCollection,
	}
}
