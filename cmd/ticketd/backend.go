package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/api/http/handlers"
	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/repository"
	"github.com/unityvault/ticketflow/internal/repository/gormstore"
	"github.com/unityvault/ticketflow/migrations"
)

// backend holds the repositories of the configured store driver.
type backend struct {
	configs    repository.ConfigRepository
	tickets    repository.TicketRepository
	rateLimits repository.RateLimitRepository
	health     handlers.Dependency
	close      func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, migrations.FS, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return &backend{
			configs:    repository.NewConfigRepository(pg.Pool),
			tickets:    repository.NewTicketRepository(pg.Pool),
			rateLimits: repository.NewRateLimitRepository(pg.Pool),
			health:     handlers.Dependency{Name: "postgres", Pinger: pg},
			close:      pg.Close,
		}, nil

	case config.StoreDriverSQLite:
		dsn, err := persistence.SQLiteDSN(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		sq, err := persistence.OpenSQLite(dsn, logger)
		if err != nil {
			return nil, err
		}
		store, err := gormstore.New(sq.DB)
		if err != nil {
			_ = sq.Close()
			return nil, err
		}
		return &backend{
			configs:    store.Configs(),
			tickets:    store.Tickets(),
			rateLimits: store.RateLimits(),
			health:     handlers.Dependency{Name: "sqlite", Pinger: sq},
			close:      func() { _ = sq.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
