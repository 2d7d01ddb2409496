package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/observability"
	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/migrations"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StoreDriverPostgres {
				fmt.Fprintf(cmd.OutOrStdout(), "store driver %q migrates itself on startup\n", cfg.Store.Driver)
				return nil
			}
			logger, err := observability.NewLogger(cfg.Logger, cfg.App)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := persistence.RunMigrations(cmd.Context(), pg.Pool, migrations.FS, logger); err != nil {
				return err
			}
			logger.Info("migrations complete", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
