package main

import (
	"fmt"
	"log/slog"

	"github.com/leca/imagehost/internal/config"
	"github.com/leca/imagehost/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies pending database migrations and exits",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DBDriver == config.DriverPostgres {
			if err := database.MigratePostgres(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		} else {
			// Opening a SQLite database migrates it.
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			db.Close()
		}
		slog.Info("database is up to date", "driver", cfg.DBDriver)
		return nil
	},
}
