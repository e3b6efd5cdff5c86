package cmd

import (
	"fmt"
	"log/slog"

	"github.com/docket0/docket/db"
	"github.com/docket0/docket/internal/config"
)

// runMigrate applies pending database migrations and exits.
// serve and ask run migrations on startup too; this command exists for
// deploy pipelines that migrate before rolling out.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("database migrations up to date")
	return nil
}
