package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/songbridge/internal/shared"
)

// SetupInit creates the config file when missing, stores a generated session secret and migrates the database.
func (r *Runner) SetupInit(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			return err
		}
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}

	if config.EnsureSessionSecret() {
		if err := shared.SaveConfig(path, config); err != nil {
			return err
		}
		r.logger.Info("generated session secret", "path", path)
	}

	if err := config.ApplyEnv(); err != nil {
		return err
	}
	r.config = config
	r.configPath = path

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("✓ Configuration: %s\n", path)
	r.writePlain("✓ Database: %s\n", config.Database.Path)
	if err := config.Validate(); err != nil {
		r.writePlainln("Next steps:")
		r.writePlain("1. Set credentials.spotify.client_id in %s (or SPOTIFY_CLIENT_ID)\n", path)
		r.writePlain("2. Run 'songbridge youtube auth --file headers.txt' to connect YouTube Music\n")
	}
	return nil
}

// SetupMigrations lists the embedded migrations and their applied state.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := shared.Migrations(db)
	if err != nil {
		return err
	}

	r.writePlainHeader("Migrations")
	for _, s := range statuses {
		mark := "✗"
		if s.Applied {
			mark = "✓"
		}
		r.writePlain("%s %04d %s\n", mark, s.Version, s.Name)
	}
	return nil
}

// SetupRollback reverts the newest applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	r.logger.Info("rolled back latest migration", "database", r.config.Database.Path)
	return r.writePlain("✓ Rolled back latest migration\n")
}
