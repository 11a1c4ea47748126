package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aimerfeng/ContribChain/internal/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	// Configure zerolog for pretty console output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "Manage the ContribChain database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "driver",
				Usage:   "database driver: postgres or sqlite",
				Value:   database.DriverPostgres,
				Sources: cli.EnvVars("DATABASE_DRIVER"),
			},
			&cli.StringFlag{
				Name:     "database",
				Usage:    "database URL or SQLite path",
				Sources:  cli.EnvVars("DATABASE_URL"),
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to apply (0 = all)"},
				},
				Action: runUp,
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back (0 = all)"},
				},
				Action: runDown,
			},
			{
				Name:   "version",
				Usage:  "print the applied migration version (postgres)",
				Action: runVersion,
			},
			{
				Name:  "force",
				Usage: "set the migration version without running migrations (postgres)",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "version", Required: true},
				},
				Action: runForce,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No migrations to apply")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func runUp(ctx context.Context, cmd *cli.Command) error {
	steps := int(cmd.Int("steps"))

	if cmd.String("driver") == database.DriverSQLite {
		if steps > 0 {
			return fmt.Errorf("--steps is not supported for sqlite")
		}
		// OpenSQLite applies every pending migration
		db, err := database.OpenSQLite(ctx, cmd.String("database"))
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info().Msg("Migration completed successfully")
		return nil
	}

	return withMigrator(cmd, func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	})
}

func runDown(ctx context.Context, cmd *cli.Command) error {
	steps := int(cmd.Int("steps"))

	if cmd.String("driver") == database.DriverSQLite {
		if steps > 0 {
			return fmt.Errorf("--steps is not supported for sqlite")
		}
		db, err := database.OpenSQLite(ctx, cmd.String("database"))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.ResetSQLite(db.DB); err != nil {
			return err
		}
		log.Info().Msg("Migrations rolled back")
		return nil
	}

	return withMigrator(cmd, func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	})
}

func runVersion(_ context.Context, cmd *cli.Command) error {
	m, err := postgresMigrator(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info().Msg("No migrations have been applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Current migration version")
	return nil
}

func runForce(_ context.Context, cmd *cli.Command) error {
	return withMigrator(cmd, func(m *migrate.Migrate) error {
		return m.Force(int(cmd.Int("version")))
	})
}

func withMigrator(cmd *cli.Command, fn func(m *migrate.Migrate) error) error {
	m, err := postgresMigrator(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(m); err != nil {
		return err
	}
	log.Info().Msg("Migration completed successfully")
	return nil
}

func postgresMigrator(cmd *cli.Command) (*migrate.Migrate, error) {
	if driver := cmd.String("driver"); driver != database.DriverPostgres {
		return nil, fmt.Errorf("command %q requires the postgres driver, got %q", cmd.Name, driver)
	}
	return database.NewPostgresMigrator(cmd.String("database"))
}
