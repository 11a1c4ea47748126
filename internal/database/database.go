package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aimerfeng/ContribChain/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured database and, when requested, applies pending migrations
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		db, err := OpenPostgres(ctx, cfg.URL, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := MigratePostgres(cfg.URL); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return db, nil
	case DriverSQLite:
		// goose migrations are embedded and always applied for SQLite
		return OpenSQLite(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenPostgres creates a connection pool over the pgx stdlib driver
func OpenPostgres(ctx context.Context, databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("driver", DriverPostgres).Msg("Database connection established")
	return db, nil
}

// OpenSQLite opens a SQLite database and applies the embedded migrations.
// An in-memory database is limited to one connection since every
// connection would otherwise see its own empty database.
func OpenSQLite(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = "./data/contribchain.db"
	}

	memory := isMemoryDSN(dsn)
	if !memory {
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(DriverSQLite, addDefaultParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if !memory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	if err := MigrateSQLite(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Health checks if the database is reachable
func Health(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// addDefaultParams adds the connection parameters the store relies on
// (foreign keys, busy timeout, immediate write transactions, sortable timestamps).
func addDefaultParams(dsn string) string {
	defaults := []struct{ key, param string }{
		{"foreign_keys", "_pragma=foreign_keys(1)"},
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
		{"_txlock", "_txlock=immediate"},
		{"_time_format", "_time_format=sqlite"},
	}

	for _, d := range defaults {
		if strings.Contains(dsn, d.key) {
			continue
		}
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + d.param
	}
	return dsn
}
