package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var (
	DB *sqlx.DB
)

const (
	maxConnectAttempts = 10
	connectRetryDelay  = 2 * time.Second
)

// Init opens a PostgreSQL connection and assigns it to DB. Postgres often
// comes up after the service in compose setups, so connecting is retried.
func Init(databaseURL string) error {
	var err error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		DB, err = sqlx.Connect("postgres", databaseURL)
		if err == nil {
			log.Info().Msg("connected to database")
			return nil
		}

		log.Error().Err(err).
			Int("attempt", attempt).
			Msgf("failed to connect to database, retrying in %s", connectRetryDelay)

		time.Sleep(connectRetryDelay)
	}

	return fmt.Errorf("could not connect to database after %d attempts: %w", maxConnectAttempts, err)
}

// RunMigrations executes every "*.up.sql" file in migrationsPath in name
// order. Migrations must be idempotent; they run on every start.
func RunMigrations(migrationsPath string) error {
	if DB == nil {
		return fmt.Errorf("run migrations: database not initialised")
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	if err != nil {
		log.Error().Err(err).Str("path", migrationsPath).Msg("failed to list up migrations")
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	if len(files) == 0 {
		log.Warn().Str("path", migrationsPath).Msg("no migrations found")
		return nil
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("failed to read migration file")
			return fmt.Errorf("could not read migration %q: %w", file, err)
		}
		stmt := strings.TrimSpace(string(sqlBytes))
		if stmt == "" {
			continue
		}
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("error executing migration %q: %w", file, err)
		}
		log.Debug().Str("file", filepath.Base(file)).Msg("migration applied")
	}
	return nil
}

// Open returns the Postgres store for databaseURL after migrating it, or an
// in-memory store when databaseURL is empty.
func Open(databaseURL, migrationsPath string) (Store, error) {
	if databaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return NewMemoryStore(), nil
	}
	if err := Init(databaseURL); err != nil {
		return nil, err
	}
	if err := RunMigrations(migrationsPath); err != nil {
		return nil, err
	}
	return NewStore(DB), nil
}

// Close closes DB if it was opened.
func Close() {
	if DB == nil {
		return
	}
	if err := DB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
