package db

import (
	"errors"
	"os"
)

// InitTestDB connects to TEST_DATABASE_URL and migrates it, for tests that
// need a real Postgres.
func InitTestDB(migrationsPath string) (Store, error) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("TEST_DATABASE_URL environment variable is not set")
	}

	if err := Init(dbURL); err != nil {
		return nil, err
	}

	if err := RunMigrations(migrationsPath); err != nil {
		return nil, err
	}

	return NewStore(DB), nil
}
