package database

import (
	"fmt"

	"qcwarehouse/internal/database/migration"

	"go.uber.org/zap"
)

// RunMigrations applies every pending migration found in migrationsDir.
func RunMigrations(dbURL string, migrationsDir string, logger *zap.Logger) error {
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	migrationsURL, err := migration.SourceURL(migrationsDir)
	if err != nil {
		return err
	}

	return migration.Migrate(dbURL, migrationsURL, true, logger)
}
