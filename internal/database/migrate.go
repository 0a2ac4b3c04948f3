package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the configured backend
// over a dedicated connection, which is closed on return.
//   - targetVersion < 0 migrates to the latest version.
//   - targetVersion == 0 rolls back every migration.
//   - targetVersion > 0 migrates up or down to that version.
func Migrate(cfg Config, targetVersion int) error {
	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return err
	}

	driverName, dsn, err := driverFor(backend, cfg)
	if err != nil {
		return err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to ping %s database: %w", backend, err)
	}

	var (
		driver migratedb.Driver
		dir    string
	)

	switch backend {
	case BackendSQLite:
		dir = "migrations/sqlite3"
		driver, err = sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	case BackendMySQL:
		dir = "migrations/mysql"
		driver, err = mysql.WithInstance(sqlDB, &mysql.Config{})
	case BackendPostgres:
		dir = "migrations/postgres"
		driver, err = postgres.WithInstance(sqlDB, &postgres.Config{})
	}
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to create %s migrate driver: %w", backend, err)
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to access migrations directory: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(backend), driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
		_ = sqlDB.Close()
	}()

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d; fix manually or force the version", currentVersion)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}

	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("Database schema is up to date", "backend", backend, "version", currentVersion)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate %s database: %w", backend, err)
	}

	newVersion, _, _ := m.Version()
	slog.Info("Database schema migrated",
		"backend", backend,
		"from_version", currentVersion,
		"to_version", newVersion)

	return nil
}
