package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// Migrator applies the SQL files under the migrations directory to an open
// database connection.
type Migrator struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

func NewMigrator(db *sql.DB, migrationsPath string, logger *logrus.Logger) *Migrator {
	return &Migrator{db: db, path: migrationsPath, logger: logger}
}

// Up applies every pending migration. A database left dirty by an
// interrupted run is forced back to its recorded version first.
func (m *Migrator) Up() error {
	instance, err := m.instance()
	if err != nil {
		return err
	}

	version, dirty, err := instance.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		m.logger.WithField("version", version).Warn("Schema is dirty, forcing recorded version")
		if err := instance.Force(int(version)); err != nil {
			return fmt.Errorf("force schema version: %w", err)
		}
	}

	if err := instance.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.WithField("version", version).Debug("Schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, _ := instance.Version()
	m.logger.WithFields(logrus.Fields{
		"from": version,
		"to":   newVersion,
	}).Info("Applied migrations")
	return nil
}

// Down rolls back a single migration step.
func (m *Migrator) Down() error {
	instance, err := m.instance()
	if err != nil {
		return err
	}

	version, _, err := instance.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return errors.New("nothing to roll back")
		}
		return fmt.Errorf("read schema version: %w", err)
	}

	if err := instance.Steps(-1); err != nil {
		return fmt.Errorf("roll back from version %d: %w", version, err)
	}

	m.logger.WithField("from", version).Info("Rolled back one migration")
	return nil
}

// Version reports the current schema version and whether it is dirty.
// Returns migrate.ErrNilVersion when no migration has been applied yet.
func (m *Migrator) Version() (uint, bool, error) {
	instance, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	return instance.Version()
}

// Verify checks that the expected tables exist and foreign keys are on.
func (m *Migrator) Verify() error {
	for _, table := range []string{"receipts", "line_items"} {
		var count int
		err := m.db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("table %s is missing", table)
		}
	}

	var fkEnabled int
	if err := m.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("check foreign_keys pragma: %w", err)
	}
	if fkEnabled != 1 {
		return errors.New("foreign keys are not enabled")
	}

	return nil
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migration driver: %w", err)
	}
	instance, err := migrate.NewWithDatabaseInstance("file://"+m.path, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("open migration source %s: %w", m.path, err)
	}
	return instance, nil
}
