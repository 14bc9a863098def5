package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLite needs a single writer; reads share the same connection under WAL.
const maxConns = 1

// Open opens (creating if necessary) the SQLite database file and brings
// its schema up to date.
func Open(dbPath, migrationsPath string, logger *logrus.Logger) (*sql.DB, error) {
	db, err := OpenFile(dbPath)
	if err != nil {
		return nil, err
	}

	migrator := NewMigrator(db, migrationsPath, logger)
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database ready")
	return db, nil
}

// OpenFile opens the database file with the connection pragmas applied but
// leaves the schema alone. The migrate command uses it to inspect or roll
// back without triggering an upgrade.
func OpenFile(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
