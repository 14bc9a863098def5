package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/database"
)

func main() {
	dbPath := flag.String("db", "./data/bookkeeper.db", "database file path")
	migrationsPath := flag.String("migrations", "./migrations", "migrations directory")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	action := flag.Arg(0)
	if action == "" {
		action = "up"
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := database.OpenFile(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	migrator := database.NewMigrator(db, *migrationsPath, logger)

	switch action {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = migrator.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			fmt.Println("no migrations applied")
			err = nil
		case err == nil:
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		}
	case "verify":
		if err = migrator.Verify(); err == nil {
			fmt.Println("schema ok")
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: migrate [-db file] [-migrations dir] [up|down|version|verify]")
		os.Exit(2)
	}

	if err != nil {
		logger.WithError(err).Fatalf("Migration %s failed", action)
	}
}
