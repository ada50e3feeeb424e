package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/liamcoop/formsync/internal/database"
	"github.com/liamcoop/formsync/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to FORMSYNC_DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (defaults to the embedded migrations)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("FORMSYNC_DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database or FORMSYNC_DATABASE_URL")
	}

	source := migrationsPath
	if source == "" {
		source = "embedded"
	}
	logger.Info("connecting to database", "migrations", source)

	m, err := database.NewMigrate(databaseURL, migrationsPath)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return
		}
		if err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
		logger.Info("migrations completed")

	case "down":
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback completed")

	case "steps":
		n, err := intArg("steps")
		if err != nil {
			logger.Fatal("invalid step count", "error", err)
		}
		if err := m.Steps(n); err != nil {
			logger.Fatal("failed to apply steps", "steps", n, "error", err)
		}
		logger.Info("steps applied", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		version, err := intArg("force")
		if err != nil {
			logger.Fatal("invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "version", version, "error", err)
		}
		logger.Info("forced version", "version", version)

	default:
		logger.Fatal("unknown command, use up, down, steps, version or force", "command", command)
	}
}

// intArg reads the first positional argument as an integer
func intArg(command string) (int, error) {
	if flag.NArg() < 1 {
		return 0, fmt.Errorf("%s requires a number: -command %s <n>", command, command)
	}

	var n int
	if _, err := fmt.Sscanf(flag.Arg(0), "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}
