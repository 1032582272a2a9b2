package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/BradenHooton/wazgo/internal/config"
	"github.com/BradenHooton/wazgo/internal/database"
)

func main() {
	command := flag.String("command", "up", "migration command (up/down/status/version/reset)")
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum time for the command")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		logger.Error("failed to create migrator", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, migrator, *command, logger); err != nil {
		logger.Error("migration command failed", slog.String("command", *command), slog.Any("error", err))
		cancel()
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, migrator *database.Migrator, command string, logger *slog.Logger) error {
	switch command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			return err
		}
		logger.Info("migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			return err
		}
		logger.Info("last migration rolled back")

	case "status":
		return migrator.Status(ctx)

	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		logger.Info("current migration version", slog.Int64("version", version))

	case "reset":
		if err := migrator.Reset(ctx); err != nil {
			return err
		}
		logger.Info("migrations reset")

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}
