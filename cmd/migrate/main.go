package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yahallo-auth/yahallo/internal/config"
	"github.com/yahallo-auth/yahallo/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, status, force")
	version := flag.Int("version", -2, "Version to record (for force action, -1 for none)")
	discard := flag.Bool("discard-history", false, "Allow down to drop recorded auth attempts")
	configPath := flag.String("config", "", "Path to the YAML config file")
	dbName := flag.String("db-name", "yahallo", "Database name recorded by the migrator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Env, cfg.LogLevel)

	if cfg.AuditDatabaseURL == "" {
		return errors.New("audit database url is not configured (YAHALLO_AUDIT_DATABASE_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// golang-migrate needs a database/sql handle
	db, err := database.OpenSQL(ctx, cfg.AuditDatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, *dbName, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			if errors.Is(err, database.ErrDirty) {
				return fmt.Errorf("%w; repair the schema, then run -action force -version N", err)
			}
			return fmt.Errorf("migration up failed: %w", err)
		}

	case "down":
		if err := migrator.Down(ctx, *discard); err != nil {
			if errors.Is(err, database.ErrAuditHistory) {
				return fmt.Errorf("%w; rerun with -discard-history to drop it", err)
			}
			return fmt.Errorf("migration down failed: %w", err)
		}

	case "status":
		st, err := migrator.Status()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		fmt.Printf("current: %d\nlatest:  %d\n", st.Current, st.Latest)
		switch {
		case st.Dirty:
			fmt.Println("state:   dirty (migration incomplete)")
		case st.Pending():
			fmt.Println("state:   pending")
		default:
			fmt.Println("state:   up to date")
		}

	case "force":
		if *version == -2 {
			return errors.New("version flag is required for force action")
		}
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, status, force)", *action)
	}

	return nil
}
