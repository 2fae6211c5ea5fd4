package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/yahallo-auth/yahallo/internal/audit"
	"github.com/yahallo-auth/yahallo/internal/bus"
	"github.com/yahallo-auth/yahallo/internal/config"
	"github.com/yahallo-auth/yahallo/internal/database"
	"github.com/yahallo-auth/yahallo/internal/face"
	"github.com/yahallo-auth/yahallo/internal/ratelimit"
	"github.com/yahallo-auth/yahallo/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to the YAML config file")
	sessionBus := flag.Bool("session-bus", false, "Serve on the session bus instead of the system bus")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting yahallo daemon",
		slog.String("environment", cfg.Env),
		slog.String("camera", cfg.CameraDevice),
		slog.String("detector", cfg.Detector),
		slog.String("encoder", cfg.Encoder),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Models are loaded before anything touches the camera or the bus
	backends, err := face.NewBackends(cfg)
	if err != nil {
		return fmt.Errorf("failed to select backends: %w", err)
	}

	recognizer, err := service.NewRecognizer(ctx, service.RecognizerConfig{
		FacesFile:      cfg.FacesFile,
		MatchThreshold: cfg.MatchThreshold,
		Metric:         cfg.Metric(),
		WorkWidth:      cfg.WorkWidth,
	}, backends.Detector, backends.Encoder, logger)
	if err != nil {
		return fmt.Errorf("failed to start recognizer: %w", err)
	}
	defer func() { _ = recognizer.Close() }()

	auditLogger, closeAudit, err := setupAudit(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	auth := service.NewAuthService(recognizer, service.OpenCamera(logger), service.SessionConfig{
		Device:        cfg.CameraDevice,
		Timeout:       cfg.SessionTimeout,
		DarkThreshold: cfg.DarkThreshold,
	}, logger,
		service.WithAuditLogger(auditLogger),
		service.WithLimiter(ratelimit.NewLimiter(cfg.MaxFailedAttempts, cfg.LockoutWindow)),
	)
	defer auth.Wait()

	connect := dbus.ConnectSystemBus
	if *sessionBus {
		connect = dbus.ConnectSessionBus
	}
	conn, err := connect()
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := bus.Serve(conn, bus.NewService(ctx, auth, logger)); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-hup:
			if err := auth.ReloadFaces(ctx); err != nil {
				logger.Error("reload faces failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("faces reloaded", slog.String("path", cfg.FacesFile))
		}
	}
}

// setupAudit builds the audit sinks. Postgres is added when a database URL
// is configured; its schema is migrated first.
func setupAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Logger, func(), error) {
	sinks := audit.MultiLogger{audit.NewSlogLogger(logger)}
	if cfg.AuditDatabaseURL == "" {
		return sinks, func() {}, nil
	}

	if err := database.MigrateUp(ctx, cfg.AuditDatabaseURL, "yahallo", logger); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.AuditDatabaseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	logger.Info("audit database enabled")
	return append(sinks, audit.NewPostgresLogger(pool)), pool.Close, nil
}
