package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yahallo-auth/yahallo/internal/config"
	"github.com/yahallo-auth/yahallo/internal/face"
	"github.com/yahallo-auth/yahallo/internal/service"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string

	// cfg and logger are set by the root command before any subcommand runs
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "yahallo",
	Short:        "Face authentication for Linux logins",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger = config.NewLogger(cfg.Env, cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file (default: $YAHALLO_CONFIG or /etc/yahallo/config.yaml)")
}

// newRecognizer loads the configured models and the face store.
func newRecognizer(ctx context.Context) (*service.Recognizer, error) {
	backends, err := face.NewBackends(cfg)
	if err != nil {
		return nil, err
	}

	return service.NewRecognizer(ctx, service.RecognizerConfig{
		FacesFile:      cfg.FacesFile,
		MatchThreshold: cfg.MatchThreshold,
		Metric:         cfg.Metric(),
		WorkWidth:      cfg.WorkWidth,
	}, backends.Detector, backends.Encoder, logger)
}
