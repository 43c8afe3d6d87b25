package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pendingtx"
	"github.com/jpalmerr/pendingtx/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the API, dashboard and tracker.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and dashboard server",
	Long: `Start the pendingtx server.

The server will:
  - Load configuration from the specified YAML file
  - Open the configured storage backend and load the pending list
  - Serve the REST API and dashboard on the configured port
  - Poll the transaction status API, if a tracker is configured

Environment variables referenced by the config may be kept in a dotenv file
passed with --env-file. Variables already set in the environment win.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pendingtx serve -c config.yaml
  pendingtx serve -c config.yaml --env-file .env`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("env-file", "", "dotenv file loaded before the config")
	_ = serveCmd.MarkFlagRequired("config")
}

// loadConfig loads the optional dotenv file, then the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.SlogLevel())

	logger.Info("config loaded",
		"backend", cfg.Backend.Type,
		"key", cfg.StorageKey,
		"tracker", cfg.Tracker != nil,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := config.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := closeBackend(closeCtx); err != nil {
			logger.Warn("failed to close backend", "error", err)
		}
	}()

	svc, err := pendingtx.New(config.ServiceOptions(cfg, backend, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	logger.Info("starting server", "port", cfg.Port)

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
