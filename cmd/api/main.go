package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/infra"
	"github.com/cargo-track/cargo_track/internal/logging"
	"github.com/cargo-track/cargo_track/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("app", cfg.AppName, "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

// run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests within cfg.ShutdownPeriod.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, err := infra.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	srv, err := server.New(cfg, backend, logger)
	if err != nil {
		return errors.Join(fmt.Errorf("build server: %w", err), backend.Close())
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address(), "store", cfg.StoreBackend)
		listenErr <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-listenErr:
		return errors.Join(err, backend.Close())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
