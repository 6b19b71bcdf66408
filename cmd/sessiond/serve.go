package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/httpapi"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/internal/orchestrator"
	"github.com/sessionlens/sessiond/internal/relationship"
	"github.com/sessionlens/sessiond/internal/semantic"
	"github.com/sessionlens/sessiond/internal/sessionstate"
	"github.com/sessionlens/sessiond/internal/store"
	"github.com/sessionlens/sessiond/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP drain on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sessiond HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sem := semantic.New(cfg.Engine, log)
	state := sessionstate.New(cfg.Engine, log)
	mapper := relationship.New(cfg.Engine, log)
	orch := orchestrator.New(cfg.Engine, sem, state, mapper, log)

	srv, err := httpapi.NewServer(cfg.Server, st, sem, state, mapper, orch, log)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info(ctx, "signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error(ctx, "http server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "telemetry shutdown incomplete", zap.Error(err))
	}
	return nil
}
