package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/executor"
	"github.com/ablair264/SplitLease-Backend/internal/provider"
	"github.com/ablair264/SplitLease-Backend/internal/report"
	"github.com/ablair264/SplitLease-Backend/internal/session"
	"github.com/ablair264/SplitLease-Backend/internal/store"
	"github.com/ablair264/SplitLease-Backend/internal/telemetry"
	"github.com/ablair264/SplitLease-Backend/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	client, err := newVendorClient(cfg)
	if err != nil {
		logger.Error("init vendor client", "error", err)
		os.Exit(1)
	}
	sessions := session.NewManager(client, provider.Credentials{
		Username: cfg.VendorUsername,
		Password: cfg.VendorPassword,
	})
	exec := executor.New(client, cfg.QuoteCallInterval, cfg.QuoteRetryLimit)

	orch := worker.NewOrchestrator(cfg, st, client, sessions, exec, logger)
	if cfg.ExportEnabled {
		exp, err := report.New(ctx, cfg)
		if err != nil {
			logger.Error("init exporter", "error", err)
			os.Exit(1)
		}
		orch.RegisterExporter(exp)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func newVendorClient(cfg config.Config) (provider.Client, error) {
	switch cfg.VendorDriver {
	case "fake":
		return provider.NewFake(), nil
	case "rest", "":
		if cfg.VendorBaseURL == "" {
			return nil, errors.New("VENDOR_BASE_URL is required for the rest driver")
		}
		return provider.NewREST(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vendor driver %q", cfg.VendorDriver)
	}
}
