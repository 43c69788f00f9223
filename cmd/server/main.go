package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/JonMunkholm/ferry/internal/config"
	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/flatfile"
	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/observability"
	"github.com/JonMunkholm/ferry/internal/store"
	"github.com/JonMunkholm/ferry/internal/web"
)

func main() {
	// Overload lets a local .env win over inherited variables.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"transfer_workers", cfg.Transfer.MaxConcurrent,
		"stream_exports", cfg.Transfer.StreamExports,
		"files_root", cfg.Files.Root,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	if err := os.MkdirAll(cfg.Files.Root, 0o755); err != nil {
		slog.Error("failed to create files root", "root", cfg.Files.Root, "error", err)
		os.Exit(1)
	}
	fs := osfs.New(cfg.Files.Root, osfs.WithBoundOS())
	reader := flatfile.NewReader(fs)
	writer := flatfile.NewWriter(fs)

	connector := store.NewConnector(cfg.Store)
	defer connector.Close()

	// Fail fast when the default store is configured but unreachable.
	if cfg.Store.URL != "" || cfg.Store.Driver == store.DriverDuckDB {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.ConnectTimeout)
		client, err := connector.OpenCatalog(ctx, core.ConnectionConfig{})
		if err == nil {
			err = client.Ping(ctx)
			client.Close()
		}
		cancel()
		if err != nil {
			slog.Error("failed to reach default store", "driver", cfg.Store.Driver, "error", err)
			os.Exit(1)
		}
		slog.Info("connected to default store", "driver", cfg.Store.Driver)
	}

	tracer := observability.NewTracer(otel.GetTracerProvider(), cfg.Telemetry.ServiceName)
	metrics := observability.NewMetrics(otel.GetMeterProvider())

	tc := cfg.Transfer
	service := core.NewService(core.ServiceConfig{
		ImportBatchSize:  tc.ImportBatchSize,
		ExportBatchSize:  tc.ExportBatchSize,
		StreamExports:    tc.StreamExports,
		Timeout:          tc.Timeout,
		DefaultDelimiter: tc.Delimiter,
		PreviewRows:      tc.PreviewRows,
	}, core.Dependencies{
		Connector: connector,
		Files:     reader,
		Inspector: reader,
		Writer:    writer,
		Registry:  core.NewRegistry(tc.Retention, core.SystemClock),
		Pool:      core.NewWorkerPool(tc.MaxConcurrent, tc.QueueSize, tc.MaxWaitTime),
	}, core.WithTracer(tracer), core.WithMetrics(metrics))

	server := web.NewServer(service, writer, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.PoolStatus(); status.Active+status.Queued > 0 {
			slog.Info("waiting for transfers to complete", "active", status.Active, "queued", status.Queued)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("transfers did not complete in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
