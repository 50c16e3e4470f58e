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
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/auth"
	"github.com/hiroki-koketsu/task-assignment/internal/handler"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
	"github.com/hiroki-koketsu/task-assignment/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	startupLogger := a.logger.Logger
	startupLogger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
	)

	// Shutdown runs on a context that outlives the signal.
	shutdownBase := context.WithoutCancel(ctx)

	logger := startupLogger
	if cfg.TelemetryEnabled {
		settings := telemetry.Settings{
			ServiceName:  cfg.ServiceName,
			OTLPEndpoint: cfg.OTLPEndpoint,
			Environment:  cfg.Environment,
		}

		tp, err := telemetry.InitTracerProvider(ctx, settings)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer provider: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(shutdownBase); err != nil {
				startupLogger.Error("failed to shutdown tracer provider", slog.Any("error", err))
			}
		}()

		mp, err := telemetry.InitMeterProvider(ctx, settings)
		if err != nil {
			return fmt.Errorf("failed to initialize meter provider: %w", err)
		}
		defer func() {
			if err := mp.Shutdown(shutdownBase); err != nil {
				startupLogger.Error("failed to shutdown meter provider", slog.Any("error", err))
			}
		}()

		// Initialized after the other providers for log-trace correlation.
		lp, otelLogger, err := telemetry.InitLoggerProvider(ctx, settings)
		if err != nil {
			return fmt.Errorf("failed to initialize logger provider: %w", err)
		}
		defer func() {
			if err := lp.Shutdown(shutdownBase); err != nil {
				startupLogger.Error("failed to shutdown logger provider", slog.Any("error", err))
			}
		}()
		logger = otelLogger
	} else {
		startupLogger.Warn("telemetry disabled, logging locally")
	}

	store, err := a.openStore(ctx, startupLogger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(shutdownBase); err != nil {
			startupLogger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter(cfg.ServiceName), store.Tasks.Count)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	router := handler.NewRouter(handler.Services{
		Tasks:    service.NewTaskService(store.Tasks, store.Users, logger, metrics),
		Members:  service.NewMemberService(store.Users, logger),
		Accounts: service.NewAccountService(store.Users, tokens, logger),
	}, handler.RouterOptions{
		Tokens:    tokens,
		Metrics:   metrics,
		Logger:    logger,
		AccessLog: true,
	})

	otelHandler := otelhttp.NewHandler(router, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(shutdownBase, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}
