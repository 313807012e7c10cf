package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pix_checkout_echo/internal/config"
	"pix_checkout_echo/internal/services"
	"pix_checkout_echo/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := services.NewLogger(services.LoggerConfig{
		Service:     "pix-checkout-worker",
		Environment: cfg.AppEnv,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := services.InitDB(cfg.DatabaseURL, cfg.GormLogLevel())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	gateway := services.NewGatewayService(services.GatewayConfig{
		BaseURL:  cfg.GatewayBaseURL,
		APIKey:   cfg.GatewayAPIKey,
		Timeout:  cfg.GatewayTimeout,
		Location: services.GatewayLocation(),
	})

	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, tasks.Dependencies{
		Gateway: gateway,
		Ledger:  services.NewCheckoutLedger(db),
	})
	runner := tasks.NewRunner(db, registry, services.NewCheckoutMetrics(nil), log)

	metricsServer := newMetricsServer()
	go func() {
		log.Info("metrics server starting", zap.String("port", cfg.WorkerMetricsPort))
		if err := metricsServer.Start(":" + cfg.WorkerMetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("worker started",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Strings("tasks", registry.Names()),
	)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	process(ctx, runner, log)
	for {
		select {
		case <-ticker.C:
			process(ctx, runner, log)
		case <-ctx.Done():
			return
		}
	}
}

func process(ctx context.Context, runner *tasks.Runner, log *zap.Logger) {
	ran, err := runner.ProcessDue(ctx)
	if err != nil && ctx.Err() == nil {
		log.Error("processing scheduled tasks failed", zap.Error(err))
		return
	}
	if ran > 0 {
		log.Info("scheduled tasks processed", zap.Int("count", ran))
	}
}
