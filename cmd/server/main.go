package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pix_checkout_echo/internal/checkout"
	"pix_checkout_echo/internal/config"
	"pix_checkout_echo/internal/handlers"
	appmw "pix_checkout_echo/internal/middleware"
	"pix_checkout_echo/internal/services"
	"pix_checkout_echo/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := services.NewLogger(services.LoggerConfig{
		Service:     "pix-checkout",
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
	if err := services.AutoMigrate(db); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}

	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, plan prices will not be cached", zap.Error(err))
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
		}
	}

	var verifier appmw.TokenVerifier
	firebaseVerifier, err := services.InitFirebase(context.Background(), cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Warn("firebase initialization failed, admin routes disabled", zap.Error(err))
	} else {
		verifier = firebaseVerifier
	}

	metrics := services.NewCheckoutMetrics(nil)
	gateway := services.NewGatewayService(services.GatewayConfig{
		BaseURL:  cfg.GatewayBaseURL,
		APIKey:   cfg.GatewayAPIKey,
		Timeout:  cfg.GatewayTimeout,
		Location: services.GatewayLocation(),
	})
	ledger := services.NewCheckoutLedger(db)
	prices := services.NewPriceService(db, cache, cfg.PriceCacheTTL)

	orchestrator := checkout.NewOrchestrator(checkout.Dependencies{
		Gateway:   gateway,
		Prices:    prices,
		Hasher:    services.NewBcryptHasher(cfg.HashCost),
		Accounts:  services.NewAccountService(db),
		Ledger:    ledger,
		Scheduler: tasks.NewScheduler(db, cfg.CancelRetryDelay, cfg.CancelMaxAttempts),
		Observer:  metrics,
		Retry:     checkout.DefaultRetryPolicy,
		Location:  services.GatewayLocation(),
		Logger:    log,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = appmw.JSONErrorHandler(log)

	e.Use(echomw.RequestID())
	e.Use(appmw.RequestLogger(log))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64K"))

	checkoutHandler := handlers.NewCheckoutHandler(orchestrator, orchestrator.QrCodes(), log)
	adminHandler := handlers.NewAdminHandler(ledger, prices)

	e.POST("/checkout", checkoutHandler.CreateCheckout)
	e.GET("/checkout/:paymentRef/qrcode", checkoutHandler.GetQrCode)

	admin := e.Group("/admin")
	admin.Use(appmw.RequireAdmin(verifier))
	admin.GET("/checkouts", adminHandler.ListCheckouts)
	admin.PATCH("/plans/:code", adminHandler.UpdatePlan)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
