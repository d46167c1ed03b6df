package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CapIot.readings/internal/cache"
	"CapIot.readings/internal/config"
	"CapIot.readings/internal/controller"
	"CapIot.readings/internal/logger"
	"CapIot.readings/internal/middleware"
	"CapIot.readings/internal/observability"
	"CapIot.readings/internal/repository"
	"CapIot.readings/internal/routes"
	"CapIot.readings/internal/service"
	"CapIot.readings/internal/validation"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "readings-api")
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg, zlog)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	var resultCache cache.Cache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.CacheTTL)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		resultCache = redisCache
		zlog.Info("aggregate cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.CacheTTL))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize service, controller and routes
	svc := service.NewReadingService(store, resultCache, metrics, zlog)
	c := controller.NewReadingController(svc, validation.New(time.Now), zlog)
	router := routes.NewRouter(c, metrics, zlog)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}).Handler(middleware.RequestID(router))
	handler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(zlog)),
		handlers.PrintRecoveryStack(true),
	)(corsHandler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
