package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/config"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/logger"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	serve := flag.Bool("serve", false, "keep serving /metrics after the scenarios until interrupted")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	collector := observability.NewCollector("sagademo")
	srv := &http.Server{
		Addr:         cfg.Metrics.Addr,
		Handler:      newRouter(collector),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		zl.Info("Starting metrics server", zap.String("address", cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Error("Metrics server failed", zap.Error(err))
		}
	}()

	env, err := newEnvironment(ctx, cfg, collector, zl)
	if err != nil {
		zl.Fatal("Failed to initialize environment", zap.Error(err))
	}
	defer env.Close()

	for _, outcome := range runScenarios(ctx, env) {
		zl.Info("Scenario finished",
			zap.String("scenario", outcome.Name),
			zap.String("result", outcome.Summary),
			zap.Error(outcome.Err),
		)
	}

	if *serve {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
	}

	zl.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Metrics server shutdown error", zap.Error(err))
	}
}

func newRouter(collector *observability.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", collector.Handler())
	return r
}
