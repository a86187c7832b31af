package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/metrics"
	"github.com/alertsift/alertsift/internal/server"
	"github.com/alertsift/alertsift/internal/task"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validating config: %v", err)
	}

	logger, cleanup, err := common.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := task.Open(cfg.TaskDB, logger)
	if err != nil {
		logger.Error("task store open failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Interrupted runs cannot resume; drop everything not completed.
	if _, err := store.CleanupIncomplete(ctx); err != nil {
		logger.Warn("task cleanup failed", "error", err)
	}

	runner := task.NewRunner(cfg, store, task.NewProgressRegistry(), logger, m)
	srv := server.New(cfg, *configPath, store, runner, logger, m, registry)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
