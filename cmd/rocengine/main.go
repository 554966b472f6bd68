package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rocengine/config"
	"rocengine/internal/logger"
	"rocengine/internal/rocengine"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROC_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.Init(cfg.ServiceName, logger.ParseLevel(cfg.LogLevel))
	log.Info("config loaded",
		slog.String("indicators", cfg.Indicators),
		slog.String("feed", cfg.Feed.Source),
		slog.String("http", cfg.HTTP.Addr),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	svc, err := rocengine.New(cfg, log, reg, reg)
	if err != nil {
		log.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}
