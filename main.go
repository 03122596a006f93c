package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ragstore/internal/app"
	"ragstore/internal/config"
	"ragstore/internal/logger"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	application, err := app.New(ctx, cfg, deps.DB, deps.Weaviate, deps.NSQProducer)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	consumer, err := application.Consumer.Start(cfg.NSQLookupd, "ingest", cfg.IngestionConcurrency)
	if err != nil {
		slog.Error("failed to start processing consumer", "error", err)
		os.Exit(1)
	}
	defer func() {
		consumer.Stop()
		<-consumer.StopChan
	}()
	defer deps.NSQProducer.Stop()

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
