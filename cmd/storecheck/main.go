package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("open store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ref, err := storage.Probe(ctx, store)
	if err != nil {
		logger.Error("store health: FAIL", "backend", store.Name(), "error", err)
		store.Close()
		os.Exit(1)
	}
	logger.Info("store health: OK", "backend", store.Name(), "probe_ref", ref)
}
