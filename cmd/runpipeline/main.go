package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/app"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

func main() {
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	// Logs go to stderr so stdout carries only the envelope.
	logger := common.NewLogger(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runpipeline <license-image>")
		os.Exit(2)
	}
	path := os.Args[1]
	if !constants.IsAllowedExt(filepath.Ext(path)) {
		logger.Error("unsupported file type", "path", path)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read image", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	start := time.Now()
	run, err := a.Processor.Process(ctx, data)
	if err != nil {
		logger.Error("pipeline failed",
			"stage", run.Stage, "states", run.States, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		a.Close()
		os.Exit(1)
	}

	logger.Info("pipeline OK",
		"customer_id", run.CustomerID,
		"face_found", run.FaceFound,
		"partial", run.Partial,
		"warnings", run.Warnings,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run.Envelope); err != nil {
		logger.Error("encode envelope", "error", err)
		os.Exit(1)
	}
}
