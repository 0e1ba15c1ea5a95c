package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kopfenjager/Vision-crm-agent/internal/app"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
)

// extractfields runs only the field extraction step on raw text, optionally
// several times to compare model output across calls.
func main() {
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: extractfields <text-file|-> [times]")
		os.Exit(2)
	}
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	raw, err := readInput(os.Args[1])
	if err != nil {
		logger.Error("read input", "arg", os.Args[1], "error", err)
		os.Exit(1)
	}

	policy, err := llm.ParsePolicy(cfg.LLM.MalformedPolicy)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	completer, err := app.NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("build completer", "error", err)
		os.Exit(1)
	}
	if c, ok := completer.(io.Closer); ok {
		defer c.Close()
	}

	fx := llm.NewFieldExtractor(completer, llm.Config{
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Policy:      policy,
	}, logger)

	enc := json.NewEncoder(os.Stdout)
	failures := 0
	for i := 1; i <= times; i++ {
		start := time.Now()
		res, err := fx.Extract(ctx, string(raw))
		if err != nil {
			failures++
			logger.Error("extract failed", "iteration", i, "error", err)
			continue
		}
		logger.Info("extract OK",
			"iteration", i,
			"attempts", res.Attempts,
			"partial", res.Partial,
			"warnings", res.Warnings,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		_ = enc.Encode(res.Record)
	}
	if failures > 0 {
		logger.Warn("some iterations failed", "failures", failures, "times", times)
		os.Exit(1)
	}
}

func readInput(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}
