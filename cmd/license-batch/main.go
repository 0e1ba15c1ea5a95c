package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kopfenjager/Vision-crm-agent/internal/app"
	"github.com/kopfenjager/Vision-crm-agent/internal/async"
	"github.com/kopfenjager/Vision-crm-agent/internal/batch"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of license images (required)")
		out        = flag.String("out", "", "output XLSX path (defaults to licenses.xlsx in the parent of -dir)")
		watch      = flag.Bool("watch", false, "keep running and process images added to -dir")
		skipHidden = flag.Bool("skip-hidden", true, "skip dot files and directories")
		workers    = flag.Int("workers", 0, "pipeline workers (defaults to WORKERS)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "licenses.xlsx")
	}

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if *workers > 0 {
		cfg.Server.Workers = *workers
	}
	logger := common.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	pool := async.NewPool(a.Processor, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithJobTimeout(cfg.Server.RequestTimeout),
	)
	defer pool.Shutdown(context.Background())

	runner := batch.NewRunner(pool, logger)

	var results []batch.FileResult
	if *watch {
		results = watchDir(ctx, runner, *dir, logger)
	} else {
		res, stats, err := runner.ProcessDirectory(ctx, *dir, batch.Options{
			SkipHidden:  *skipHidden,
			Concurrency: cfg.Server.Workers,
		})
		if err != nil {
			logger.Error("batch processing failed", "error", err)
		}
		logger.Info("batch complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", stats.Succeeded,
			"partial", stats.Partial,
			"failed", stats.Failed,
		)
		results = res
	}

	if err := writeReport(*out, results); err != nil {
		logger.Error("failed to write report", "out", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("report written", "out", *out, "rows", len(results))
}

func watchDir(ctx context.Context, runner *batch.Runner, dir string, logger *slog.Logger) []batch.FileResult {
	events, errs, err := batch.Watch(ctx, batch.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    time.Second,
	}, logger)
	if err != nil {
		logger.Error("failed to start watcher", "dir", dir, "error", err)
		return nil
	}
	logger.Info("watching for license images", "dir", dir)

	var results []batch.FileResult
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return results
			}
			results = append(results, runner.ProcessFile(ctx, path))
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher error", "error", err)
		case <-ctx.Done():
			return results
		}
	}
}

func writeReport(path string, results []batch.FileResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := batch.WriteXLSX(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
