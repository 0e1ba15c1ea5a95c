// Package batch runs the pipeline over directories of license images and
// reports the results as a spreadsheet.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
	"github.com/kopfenjager/Vision-crm-agent/internal/pipeline"
)

// Submitter runs one image through the pipeline.
type Submitter interface {
	Submit(ctx context.Context, data []byte) (*pipeline.Run, error)
}

// FileResult is the outcome for one image file.
type FileResult struct {
	Path       string
	CustomerID string
	FaceImage  string
	Record     llm.Record
	Partial    bool
	Stage      constants.Stage // set on failure
	Err        string
	Elapsed    time.Duration
}

// OK reports whether the file produced an envelope.
func (r FileResult) OK() bool { return r.Err == "" }

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Partial   uint32
	Failed    uint32
}

type Options struct {
	SkipHidden  bool
	Concurrency int // files in flight, default 4
}

// Runner feeds image files to a Submitter.
type Runner struct {
	sub    Submitter
	logger *slog.Logger
}

func NewRunner(sub Submitter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sub: sub, logger: logger}
}

// ProcessFile reads path and runs it. Failures are recorded in the result.
func (r *Runner) ProcessFile(ctx context.Context, path string) (res FileResult) {
	start := time.Now()
	res.Path = path
	defer func() { res.Elapsed = time.Since(start) }()

	data, err := os.ReadFile(path)
	if err != nil {
		res.Stage = constants.StageInput
		res.Err = err.Error()
		r.logger.Warn("batch.read_failed", "path", path, "error", err)
		return res
	}

	run, err := r.sub.Submit(ctx, data)
	if err != nil {
		res.Err = err.Error()
		if run != nil {
			res.Stage = run.Stage
		}
		r.logger.Warn("batch.file_failed", "path", path, "stage", res.Stage, "error", err)
		return res
	}
	if run == nil || run.Envelope == nil {
		res.Stage = constants.StageAssemble
		res.Err = "run finished without envelope"
		return res
	}

	res.CustomerID = run.Envelope.CustomerID
	res.FaceImage = run.Envelope.FaceImage
	res.Record = run.Envelope.ExtractedData
	res.Partial = run.Partial
	r.logger.Info("batch.file_ok", "path", path, "customer_id", res.CustomerID, "partial", res.Partial)
	return res
}

// ProcessDirectory walks root and runs every image with an allowed extension.
// Results are sorted by path. A walk error is returned alongside the
// results gathered so far.
func (r *Runner) ProcessDirectory(ctx context.Context, root string, opts Options) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root directory is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var (
		mu      sync.Mutex
		results []FileResult
		stats   DirStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		stats.Scanned++
		if err != nil {
			mu.Lock()
			results = append(results, FileResult{Path: path, Stage: constants.StageInput, Err: err.Error()})
			stats.Failed++
			mu.Unlock()
			return nil
		}
		if opts.SkipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		stats.Matched++

		g.Go(func() error {
			res := r.ProcessFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			switch {
			case !res.OK():
				stats.Failed++
			case res.Partial:
				stats.Succeeded++
				stats.Partial++
			default:
				stats.Succeeded++
			}
			return nil
		})
		return nil
	})
	_ = g.Wait()

	slices.SortFunc(results, func(a, b FileResult) int { return strings.Compare(a.Path, b.Path) })

	r.logger.Info("batch.directory_done",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"partial", stats.Partial,
		"failed", stats.Failed,
	)
	if walkErr != nil {
		return results, stats, fmt.Errorf("walk: %w", walkErr)
	}
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
