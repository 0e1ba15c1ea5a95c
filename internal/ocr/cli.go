package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
)

type CLIConfig struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // page segmentation mode; 0 leaves tesseract's default
}

// CLIRecognizer shells out to the tesseract binary, piping the bitmap as PNG on stdin.
type CLIRecognizer struct {
	cfg    CLIConfig
	runner Runner
	logger *slog.Logger
}

type CLIOption func(*CLIRecognizer)

// WithRunner replaces the process runner.
func WithRunner(r Runner) CLIOption {
	return func(c *CLIRecognizer) {
		if r != nil {
			c.runner = r
		}
	}
}

func NewCLIRecognizer(cfg CLIConfig, logger *slog.Logger, opts ...CLIOption) *CLIRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	c := &CLIRecognizer{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLIRecognizer) Name() string { return "tesseract-cli" }

func (c *CLIRecognizer) Recognize(ctx context.Context, img *image.Gray) ([]string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	// tesseract stdin stdout -l <lang>
	args := []string{"stdin", "stdout", "-l", c.cfg.TesseractLang}
	if c.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(c.cfg.PSM))
	}
	if c.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", c.cfg.TessdataDir)
	}

	out, errb, err := c.runner.Run(ctx, data, c.cfg.Tesseract, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(msg, 512))
		}
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return SplitLines(string(out)), nil
}
