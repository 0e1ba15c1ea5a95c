package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/otiai10/gosseract/v2"

	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
)

type Config struct {
	Languages   []string // default eng
	TessdataDir string
}

// Engine recognizes text lines with libtesseract through gosseract.
// A fresh client is used per call; gosseract clients are not safe for concurrent use.
type Engine struct {
	cfg           Config
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &Engine{cfg: cfg, clientFactory: gosseract.NewClient, logger: logger}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns one segment per text line.
func (e *Engine) Recognize(ctx context.Context, img *image.Gray) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	c := e.clientFactory()
	defer c.Close()

	if e.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.cfg.Languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	segs := make([]string, 0, len(boxes))
	for _, b := range boxes {
		segs = append(segs, b.Word)
	}
	e.logger.Debug("tesseract.lines", "count", len(segs))
	return segs, nil
}
