package ocr

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

// Recognizer is a text recognition engine. Segments come back in the
// engine's native reading order.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, img *image.Gray) ([]string, error)
}

// TextExtractor turns a preprocessed bitmap into RawText.
type TextExtractor struct {
	rec    Recognizer
	logger *slog.Logger
}

func NewTextExtractor(rec Recognizer, logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{rec: rec, logger: logger}
}

func (e *TextExtractor) Engine() string { return e.rec.Name() }

// Extract runs the recognizer and joins its segments with "\n".
// An image without text yields "" and no error.
func (e *TextExtractor) Extract(ctx context.Context, img *image.Gray) (string, error) {
	start := time.Now()
	segs, err := e.rec.Recognize(ctx, img)
	if err != nil {
		e.logger.Error("ocr.recognize.failed", "engine", e.rec.Name(), "error", err)
		return "", common.RecognitionError(e.rec.Name(), err)
	}
	text := JoinSegments(segs)
	e.logger.Debug("ocr.recognize.ok",
		"engine", e.rec.Name(),
		"segments", len(segs),
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// JoinSegments trims each segment, drops empty ones and joins the rest with "\n".
func JoinSegments(segs []string) string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s = normalizeSegment(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

// SplitLines breaks an engine's block output into line segments.
func SplitLines(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\f", "\n")
	return strings.Split(block, "\n")
}
