package dlib

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	goface "github.com/Kagami/go-face"

	"github.com/kopfenjager/Vision-crm-agent/internal/face"
	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
)

var ErrClosed = errors.New("dlib detector is closed")

type Config struct {
	ModelsDir string // holds the dlib .dat models
	UseCNN    bool   // mmod CNN detector instead of HOG
}

// Detector wraps a go-face recognizer. The recognizer is loaded once and
// guarded by a mutex since dlib models are not safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	rec    *goface.Recognizer
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "./models"
	}
	rec, err := goface.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", cfg.ModelsDir, err)
	}
	logger.Info("dlib.models.loaded", "dir", cfg.ModelsDir, "cnn", cfg.UseCNN)
	return &Detector{rec: rec, cfg: cfg, logger: logger}, nil
}

func (d *Detector) Name() string {
	if d.cfg.UseCNN {
		return "dlib-cnn"
	}
	return "dlib"
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]face.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// go-face only accepts JPEG input
	data, err := imaging.EncodeJPEG(img, 95)
	if err != nil {
		return nil, err
	}
	origin := img.Bounds().Min

	d.mu.Lock()
	if d.rec == nil {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	var faces []goface.Face
	if d.cfg.UseCNN {
		faces, err = d.rec.RecognizeCNN(data)
	} else {
		faces, err = d.rec.Recognize(data)
	}
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib detect: %w", err)
	}

	boxes := make([]face.Box, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, face.BoxFromRect(f.Rectangle.Add(origin)))
	}
	return boxes, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
