package face

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
	"github.com/kopfenjager/Vision-crm-agent/internal/storage"
)

// Box is a face bounding box in source-image pixel coordinates.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Detector finds faces. Order of the returned boxes is the engine's own.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]Box, error)
}

// Result of one isolation. Ref is empty unless Found.
type Result struct {
	Found bool
	Ref   string
	Key   string
	Box   Box
	Faces int
}

type Config struct {
	JPEGQuality int // default 95
}

// Isolator crops the primary face and persists it.
type Isolator struct {
	det    Detector
	store  storage.FaceStore
	cfg    Config
	logger *slog.Logger
}

func NewIsolator(det Detector, store storage.FaceStore, cfg Config, logger *slog.Logger) *Isolator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 95
	}
	return &Isolator{det: det, store: store, cfg: cfg, logger: logger}
}

func (i *Isolator) Engine() string { return i.det.Name() }

// Isolate takes the first detected box as reported by the detector, crops it
// out of img and saves it under "<customerID>_face.jpg".
// No face is a normal outcome: Result.Found is false and err is nil.
func (i *Isolator) Isolate(ctx context.Context, img image.Image, customerID string) (Result, error) {
	start := time.Now()
	boxes, err := i.det.Detect(ctx, img)
	if err != nil {
		i.logger.Warn("face.detect.failed", "engine", i.det.Name(), "customer_id", customerID, "error", err)
		return Result{}, common.DetectionError(i.det.Name(), err)
	}
	if len(boxes) == 0 {
		i.logger.Info("face.detect.none", "engine", i.det.Name(), "customer_id", customerID)
		return Result{}, nil
	}

	box := boxes[0]
	rect := box.Rect().Canon().Intersect(img.Bounds())
	if rect.Empty() {
		i.logger.Warn("face.box.outside_image", "box", box, "bounds", img.Bounds().String())
		return Result{Faces: len(boxes)}, nil
	}
	crop := imaging.Crop(img, rect)

	data, err := imaging.EncodeJPEG(crop, i.cfg.JPEGQuality)
	if err != nil {
		return Result{}, common.InternalError(constants.StageFace, err)
	}
	key := constants.FaceKey(customerID)
	ref, err := i.store.Save(ctx, key, data)
	if err != nil {
		i.logger.Error("face.store.failed", "key", key, "error", err)
		return Result{}, common.StorageError(constants.StageFace, "save face crop", err)
	}

	i.logger.Info("face.isolate.ok",
		"engine", i.det.Name(),
		"customer_id", customerID,
		"faces", len(boxes),
		"ref", ref,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Found: true, Ref: ref, Key: key, Box: BoxFromRect(rect), Faces: len(boxes)}, nil
}

// Discard removes a stored crop.
func (i *Isolator) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := i.store.Delete(ctx, key); err != nil {
		return common.StorageError(constants.StageFace, "delete face crop", err)
	}
	return nil
}

// Nop never finds a face. Selected with FACE_ENGINE=none.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Detect(context.Context, image.Image) ([]Box, error) { return nil, nil }
