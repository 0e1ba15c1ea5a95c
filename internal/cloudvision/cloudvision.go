// Package cloudvision adapts Google Cloud Vision to the text recognizer and
// face detector capabilities.
package cloudvision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/kopfenjager/Vision-crm-agent/internal/face"
	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
	"github.com/kopfenjager/Vision-crm-agent/internal/ocr"
)

const (
	featureText = "TEXT_DETECTION"
	featureFace = "FACE_DETECTION"
)

type Config struct {
	APIKey   string
	Endpoint string // override for tests
	MaxFaces int64  // default 10
}

// Client issues one images:annotate call per operation.
type Client struct {
	svc    *vision.Service
	cfg    Config
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, errors.New("cloudvision: api key is required")
	}
	if cfg.MaxFaces <= 0 {
		cfg.MaxFaces = 10
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudvision: new service: %w", err)
	}
	return &Client{svc: svc, cfg: cfg, logger: logger}, nil
}

func (c *Client) Name() string { return "cloudvision" }

// Recognize implements ocr.Recognizer with TEXT_DETECTION. The first text
// annotation holds the whole page; it is split into lines.
func (c *Client) Recognize(ctx context.Context, img *image.Gray) ([]string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	res, err := c.annotate(ctx, data, &vision.Feature{Type: featureText})
	if err != nil {
		return nil, err
	}
	if len(res.TextAnnotations) == 0 {
		return nil, nil
	}
	return ocr.SplitLines(res.TextAnnotations[0].Description), nil
}

// Detect implements face.Detector with FACE_DETECTION, keeping the API's order.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]face.Box, error) {
	data, err := imaging.EncodeJPEG(img, 95)
	if err != nil {
		return nil, err
	}
	res, err := c.annotate(ctx, data, &vision.Feature{Type: featureFace, MaxResults: c.cfg.MaxFaces})
	if err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	boxes := make([]face.Box, 0, len(res.FaceAnnotations))
	for _, fa := range res.FaceAnnotations {
		poly := fa.FdBoundingPoly
		if poly == nil || len(poly.Vertices) == 0 {
			poly = fa.BoundingPoly
		}
		if r, ok := polyRect(poly); ok {
			boxes = append(boxes, face.BoxFromRect(r.Add(origin)))
		}
	}
	return boxes, nil
}

func (c *Client) annotate(ctx context.Context, data []byte, feat *vision.Feature) (*vision.AnnotateImageResponse, error) {
	start := time.Now()
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []*vision.Feature{feat},
		}},
	}
	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		c.logger.Error("cloudvision.annotate.failed", "feature", feat.Type, "error", err)
		return nil, fmt.Errorf("cloudvision %s: %w", feat.Type, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("cloudvision %s: empty response", feat.Type)
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, fmt.Errorf("cloudvision %s: %d %s", feat.Type, r.Error.Code, r.Error.Message)
	}
	c.logger.Debug("cloudvision.annotate.ok",
		"feature", feat.Type,
		"texts", len(r.TextAnnotations),
		"faces", len(r.FaceAnnotations),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return r, nil
}

func polyRect(p *vision.BoundingPoly) (image.Rectangle, bool) {
	if p == nil || len(p.Vertices) == 0 {
		return image.Rectangle{}, false
	}
	var r image.Rectangle
	for i, v := range p.Vertices {
		pt := image.Pt(int(v.X), int(v.Y))
		if i == 0 {
			r = image.Rectangle{Min: pt, Max: pt}
			continue
		}
		r.Min.X = min(r.Min.X, pt.X)
		r.Min.Y = min(r.Min.Y, pt.Y)
		r.Max.X = max(r.Max.X, pt.X)
		r.Max.Y = max(r.Max.Y, pt.Y)
	}
	return r, !r.Empty()
}
