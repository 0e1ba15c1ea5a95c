// Package app builds the extraction pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/internal/cloudvision"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/face"
	"github.com/kopfenjager/Vision-crm-agent/internal/face/dlib"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm/gemini"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm/openai"
	"github.com/kopfenjager/Vision-crm-agent/internal/metrics"
	"github.com/kopfenjager/Vision-crm-agent/internal/ocr"
	"github.com/kopfenjager/Vision-crm-agent/internal/ocr/tesseract"
	"github.com/kopfenjager/Vision-crm-agent/internal/pipeline"
	"github.com/kopfenjager/Vision-crm-agent/internal/storage"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Processor *pipeline.Processor
	Store     storage.Backend

	Recognizer ocr.Recognizer
	Detector   face.Detector
	Completer  llm.Completer

	closers []io.Closer
	logger  *slog.Logger
}

// Build selects the engines named in cfg and wires them into a Processor.
// m may be nil. On error every resource opened so far is released.
func Build(ctx context.Context, cfg *common.Config, m *metrics.Metrics, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var vision *cloudvision.Client
	visionClient := func() (*cloudvision.Client, error) {
		if vision != nil {
			return vision, nil
		}
		c, err := cloudvision.New(ctx, cloudvision.Config{APIKey: cfg.Google.APIKey}, logger)
		if err != nil {
			return nil, fmt.Errorf("cloud vision client: %w", err)
		}
		vision = c
		return c, nil
	}

	if a.Recognizer, err = newRecognizer(cfg.OCR, visionClient, logger); err != nil {
		return nil, err
	}
	if a.Detector, err = a.newDetector(cfg.Face, visionClient); err != nil {
		return nil, err
	}
	if a.Completer, err = NewCompleter(ctx, cfg.LLM, logger); err != nil {
		return nil, err
	}
	if c, ok := a.Completer.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	policy, err := llm.ParsePolicy(cfg.LLM.MalformedPolicy)
	if err != nil {
		return nil, err
	}

	if a.Store, err = storage.Open(ctx, cfg.Storage, logger); err != nil {
		return nil, fmt.Errorf("open face store: %w", err)
	}
	a.closers = append(a.closers, a.Store)

	text := ocr.NewTextExtractor(a.Recognizer, logger)
	isolator := face.NewIsolator(a.Detector, a.Store, face.Config{}, logger)
	fields := llm.NewFieldExtractor(a.Completer, llm.Config{
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Policy:      policy,
	}, logger)

	a.Processor = pipeline.NewProcessor(text, isolator, fields, logger, pipeline.WithMetrics(m))

	logger.Info("pipeline ready",
		"ocr", text.Engine(),
		"face", isolator.Engine(),
		"llm", fields.Provider(),
		"storage", a.Store.Name(),
		"malformed_policy", string(policy),
	)
	return a, nil
}

func newRecognizer(cfg common.OCRConfig, vision func() (*cloudvision.Client, error), logger *slog.Logger) (ocr.Recognizer, error) {
	switch cfg.Engine {
	case "", "tesseract":
		return tesseract.New(tesseract.Config{
			Languages:   splitLangs(cfg.TesseractLang),
			TessdataDir: cfg.TessdataDir,
		}, logger), nil
	case "tesseract-cli":
		return ocr.NewCLIRecognizer(ocr.CLIConfig{
			Tesseract:     cfg.Tesseract,
			TesseractLang: cfg.TesseractLang,
			TessdataDir:   cfg.TessdataDir,
		}, logger), nil
	case "cloudvision":
		return vision()
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}

func (a *App) newDetector(cfg common.FaceConfig, vision func() (*cloudvision.Client, error)) (face.Detector, error) {
	switch cfg.Engine {
	case "", "dlib":
		d, err := dlib.New(dlib.Config{ModelsDir: cfg.ModelsDir, UseCNN: cfg.UseCNN}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("dlib detector: %w", err)
		}
		a.closers = append(a.closers, d)
		return d, nil
	case "cloudvision":
		return vision()
	case "none":
		return face.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown face engine %q", cfg.Engine)
	}
}

// NewCompleter returns the provider named in cfg. Gemini clients must be closed.
func NewCompleter(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger), nil
	case "gemini":
		c, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Close releases engines and the store in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close resources", "error", err)
		return err
	}
	return nil
}

func splitLangs(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
