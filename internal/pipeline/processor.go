package pipeline

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/face"
	"github.com/kopfenjager/Vision-crm-agent/internal/imaging"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
	"github.com/kopfenjager/Vision-crm-agent/internal/metrics"
)

// TextExtractor recognizes RawText in a preprocessed image.
type TextExtractor interface {
	Extract(ctx context.Context, img *image.Gray) (string, error)
}

// FaceIsolator stores the primary face crop of an image.
type FaceIsolator interface {
	Isolate(ctx context.Context, img image.Image, customerID string) (face.Result, error)
	Discard(ctx context.Context, key string) error
}

// FieldExtractor turns RawText into a record.
type FieldExtractor interface {
	Extract(ctx context.Context, rawText string) (llm.Result, error)
}

// Processor runs the text and face branches concurrently, then field extraction.
type Processor struct {
	text    TextExtractor
	faces   FaceIsolator
	fields  FieldExtractor
	metrics *metrics.Metrics
	newID   func() string
	logger  *slog.Logger
}

type Option func(*Processor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithIDGenerator replaces the customer id source.
func WithIDGenerator(fn func() string) Option {
	return func(p *Processor) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewProcessor wires the stages. faces may be nil, in which case no face is ever found.
func NewProcessor(text TextExtractor, faces FaceIsolator, fields FieldExtractor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		text:   text,
		faces:  faces,
		fields: fields,
		newID:  NewCustomerID,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewCustomerID returns 32 lowercase hex chars from a random UUID.
func NewCustomerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Process decodes data once and runs the pipeline on it.
// The returned Run is never nil; err is the Run's failure, tagged with its stage.
func (p *Processor) Process(ctx context.Context, data []byte) (*Run, error) {
	start := time.Now()
	run := &Run{States: []constants.RunState{constants.StateReceived}}

	img, err := imaging.Decode(data)
	if err != nil {
		run.fail(constants.StageDecode, err)
		p.finish(run, start, nil)
		return run, err
	}
	return p.run(ctx, run, img, start)
}

// ProcessImage runs the pipeline on an already decoded image.
func (p *Processor) ProcessImage(ctx context.Context, img image.Image) (*Run, error) {
	run := &Run{States: []constants.RunState{constants.StateReceived}}
	return p.run(ctx, run, img, time.Now())
}

func (p *Processor) run(ctx context.Context, run *Run, img image.Image, start time.Time) (*Run, error) {
	run.CustomerID = p.newID()
	log := p.logger.With("customer_id", run.CustomerID)
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		log = log.With("req_id", rid)
	}
	ctx = common.WithCustomerID(ctx, run.CustomerID)
	log.Info("pipeline.run.start", "bounds", img.Bounds().String())

	var (
		preprocessed bool
		rawText      string
		faceRes      face.Result
		mu           sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := time.Now()
		bin := imaging.Preprocess(img)
		p.metrics.ObserveStage(string(constants.StagePreprocess), t0)
		mu.Lock()
		preprocessed = true
		mu.Unlock()

		t1 := time.Now()
		text, err := p.text.Extract(gctx, bin)
		p.metrics.ObserveStage(string(constants.StageText), t1)
		if err != nil {
			return common.WithStage(err, constants.StageText)
		}
		mu.Lock()
		rawText = text
		mu.Unlock()
		log.Info("pipeline.text.ok", "chars", len(text), "elapsed_ms", time.Since(t0).Milliseconds())
		return nil
	})
	g.Go(func() error {
		res := p.isolateFace(gctx, log, img, run.CustomerID)
		mu.Lock()
		faceRes = res
		mu.Unlock()
		return nil
	})
	textErr := g.Wait()

	if preprocessed {
		run.advance(constants.StatePreprocessed)
	}
	if textErr != nil {
		stage := common.StageOf(textErr)
		if stage == "" {
			stage = constants.StageText
		}
		run.fail(stage, textErr)
		p.discardFace(ctx, log, faceRes)
		p.finish(run, start, log)
		return run, textErr
	}
	run.RawText = rawText
	run.advance(constants.StateTextExtracted)

	run.FaceFound = faceRes.Found
	run.FaceRef = faceRes.Ref
	run.advance(constants.StateFaceChecked)

	t2 := time.Now()
	fres, err := p.fields.Extract(ctx, rawText)
	p.metrics.ObserveStage(string(constants.StageFields), t2)
	if err != nil {
		err = common.WithStage(err, constants.StageFields)
		run.fail(constants.StageFields, err)
		p.discardFace(ctx, log, faceRes)
		p.finish(run, start, log)
		return run, err
	}
	p.metrics.FieldsExtracted(fres.Attempts, fres.Partial)
	run.Partial = fres.Partial
	run.Warnings = fres.Warnings
	run.advance(constants.StateFieldsExtracted)

	faceImage := constants.FaceNotFound
	if faceRes.Found {
		faceImage = faceRes.Ref
	}
	run.Envelope = &Envelope{
		CustomerID:    run.CustomerID,
		FaceImage:     faceImage,
		ExtractedData: fres.Record,
	}
	run.advance(constants.StateAssembled)
	p.finish(run, start, log)
	return run, nil
}

// isolateFace never fails the run: detector and storage errors degrade to no face.
func (p *Processor) isolateFace(ctx context.Context, log *slog.Logger, img image.Image, customerID string) face.Result {
	if p.faces == nil {
		p.metrics.FaceOutcome("none")
		return face.Result{}
	}
	t0 := time.Now()
	res, err := p.faces.Isolate(ctx, img, customerID)
	p.metrics.ObserveStage(string(constants.StageFace), t0)
	if err != nil {
		log.Warn("pipeline.face.degraded", "error", err)
		p.metrics.FaceOutcome("degraded")
		return face.Result{}
	}
	if res.Found {
		p.metrics.FaceOutcome("found")
	} else {
		p.metrics.FaceOutcome("none")
	}
	return res
}

// discardFace removes a crop stored by a run that then failed.
func (p *Processor) discardFace(ctx context.Context, log *slog.Logger, res face.Result) {
	if p.faces == nil || !res.Found {
		return
	}
	// the request context may already be cancelled
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.faces.Discard(dctx, res.Key); err != nil {
		log.Error("pipeline.face.discard_failed", "key", res.Key, "error", err)
		return
	}
	log.Info("pipeline.face.discarded", "key", res.Key)
}

func (p *Processor) finish(run *Run, start time.Time, log *slog.Logger) {
	run.Elapsed = time.Since(start)
	if log == nil {
		log = p.logger
	}
	p.metrics.RunFinished(string(run.State()), string(run.Stage))
	if run.State() == constants.StateFailed {
		log.Error("pipeline.run.failed",
			"stage", run.Stage,
			"error", run.Err,
			"elapsed_ms", run.Elapsed.Milliseconds(),
		)
		return
	}
	log.Info("pipeline.run.ok",
		"face_found", run.FaceFound,
		"partial", run.Partial,
		"elapsed_ms", run.Elapsed.Milliseconds(),
	)
}
