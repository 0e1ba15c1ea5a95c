package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/face"
	"github.com/kopfenjager/Vision-crm-agent/internal/llm"
	"github.com/kopfenjager/Vision-crm-agent/internal/metrics"
	"github.com/kopfenjager/Vision-crm-agent/internal/storage"
)

const licenseText = "JOHN Q PUBLIC\n123 MAIN ST\nANYTOWN CA 90210\nDL A1234567\nDOB 01/01/1990\nEXP 01/01/2030"

const licenseJSON = `{"First Name":"JOHN","Middle Initial":"Q","Last Name":"PUBLIC","Street Address":"123 MAIN ST","City":"ANYTOWN","State":"CA","Zip Code":"90210","Driver's License Number":"A1234567","Date of Birth":"01/01/1990","Expiration Date":"01/01/2030"}`

type stubText struct {
	text string
	err  error

	mu   sync.Mutex
	seen []image.Rectangle
}

func (s *stubText) Extract(_ context.Context, img *image.Gray) (string, error) {
	s.mu.Lock()
	s.seen = append(s.seen, img.Bounds())
	s.mu.Unlock()
	return s.text, s.err
}

type stubDetector struct {
	boxes []face.Box
	err   error
}

func (d stubDetector) Name() string { return "stub" }

func (d stubDetector) Detect(context.Context, image.Image) ([]face.Box, error) {
	return d.boxes, d.err
}

type stubCompleter struct {
	out string
	err error
}

func (c stubCompleter) Name() string { return "stub" }

func (c stubCompleter) Complete(context.Context, string, float32) (string, error) {
	return c.out, c.err
}

type fixture struct {
	store *storage.MemoryStore
	text  *stubText
	proc  *Processor
	reg   *prometheus.Registry
	m     *metrics.Metrics
}

func newFixture(t *testing.T, text *stubText, det face.Detector, c llm.Completer) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fields := llm.NewFieldExtractor(c, llm.Config{
		Timeout:         time.Second,
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, nil)
	iso := face.NewIsolator(det, store, face.Config{}, nil)
	return &fixture{
		store: store,
		text:  text,
		proc:  NewProcessor(text, iso, fields, nil, WithMetrics(m)),
		reg:   reg,
		m:     m,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 3), uint8(y * 3), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var faceBox = []face.Box{{Top: 5, Right: 30, Bottom: 35, Left: 10}}

var reHexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestProcessHappyPath(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{boxes: faceBox}, stubCompleter{out: licenseJSON})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 60, 40))
	require.NoError(t, err)

	assert.Equal(t, []constants.RunState{
		constants.StateReceived,
		constants.StatePreprocessed,
		constants.StateTextExtracted,
		constants.StateFaceChecked,
		constants.StateFieldsExtracted,
		constants.StateAssembled,
	}, run.States)
	assert.Regexp(t, reHexID, run.CustomerID)
	require.NotNil(t, run.Envelope)
	assert.Equal(t, run.CustomerID, run.Envelope.CustomerID)
	assert.Equal(t, "mem://"+run.CustomerID+"_face.jpg", run.Envelope.FaceImage)
	assert.Equal(t, licenseText, run.RawText)

	// text branch sees the 2x preprocessed bitmap
	require.Len(t, fx.text.seen, 1)
	assert.Equal(t, image.Rect(0, 0, 120, 80), fx.text.seen[0])

	_, err = fx.store.Get(context.Background(), constants.FaceKey(run.CustomerID))
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.m.Runs.WithLabelValues("ASSEMBLED", "")))
}

func TestEnvelopeJSONShape(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{}, stubCompleter{out: `{"First Name":"JOHN"}`})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 20, 20))
	require.NoError(t, err)

	out, err := json.Marshal(run.Envelope)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Len(t, m, 3)
	assert.Contains(t, m, "Customer ID")
	assert.Contains(t, m, "Face Image")
	assert.Contains(t, m, "Extracted Data")

	var data map[string]*string
	require.NoError(t, json.Unmarshal(m["Extracted Data"], &data))
	assert.Len(t, data, constants.NumFields)
	for _, f := range constants.AllFields() {
		assert.Contains(t, data, string(f))
	}
	assert.True(t, run.Partial)
}

func TestNoFaceStillExtracts(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{}, stubCompleter{out: licenseJSON})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, constants.FaceNotFound, run.Envelope.FaceImage)
	v, ok := run.Envelope.ExtractedData.Get(constants.LicenseNumber)
	assert.True(t, ok)
	assert.Equal(t, "A1234567", v)
	assert.Empty(t, fx.store.Keys())
}

func TestDetectorFailureDegradesToNotFound(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{err: errors.New("model missing")}, stubCompleter{out: licenseJSON})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, constants.StateAssembled, run.State())
	assert.Equal(t, constants.FaceNotFound, run.Envelope.FaceImage)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.m.FaceOutcomes.WithLabelValues("degraded")))
}

func TestRecognitionFailureFailsRunAndDiscardsCrop(t *testing.T) {
	text := &stubText{err: common.RecognitionError("stub", errors.New("engine crashed"))}
	fx := newFixture(t, text, stubDetector{boxes: faceBox}, stubCompleter{out: licenseJSON})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 60, 40))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRecognition)
	assert.Equal(t, constants.StateFailed, run.State())
	assert.Equal(t, constants.StageText, run.Stage)
	assert.Nil(t, run.Envelope)
	assert.Empty(t, fx.store.Keys())
}

func TestModelUnavailableFailsRunAndDiscardsCrop(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{boxes: faceBox}, stubCompleter{err: errors.New("connection refused")})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 60, 40))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.Equal(t, constants.StageFields, common.StageOf(err))
	assert.Equal(t, []constants.RunState{
		constants.StateReceived,
		constants.StatePreprocessed,
		constants.StateTextExtracted,
		constants.StateFaceChecked,
		constants.StateFailed,
	}, run.States)
	assert.Empty(t, fx.store.Keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.m.Runs.WithLabelValues("FAILED", "fields")))
}

func TestDecodeFailure(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{}, stubCompleter{out: licenseJSON})

	run, err := fx.proc.Process(context.Background(), []byte("not an image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Equal(t, []constants.RunState{constants.StateReceived, constants.StateFailed}, run.States)
	assert.Equal(t, constants.StageDecode, run.Stage)
	assert.Empty(t, fx.text.seen)
}

func TestEmptyTextYieldsAllNullRecord(t *testing.T) {
	allNull := `{"First Name":null,"Middle Initial":null,"Last Name":null,"Street Address":null,"City":null,"State":null,"Zip Code":null,"Driver's License Number":null,"Date of Birth":null,"Expiration Date":null}`
	fx := newFixture(t, &stubText{text: ""}, stubDetector{}, stubCompleter{out: allNull})

	run, err := fx.proc.Process(context.Background(), pngBytes(t, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, 0, run.Envelope.ExtractedData.Present())
	assert.False(t, run.Partial)
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	fx := newFixture(t, &stubText{text: licenseText}, stubDetector{boxes: faceBox}, stubCompleter{out: licenseJSON})
	data := pngBytes(t, 60, 40)

	const n = 8
	runs := make([]*Run, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := fx.proc.Process(context.Background(), data)
			assert.NoError(t, err)
			runs[i] = run
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	refs := map[string]bool{}
	for _, r := range runs {
		require.NotNil(t, r)
		require.NotNil(t, r.Envelope)
		ids[r.CustomerID] = true
		refs[r.Envelope.FaceImage] = true
	}
	assert.Len(t, ids, n)
	assert.Len(t, refs, n)
	assert.Len(t, fx.store.Keys(), n)
}

func TestNilFaceIsolator(t *testing.T) {
	fields := llm.NewFieldExtractor(stubCompleter{out: licenseJSON}, llm.Config{}, nil)
	p := NewProcessor(&stubText{text: licenseText}, nil, fields, nil, WithIDGenerator(func() string { return "fixed" }))

	run, err := p.ProcessImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.NoError(t, err)
	assert.Equal(t, "fixed", run.Envelope.CustomerID)
	assert.Equal(t, constants.FaceNotFound, run.Envelope.FaceImage)
}

func TestNewCustomerID(t *testing.T) {
	a, b := NewCustomerID(), NewCustomerID()
	assert.Regexp(t, reHexID, a)
	assert.NotEqual(t, a, b)
}
