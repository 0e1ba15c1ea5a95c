package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

type stubRecognizer struct {
	segs []string
	err  error
}

func (s stubRecognizer) Name() string { return "stub" }

func (s stubRecognizer) Recognize(context.Context, *image.Gray) ([]string, error) {
	return s.segs, s.err
}

type stubRunner struct {
	stdout, stderr []byte
	err            error

	name  string
	args  []string
	stdin []byte
}

func (r *stubRunner) Run(_ context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	r.name, r.args, r.stdin = name, args, stdin
	return r.stdout, r.stderr, r.err
}

func blank() *image.Gray { return image.NewGray(image.Rect(0, 0, 4, 4)) }

func TestExtractJoinsSegmentsInOrder(t *testing.T) {
	e := NewTextExtractor(stubRecognizer{segs: []string{"JOHN Q PUBLIC", "  123 MAIN ST ", "", "ANYTOWN CA 90210"}}, nil)
	assert.Equal(t, "stub", e.Engine())
	text, err := e.Extract(context.Background(), blank())
	require.NoError(t, err)
	assert.Equal(t, "JOHN Q PUBLIC\n123 MAIN ST\nANYTOWN CA 90210", text)
}

func TestExtractNoTextIsNotAnError(t *testing.T) {
	e := NewTextExtractor(stubRecognizer{}, nil)
	text, err := e.Extract(context.Background(), blank())
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestExtractEngineFailure(t *testing.T) {
	boom := errors.New("engine crashed")
	e := NewTextExtractor(stubRecognizer{err: boom}, nil)
	_, err := e.Extract(context.Background(), blank())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRecognition)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "text", string(common.StageOf(err)))
}

func TestCLIRecognizerArgsAndOutput(t *testing.T) {
	r := &stubRunner{stdout: []byte("DL A1234567\r\nDOB 01/01/1990\n\f")}
	rec := NewCLIRecognizer(CLIConfig{TessdataDir: "/td", PSM: 6}, nil, WithRunner(r))

	segs, err := rec.Recognize(context.Background(), blank())
	require.NoError(t, err)
	assert.Equal(t, "tesseract", r.name)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng", "--psm", "6", "--tessdata-dir", "/td"}, r.args)
	assert.NotEmpty(t, r.stdin)
	assert.Equal(t, "DL A1234567\nDOB 01/01/1990", JoinSegments(segs))
}

func TestCLIRecognizerFailureCarriesStderr(t *testing.T) {
	r := &stubRunner{stderr: []byte("Error opening data file"), err: errors.New("exit status 1")}
	rec := NewCLIRecognizer(CLIConfig{}, nil, WithRunner(r))

	_, err := rec.Recognize(context.Background(), blank())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error opening data file")
}

func TestJoinSegmentsNormalizes(t *testing.T) {
	segs := []string{"  DRIVER\tLICENSE  ", "-----", "", "LN  DOE", "____", "FN JANE"}
	assert.Equal(t, "DRIVER LICENSE\nLN DOE\nFN JANE", JoinSegments(segs))
}

func TestNormalizeSegmentKeepsPunctuation(t *testing.T) {
	assert.Equal(t, "DOB 01-02-1990", normalizeSegment("DOB   01-02-1990"))
	assert.Equal(t, "--", normalizeSegment(" -- "))
	assert.Equal(t, "", normalizeSegment("....."))
}
