package tesseract

import (
	"context"
	"image"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopfenjager/Vision-crm-agent/internal/ocr"
)

func TestBlankPageHasNoText(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed")
	}
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	e := New(Config{}, nil)
	var _ ocr.Recognizer = e
	segs, err := e.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "", ocr.JoinSegments(segs))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}, nil).Recognize(ctx, image.NewGray(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}
