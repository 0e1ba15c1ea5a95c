package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunFinished("ASSEMBLED", "")
	m.RunFinished("FAILED", "text")
	m.RunFinished("FAILED", "text")
	m.FaceOutcome("found")
	m.FieldsExtracted(2, true)
	m.ObserveStage("text", time.Now())
	m.SetQueueDepth(3)
	m.QueueRejected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ASSEMBLED", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("FAILED", "text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FaceOutcomes.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PartialRecords))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueRejections))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunFinished("ASSEMBLED", "")
		m.ObserveStage("text", time.Now())
		m.FaceOutcome("none")
		m.FieldsExtracted(1, false)
		m.SetQueueDepth(1)
		m.QueueRejected()
	})
}
