package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the extraction pipeline.
// All methods are no-ops on a nil receiver so components can run without it.
type Metrics struct {
	Runs            *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	FaceOutcomes    *prometheus.CounterVec
	PartialRecords  prometheus.Counter
	LLMAttempts     prometheus.Histogram
	QueueDepth      prometheus.Gauge
	QueueRejections prometheus.Counter
}

// New registers every metric with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visiond_pipeline_runs_total",
			Help: "Pipeline runs by terminal state and failed stage",
		}, []string{"state", "stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visiond_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		FaceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visiond_face_outcomes_total",
			Help: "Face isolation outcomes: found, none, degraded",
		}, []string{"outcome"}),
		PartialRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "visiond_partial_records_total",
			Help: "Records repaired under the null-fill policy",
		}),
		LLMAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "visiond_llm_attempts",
			Help:    "Provider attempts per field extraction",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "visiond_queue_depth",
			Help: "Jobs waiting for a worker",
		}),
		QueueRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "visiond_queue_rejections_total",
			Help: "Jobs refused because the queue was full",
		}),
	}
}

// ObserveStage records the duration of one stage. Call with time.Now() at the start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RunFinished counts a terminal run. stage is empty for successful runs.
func (m *Metrics) RunFinished(state, stage string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state, stage).Inc()
}

func (m *Metrics) FaceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.FaceOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FieldsExtracted(attempts int, partial bool) {
	if m == nil {
		return
	}
	m.LLMAttempts.Observe(float64(attempts))
	if partial {
		m.PartialRecords.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) QueueRejected() {
	if m == nil {
		return
	}
	m.QueueRejections.Inc()
}
