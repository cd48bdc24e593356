// Package metrics implements core.MetricsSink over prometheus/client_golang.
// The teacher's pkg/metrics was a hand-rolled Counter/Gauge/Histogram stand-
// in whose own comment says as much ("minimal implementation without
// prometheus dependency... to use real Prometheus, add:
// github.com/prometheus/client_golang") — since that dependency is already
// part of the stack, this rewrites the package against the real library
// instead of keeping the placeholder, narrowed to the three signals
// core.MetricsSink exposes (job counts by priority tier and by outcome,
// end-to-end job duration, queue depth) rather than the teacher's broader agent/workflow/system gauges,
// which have no equivalent in this domain.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plattargus/detalhar/pkg/core"
)

// Metrics implements core.MetricsSink.
type Metrics struct {
	jobsEnqueued  *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
}

// New registers and returns a Metrics instance on reg (pass
// prometheus.NewRegistry() for test isolation, or prometheus.DefaultRegisterer
// in production).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detalhar_jobs_enqueued_total",
			Help: "Total jobs admitted, by priority.",
		}, []string{"priority"}),
		jobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detalhar_jobs_completed_total",
			Help: "Total jobs reaching a terminal state, by status and final stage.",
		}, []string{"status", "stage"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detalhar_job_duration_seconds",
			Help:    "End-to-end job duration from creation to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "detalhar_queue_depth",
			Help: "Current dispatch queue depth, by priority.",
		}, []string{"priority"}),
	}
}

// JobEnqueued implements core.MetricsSink.
func (m *Metrics) JobEnqueued(priority int) {
	m.jobsEnqueued.WithLabelValues(priorityLabel(priority)).Inc()
}

// JobCompleted implements core.MetricsSink.
func (m *Metrics) JobCompleted(status core.Status, stage core.Stage, duration time.Duration) {
	m.jobsCompleted.WithLabelValues(string(status), string(stage)).Inc()
	m.jobDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// QueueDepth implements core.MetricsSink.
func (m *Metrics) QueueDepth(hi, lo int) {
	m.queueDepth.WithLabelValues("hi").Set(float64(hi))
	m.queueDepth.WithLabelValues("lo").Set(float64(lo))
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func priorityLabel(p int) string {
	if p >= core.EscalatedPriority {
		return "escalated"
	}
	if p > 0 {
		return "hi"
	}
	return "lo"
}
