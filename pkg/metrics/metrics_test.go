package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/metrics"
)

func TestJobEnqueuedLabelsByPriorityTier(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.JobEnqueued(0)
	m.JobEnqueued(5)
	m.JobEnqueued(core.EscalatedPriority)

	expected := `
		# HELP detalhar_jobs_enqueued_total Total jobs admitted, by priority.
		# TYPE detalhar_jobs_enqueued_total counter
		detalhar_jobs_enqueued_total{priority="escalated"} 1
		detalhar_jobs_enqueued_total{priority="hi"} 1
		detalhar_jobs_enqueued_total{priority="lo"} 1
	`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "detalhar_jobs_enqueued_total"))
}

func TestJobCompletedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.JobCompleted(core.StatusDone, core.StageResumo, 12*time.Second)

	expected := `
		# HELP detalhar_jobs_completed_total Total jobs reaching a terminal state, by status and final stage.
		# TYPE detalhar_jobs_completed_total counter
		detalhar_jobs_completed_total{stage="resumo",status="done"} 1
	`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "detalhar_jobs_completed_total"))
}

func TestQueueDepthSetsBothGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.QueueDepth(3, 7)

	expected := `
		# HELP detalhar_queue_depth Current dispatch queue depth, by priority.
		# TYPE detalhar_queue_depth gauge
		detalhar_queue_depth{priority="hi"} 3
		detalhar_queue_depth{priority="lo"} 7
	`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "detalhar_queue_depth"))
}
