package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once at package init; the runner records through the helpers so
// callers never touch prometheus directly.
var (
	chunksCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vr_jobs_chunks_committed_total",
		Help: "Chunks durably committed, by job kind",
	}, []string{"kind"})

	recordOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vr_jobs_records_total",
		Help: "Records processed, by job kind and outcome",
	}, []string{"kind", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vr_jobs_duration_seconds",
		Help:    "Wall time of one runner invocation, by kind and terminal status",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
	}, []string{"kind", "status"})
)

func observeChunk(kind string, stats ChunkStats) {
	chunksCommitted.WithLabelValues(kind).Inc()
	recordOutcomes.WithLabelValues(kind, "succeeded").Add(float64(stats.Succeeded))
	recordOutcomes.WithLabelValues(kind, "failed").Add(float64(stats.Failed))
}

func observeJob(kind, status string, d time.Duration) {
	jobDuration.WithLabelValues(kind, status).Observe(d.Seconds())
}
