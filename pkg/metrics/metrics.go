// Package metrics defines the Prometheus collectors for the article-to-audio
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	ArticlesIngestedTotal prometheus.Counter
	IngestFailuresTotal   *prometheus.CounterVec
	SynthesisJobsTotal    *prometheus.CounterVec
	ChunkAttemptsTotal    *prometheus.CounterVec
	HardSplitChunksTotal  prometheus.Counter
	SynthesisDuration     prometheus.Histogram
	AudioBytesWritten     prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		ArticlesIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "articles_ingested_total",
				Help: "Total articles successfully ingested.",
			},
		),
		IngestFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_failures_total",
				Help: "Failed ingestions by reason (invalid_input, fetch, extraction, repository).",
			},
			[]string{"reason"},
		),
		SynthesisJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthesis_jobs_total",
				Help: "Finished synthesis jobs by outcome (success, failure, canceled).",
			},
			[]string{"outcome"},
		),
		ChunkAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_synthesis_attempts_total",
				Help: "Chunk synthesis attempts by result (ok, retryable_error, permanent_error).",
			},
			[]string{"result"},
		),
		HardSplitChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunk_hard_splits_total",
				Help: "Chunks produced by the last-resort hard split inside a sentence.",
			},
		),
		SynthesisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "synthesis_job_duration_seconds",
				Help:    "Wall time of whole synthesis jobs in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		AudioBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audio_bytes_written_total",
				Help: "Total encoded audio bytes persisted to the blob store.",
			},
		),
	}

	prometheus.MustRegister(
		m.ArticlesIngestedTotal,
		m.IngestFailuresTotal,
		m.SynthesisJobsTotal,
		m.ChunkAttemptsTotal,
		m.HardSplitChunksTotal,
		m.SynthesisDuration,
		m.AudioBytesWritten,
	)

	return m
}

// ObserveJob records one finished synthesis job.
func (m *Metrics) ObserveJob(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisJobsTotal.WithLabelValues(outcome).Inc()
	m.SynthesisDuration.Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
