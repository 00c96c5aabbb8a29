// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricJobsTotal       = "ingest_jobs_total"
	MetricRowsTotal       = "ingest_rows_total"
	MetricJobDuration     = "ingest_job_duration_seconds"
	MetricActiveIngests   = "ingest_active"
	MetricLastSuccessUnix = "ingest_last_success_timestamp_seconds"
)

// Row kinds on MetricRowsTotal.
const (
	RowsProcessed = "processed"
	RowsInserted  = "inserted"
	RowsSkipped   = "skipped"
)

// Recorder is a core.Observer backed by its own registry.
type Recorder struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	rows        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

var _ core.Observer = (*Recorder)(nil)

// NewRecorder registers the ingestion metrics. active, when non-nil, backs
// the in-flight gauge.
func NewRecorder(active func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricJobsTotal,
			Help: "Finished file runs by integration and outcome.",
		}, []string{"integration", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRowsTotal,
			Help: "Rows seen by completed runs, by integration and kind.",
		}, []string{"integration", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricJobDuration,
			Help:    "Wall time of finished file runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"integration", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricLastSuccessUnix,
			Help: "Unix time of the last completed run per integration.",
		}, []string{"integration"}),
	}

	r.registry.MustRegister(
		r.jobs,
		r.rows,
		r.duration,
		r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if active != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: MetricActiveIngests,
			Help: "File runs currently holding the ingest limiter.",
		}, func() float64 { return float64(active()) }))
	}

	return r
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// JobFinished implements core.Observer.
func (r *Recorder) JobFinished(_ context.Context, ev core.JobEvent) {
	integration := ev.Integration
	if integration == "" {
		integration = "unknown"
	}
	outcome := string(ev.Outcome)

	r.jobs.WithLabelValues(integration, outcome).Inc()
	r.duration.WithLabelValues(integration, outcome).Observe(ev.Duration.Seconds())

	if ev.Outcome != core.OutcomeCompleted {
		return
	}
	r.rows.WithLabelValues(integration, RowsProcessed).Add(float64(ev.ProcessedRows))
	r.rows.WithLabelValues(integration, RowsInserted).Add(float64(ev.InsertedRows))
	r.rows.WithLabelValues(integration, RowsSkipped).Add(float64(ev.ErrorRows))
	r.lastSuccess.WithLabelValues(integration).Set(float64(ev.FinishedAt.Unix()))
}
