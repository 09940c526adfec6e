package crawl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl pipeline.
type Metrics struct {
	Registry      *prometheus.Registry
	JobsTotal     *prometheus.CounterVec
	PagesVisited  *prometheus.CounterVec
	ItemsTotal    *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	RefreshChecks *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_jobs_total",
			Help: "Refresh jobs finished, by outcome.",
		},
		[]string{"outcome"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_pages_visited_total",
			Help: "Pages visited by the crawl pipeline, by stage.",
		},
		[]string{"stage"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_items_extracted_total",
			Help: "Entities extracted and persisted, by kind.",
		},
		[]string{"kind"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_errors_total",
			Help: "Pipeline errors, by type.",
		},
		[]string{"error_type"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookcat_stage_duration_seconds",
			Help:    "Time spent extracting one page, by stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	refreshChecks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_refresh_checks_total",
			Help: "Staleness coordinator decisions.",
		},
		[]string{"decision"},
	)

	registry.MustRegister(jobs, pages, items, errorsTotal, stageDuration, refreshChecks)

	return &Metrics{
		Registry:      registry,
		JobsTotal:     jobs,
		PagesVisited:  pages,
		ItemsTotal:    items,
		ErrorsTotal:   errorsTotal,
		StageDuration: stageDuration,
		RefreshChecks: refreshChecks,
	}
}

// IncJob counts a finished job by outcome.
func (m *Metrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome).Inc()
}

// IncPage counts a visited page by stage.
func (m *Metrics) IncPage(stage string) {
	if m == nil {
		return
	}
	m.PagesVisited.WithLabelValues(stage).Inc()
}

// IncItems counts persisted entities by kind.
func (m *Metrics) IncItems(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsTotal.WithLabelValues(kind).Add(float64(n))
}

// IncError counts a pipeline error by type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveStage records extraction time for one page.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRefreshCheck counts a coordinator decision.
func (m *Metrics) IncRefreshCheck(decision string) {
	if m == nil {
		return
	}
	m.RefreshChecks.WithLabelValues(decision).Inc()
}
