package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion.
type Metrics struct {
	TargetsProcessed   *prometheus.CounterVec // labels: mode={bulk,incremental}, outcome={succeeded,failed}
	Defects            *prometheus.CounterVec // labels: kind
	ObservationsStored prometheus.Counter
	PipelineRunning    prometheus.Gauge

	FetchDuration        prometheus.Histogram
	StoreCommitDuration  prometheus.Histogram
	PageCache            *prometheus.CounterVec // labels: result={hit,miss}
	LastSuccessTimestamp *prometheus.GaugeVec   // labels: location
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TargetsProcessed,
		m.Defects,
		m.ObservationsStored,
		m.PipelineRunning,
		m.FetchDuration,
		m.StoreCommitDuration,
		m.PageCache,
		m.LastSuccessTimestamp,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TargetsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_processed_total",
			Help:      "Fetch targets processed by ingestion mode and outcome.",
		}, []string{"mode", "outcome"}),
		Defects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defects_total",
			Help:      "Defects reported during ingestion by kind.",
		}, []string{"kind"}),
		ObservationsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_stored_total",
			Help:      "Observations upserted into the store.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "Number of ingestion runs currently in progress.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single page download.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StoreCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_commit_duration_seconds",
			Help:      "Duration of the per-page upsert transaction.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PageCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_total",
			Help:      "Page cache lookups by result.",
		}, []string{"result"}),
		LastSuccessTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last ingestion run without failed targets, per location.",
		}, []string{"location"}),
	}
}
