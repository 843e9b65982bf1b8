package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus metric the engine exposes.
type Metrics struct {
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	ItemsFetched  *prometheus.CounterVec

	ItemsIngested  *prometheus.CounterVec
	ItemsRejected  prometheus.Counter
	ItemsEvicted   prometheus.Counter
	BufferSize     prometheus.Gauge
	UniqueTickers  prometheus.Gauge
	ActiveSources  prometheus.Gauge
	ExportsWritten prometheus.Counter
	AlertsFired    *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics(prometheus.NewRegistry())
	})
	return defaultMetrics
}

// NewMetrics builds and registers all engine metrics on the given
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reddwatch_fetch_duration_seconds",
				Help:    "Duration of source fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"source", "result"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reddwatch_fetch_errors_total",
				Help: "Fetch failures by source and error class",
			},
			[]string{"source", "class"},
		),
		ItemsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reddwatch_items_fetched_total",
				Help: "Raw items fetched by source",
			},
			[]string{"source"},
		),
		ItemsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reddwatch_items_ingested_total",
				Help: "Processed items accepted by the aggregator",
			},
			[]string{"source"},
		),
		ItemsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reddwatch_items_rejected_total",
				Help: "Malformed items rejected at ingest",
			},
		),
		ItemsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reddwatch_items_evicted_total",
				Help: "Items evicted from the retention window",
			},
		),
		BufferSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reddwatch_buffer_items",
				Help: "Items currently held in the windowed buffer",
			},
		),
		UniqueTickers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reddwatch_unique_tickers",
				Help: "Distinct symbols currently tracked",
			},
		),
		ActiveSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reddwatch_active_sources",
				Help: "Polling tasks currently running",
			},
		),
		ExportsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reddwatch_exports_written_total",
				Help: "Export documents generated",
			},
		),
		AlertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reddwatch_alerts_fired_total",
				Help: "Alert rule evaluations that triggered",
			},
			[]string{"rule"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.FetchDuration, m.FetchErrors, m.ItemsFetched,
		m.ItemsIngested, m.ItemsRejected, m.ItemsEvicted,
		m.BufferSize, m.UniqueTickers, m.ActiveSources,
		m.ExportsWritten, m.AlertsFired,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler
// and for gathering latency summaries.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
