// Package metrics exposes ingestion and moderation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	records        *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	fetchDur       *prometheus.SummaryVec
	runDur         prometheus.Summary
	runs           *prometheus.CounterVec
	runInProgress  prometheus.Gauge
	decisions      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cunyserve",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Staging upserts by source and outcome",
	}, []string{"source", "outcome"})
	m.sourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cunyserve",
		Subsystem: "ingest",
		Name:      "source_failures_total",
		Help:      "Source fetches that failed and contributed no events",
	}, []string{"source"})
	m.fetchDur = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "cunyserve",
		Subsystem: "scraper",
		Name:      "fetch_seconds",
		Help:      "Time spent fetching one source",
	}, []string{"source"})
	m.runDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "cunyserve",
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Wall time of finished ingestion runs",
	})
	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cunyserve",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Finished ingestion runs by terminal status",
	}, []string{"status"})
	m.runInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cunyserve",
		Subsystem: "ingest",
		Name:      "run_in_progress",
		Help:      "1 while this process holds the run lease",
	})
	m.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cunyserve",
		Subsystem: "moderation",
		Name:      "decisions_total",
		Help:      "Moderation status changes and whether they published",
	}, []string{"status", "published"})

	m.registry.MustRegister(
		m.records, m.sourceFailures, m.fetchDur,
		m.runDur, m.runs, m.runInProgress, m.decisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveFetch(source string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.fetchDur.WithLabelValues(source).Observe(d.Seconds())
	if failed {
		m.sourceFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) ObserveRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runInProgress.Set(1)
}

func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runInProgress.Set(0)
	m.runs.WithLabelValues(status).Inc()
	m.runDur.Observe(d.Seconds())
}

func (m *Metrics) ObserveDecision(status string, published bool) {
	if m == nil {
		return
	}
	p := "false"
	if published {
		p = "true"
	}
	m.decisions.WithLabelValues(status, p).Inc()
}
