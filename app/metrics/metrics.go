package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ckubal/mc-adventure-finder/app/ingest"
)

const namespace = "adventure_finder"

var _ ingest.Recorder = (*Metrics)(nil)

// Metrics records ingestion runs on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	skippedTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	timeoutsTotal  *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	upsertedTotal  prometheus.Counter
	sinkErrors     prometheus.Counter
	runDuration    prometheus.Gauge
	lastRunTS      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_runs_total",
		Help:      "Completed ingestion runs",
	}, []string{"mode"})
	m.rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_rejected_total",
		Help:      "Ingestion runs rejected before any adapter ran",
	}, []string{"reason"})
	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_events_total",
		Help:      "Events accepted per source",
	}, []string{"source"})
	m.skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_skipped_total",
		Help:      "Events outside the ingestion window per source",
	}, []string{"source"})
	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_errors_total",
		Help:      "Adapter and record errors per source",
	}, []string{"source"})
	m.timeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_timeouts_total",
		Help:      "Adapter runs cut off by the per-adapter timeout",
	}, []string{"source"})
	m.sourceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_duration_seconds",
		Help:      "Time spent fetching and parsing one source",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 25},
	}, []string{"source"})
	m.upsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_upserted_total",
		Help:      "Events written to the store",
	})
	m.sinkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Failed event writes",
	})
	m.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the most recent ingestion run",
	})
	m.lastRunTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the most recent ingestion run started",
	})

	m.registry.MustRegister(
		m.runsTotal, m.rejectedTotal,
		m.eventsTotal, m.skippedTotal, m.errorsTotal, m.timeoutsTotal, m.sourceDuration,
		m.upsertedTotal, m.sinkErrors, m.runDuration, m.lastRunTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) RecordRun(report *ingest.Report, duration time.Duration) {
	mode := "live"
	if report.DryRun {
		mode = "dry_run"
	}
	m.runsTotal.WithLabelValues(mode).Inc()

	for _, outcome := range report.PerSource {
		m.eventsTotal.WithLabelValues(outcome.SourceID).Add(float64(outcome.RecordCount))
		m.skippedTotal.WithLabelValues(outcome.SourceID).Add(float64(outcome.Skipped))
		m.errorsTotal.WithLabelValues(outcome.SourceID).Add(float64(outcome.ErrorCount))
		if outcome.TimedOut {
			m.timeoutsTotal.WithLabelValues(outcome.SourceID).Inc()
		}
		m.sourceDuration.WithLabelValues(outcome.SourceID).Observe(outcome.Duration.Seconds())
	}

	m.upsertedTotal.Add(float64(report.Upserted))
	m.sinkErrors.Add(float64(report.SinkErrors))
	m.runDuration.Set(duration.Seconds())
	m.lastRunTS.Set(float64(report.StartedAt.Unix()))
}

func (m *Metrics) RecordRejected(err error) {
	m.rejectedTotal.WithLabelValues(rejectReason(err)).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ingest.ErrSinkUnavailable):
		return "sink_unavailable"
	case errors.Is(err, ingest.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ingest.ErrInvalidTimeout):
		return "invalid_timeout"
	default:
		return "other"
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
