package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	eventLag       *prometheus.HistogramVec
	pipelineRuns   *prometheus.CounterVec
	pipelineMillis *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total consumed audit events by handling status.",
		},
		[]string{"service", "status"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "audit",
			Name:      "event_lag_seconds",
			Help:      "Delay between event emission and consumption.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)
	pipelineRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "audit",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline terminal statuses as seen by the audit trail.",
		},
		[]string{"service", "pipeline_status"},
	)
	pipelineMillis := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "audit",
			Name:      "pipeline_elapsed_seconds",
			Help:      "Pipeline run durations reported through audit events.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "pipeline_status"},
	)

	registry.MustRegister(eventsTotal, eventLag, pipelineRuns, pipelineMillis)

	return &WorkerMetrics{
		registry:       registry,
		eventsTotal:    eventsTotal,
		eventLag:       eventLag,
		pipelineRuns:   pipelineRuns,
		pipelineMillis: pipelineMillis,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) RecordEvent(service string, err error) {
	status := "processed"
	if err != nil {
		status = "error"
	}
	m.eventsTotal.WithLabelValues(service, status).Inc()
}

func (m *WorkerMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordPipelineRun(service, pipelineStatus string, elapsed time.Duration) {
	if pipelineStatus == "" {
		pipelineStatus = "unknown"
	}
	m.pipelineRuns.WithLabelValues(service, pipelineStatus).Inc()
	m.pipelineMillis.WithLabelValues(service, pipelineStatus).Observe(elapsed.Seconds())
}
