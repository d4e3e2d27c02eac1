package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pipelineRunsTotal     *prometheus.CounterVec
	pipelineStageStatus   *prometheus.CounterVec
	pipelineStageDuration *prometheus.HistogramVec
	pipelineDuration      *prometheus.HistogramVec
	contextPassages       *prometheus.HistogramVec
	noContextTotal        *prometheus.CounterVec
	denseDisabledTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pipelineRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total finished pipeline runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	pipelineStageStatus := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "stage_status_total",
			Help:      "Per-stage completion counts by stage status.",
		},
		[]string{"service", "stage", "status"},
	)
	pipelineStageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	contextPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "context_passages",
			Help:      "Distribution of passages packed into the context bundle.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "no_context_total",
			Help:      "Total runs that finished without any retrieved context.",
		},
		[]string{"service"},
	)
	denseDisabledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sa",
			Subsystem: "pipeline",
			Name:      "dense_disabled_total",
			Help:      "Total runs that proceeded without a query embedding.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		pipelineRunsTotal,
		pipelineStageStatus,
		pipelineStageDuration,
		pipelineDuration,
		contextPassages,
		noContextTotal,
		denseDisabledTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		pipelineRunsTotal:     pipelineRunsTotal,
		pipelineStageStatus:   pipelineStageStatus,
		pipelineStageDuration: pipelineStageDuration,
		pipelineDuration:      pipelineDuration,
		contextPassages:       contextPassages,
		noContextTotal:        noContextTotal,
		denseDisabledTotal:    denseDisabledTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordPipelineOutcome translates one finished run's diagnostics into
// counters and histograms.
func (m *HTTPServerMetrics) RecordPipelineOutcome(service string, outcome *domain.PipelineOutcome) {
	if outcome == nil {
		return
	}

	status := string(outcome.Status)
	m.pipelineRunsTotal.WithLabelValues(service, status).Inc()
	m.pipelineDuration.WithLabelValues(service, status).Observe(outcome.Elapsed.Seconds())

	for _, diag := range outcome.Diagnostics {
		m.pipelineStageStatus.WithLabelValues(service, diag.Stage, string(diag.Status)).Inc()
		m.pipelineStageDuration.WithLabelValues(service, diag.Stage).Observe(diag.Elapsed.Seconds())
	}

	if outcome.Bundle != nil {
		m.contextPassages.WithLabelValues(service).Observe(float64(len(outcome.Bundle.Passages)))
		if len(outcome.Bundle.Passages) == 0 {
			m.noContextTotal.WithLabelValues(service).Inc()
		}
	}
}

func (m *HTTPServerMetrics) RecordDenseDisabled(service string) {
	m.denseDisabledTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
