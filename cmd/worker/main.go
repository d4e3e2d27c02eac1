package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/screen-assistant/internal/config"
	"github.com/kirillkom/screen-assistant/internal/core/domain"
	auditnats "github.com/kirillkom/screen-assistant/internal/infrastructure/audit/nats"
	"github.com/kirillkom/screen-assistant/internal/observability/logging"
	"github.com/kirillkom/screen-assistant/internal/observability/metrics"
)

const serviceName = "screen-assistant-worker"

// The worker tails the audit subject and turns per-request outcomes into
// logs and metrics, keeping the serving path free of that bookkeeping.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber, err := auditnats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		slog.Error("audit subscriber error", "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = subscriber.SubscribeOutcomes(ctx, func(_ context.Context, event domain.AuditEvent) error {
		workerMetrics.ObserveEventLag(serviceName, time.Since(event.OccurredAt))
		workerMetrics.RecordPipelineRun(serviceName, string(event.Status), time.Duration(event.ElapsedMS*float64(time.Millisecond)))
		workerMetrics.RecordEvent(serviceName, nil)

		attrs := []any{
			"request_id", event.RequestID,
			"status", event.Status,
			"elapsed_ms", event.ElapsedMS,
			"stages", len(event.Diagnostics),
		}
		if event.Status == domain.PipelineFailed {
			slog.Warn("pipeline_run", attrs...)
			return nil
		}
		slog.Info("pipeline_run", attrs...)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
