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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/contract-risk-analyzer/internal/bootstrap"
	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/observability/logging"
	"github.com/kirillkom/contract-risk-analyzer/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:        logger,
		TrackObserver: workerMetrics.Analysis(),
		RetryObserver: workerMetrics.Analysis(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSRequestSubject)
		return app.Queue.SubscribeAnalysisRequested(gCtx, func(handlerCtx context.Context, req domain.AnalysisRequest) error {
			if !req.RequestedAt.IsZero() {
				workerMetrics.ObserveQueueLag("worker", time.Since(req.RequestedAt))
			}
			start := time.Now()
			workerMetrics.StartRequest()

			track, err := app.Processor.Process(handlerCtx, req)
			workerMetrics.FinishRequest("worker", time.Since(start), err)
			if err != nil {
				return err
			}
			logger.Info("analysis_request_processed",
				"document_id", track.DocumentID,
				"findings", len(track.Findings),
				"skipped_categories", len(track.SkippedCategories),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	})

	err = g.Wait()
	stop()
	app.Close()
	if err != nil {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
