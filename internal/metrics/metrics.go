// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/shrimpsizemoose/trekker/logger"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_fetch_requests_total",
			Help: "Requests sent to the statistics API by response status",
		},
		[]string{"status"},
	)

	AttemptsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attempts_fetched_total",
			Help: "Raw attempt records received from the statistics API",
		},
	)

	AttemptsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attempts_accepted_total",
			Help: "Attempt records that passed validation",
		},
	)

	AttemptsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempts_rejected_total",
			Help: "Attempt records rejected during validation",
		},
		[]string{"reason"},
	)

	AttemptsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attempts_inserted_total",
			Help: "Attempt rows committed to the store",
		},
	)

	IngestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time of one ingestion run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	ReportPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_publish_total",
			Help: "Report deliveries by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
)

// Push sends everything in the default registry to a Pushgateway. An empty
// gateway URL disables it.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Serve exposes /metrics on addr until ctx is done. Only long-running
// (scheduled) processes use it.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info.Printf("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
