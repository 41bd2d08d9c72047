package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/attemptsync/internal/app"
	"github.com/shrimpsizemoose/attemptsync/internal/ingest"
	"github.com/shrimpsizemoose/attemptsync/internal/metrics"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	service, err := app.NewService(ctx, *configPath)
	if err != nil {
		logger.Error.Printf("CRITICAL: failed to start: %v", err)
		return
	}
	defer service.Close()

	cfg := service.Config
	if err := cfg.ValidateIngest(); err != nil {
		logger.Error.Printf("CRITICAL: %v", err)
		return
	}

	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		URL:       cfg.API.URL,
		Client:    cfg.API.Client,
		ClientKey: cfg.API.ClientKey,
		Timeout:   cfg.API.Timeout(),
		SSLVerify: cfg.API.SSLVerify,
		Retry: ingest.RetryPolicy{
			MaxRetries:  *cfg.API.MaxRetries,
			BackoffBase: time.Duration(cfg.API.BackoffBaseSeconds) * time.Second,
			MaxBackoff:  time.Duration(cfg.API.MaxBackoffSeconds) * time.Second,
			Statuses:    ingest.DefaultRetryPolicy().Statuses,
		},
	})

	var journal ingest.RunJournal
	if service.Journal != nil {
		journal = service.Journal
	}

	ingestor := ingest.NewIngestor(ingest.IngestorConfig{
		Start:          cfg.API.Start,
		End:            cfg.API.End,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
	}, service.Store, fetcher, journal)

	run := func(ctx context.Context) {
		logger.Info.Println("=== Ingest started ===")
		summary, err := ingestor.Run(ctx)
		switch {
		case errors.Is(err, ingest.ErrStoreUnavailable):
			return
		case err != nil:
			logger.Error.Printf("Ingest failed: %v", err)
		case summary.NoData:
			logger.Info.Println("=== Ingest finished without data ===")
		default:
			logger.Info.Printf("=== Ingest finished: %d fetched, %d saved, %d skipped ===",
				summary.Fetched, summary.Inserted, summary.Rejected)
		}
	}

	if cfg.Schedule.Cron == "" {
		run(ctx)
		return
	}
	if cfg.Metrics.ListenAddr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error.Printf("%v", err)
			}
		}()
	}
	if err := app.RunScheduled(ctx, cfg.Schedule.Cron, run); err != nil {
		logger.Error.Printf("Scheduler failed: %v", err)
	}
}
