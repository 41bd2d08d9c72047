package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/attemptsync/internal/metrics"
	"github.com/shrimpsizemoose/attemptsync/internal/models"
	"github.com/shrimpsizemoose/attemptsync/internal/store"
)

var ErrStoreUnavailable = errors.New("attempt store is unavailable")

// RecordSource yields the raw records for a date window.
type RecordSource interface {
	Fetch(ctx context.Context, start, end string) ([]models.RawAttempt, error)
}

// RunJournal remembers finished runs. It is optional.
type RunJournal interface {
	RecordIngestRun(ctx context.Context, run models.IngestRun) error
}

type IngestorConfig struct {
	Start string
	End   string
	// PushgatewayURL is where metrics go after a run; empty disables pushing.
	PushgatewayURL string
}

type RunSummary struct {
	Start    string
	End      string
	NoData   bool
	Fetched  int
	Accepted int
	Rejected int
	Inserted int
	// Rejections are kept for callers and tests; they are already logged.
	Rejections []models.Rejection
}

type Ingestor struct {
	cfg        IngestorConfig
	store      store.AttemptStore
	source     RecordSource
	normalizer *Normalizer
	journal    RunJournal
	now        func() time.Time
}

func NewIngestor(cfg IngestorConfig, st store.AttemptStore, source RecordSource, journal RunJournal) *Ingestor {
	return &Ingestor{
		cfg:        cfg,
		store:      st,
		source:     source,
		normalizer: NewNormalizer(),
		journal:    journal,
		now:        time.Now,
	}
}

// Run performs one ingestion: check the store, make sure the table exists,
// fetch the window, normalize and write the accepted attempts in one
// transaction. An unreachable or empty API is not an error.
func (in *Ingestor) Run(ctx context.Context) (*RunSummary, error) {
	started := in.now()
	defer func() {
		metrics.IngestRunDuration.Observe(in.now().Sub(started).Seconds())
	}()

	summary := &RunSummary{Start: in.cfg.Start, End: in.cfg.End}

	if err := in.store.Ping(ctx); err != nil {
		logger.Error.Printf("CRITICAL: database connection failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := in.store.EnsureSchema(); err != nil {
		logger.Error.Printf("Failed to prepare attempts table: %v", err)
		return nil, err
	}

	records, err := in.source.Fetch(ctx, in.cfg.Start, in.cfg.End)
	if err != nil {
		logger.Error.Printf("Failed to fetch attempts: %v", err)
		summary.NoData = true
		return summary, nil
	}
	if len(records) == 0 {
		logger.Info.Println("WARNING: no data received from the statistics API")
		summary.NoData = true
		return summary, nil
	}
	summary.Fetched = len(records)
	metrics.AttemptsFetched.Add(float64(len(records)))

	result := in.normalizer.Normalize(records)
	for _, rej := range result.Rejections {
		logger.Info.Printf("WARNING: skip record %d: %s", rej.Index, rej.Detail())
		metrics.AttemptsRejected.WithLabelValues(string(rej.Reason)).Inc()
	}
	metrics.AttemptsAccepted.Add(float64(result.AcceptedCount()))
	logger.Info.Printf("Processed %d records: %d accepted, %d rejected",
		result.Total, result.AcceptedCount(), result.RejectedCount())

	summary.Accepted = result.AcceptedCount()
	summary.Rejected = result.RejectedCount()
	summary.Rejections = result.Rejections

	if len(result.Accepted) == 0 {
		logger.Info.Println("Nothing to insert")
	} else {
		if err := in.store.InsertAttempts(ctx, result.Accepted); err != nil {
			logger.Error.Printf("Failed to save attempts, transaction rolled back: %v", err)
			return summary, err
		}
		summary.Inserted = len(result.Accepted)
		metrics.AttemptsInserted.Add(float64(summary.Inserted))
		logger.Info.Printf("Saved %d attempts", summary.Inserted)
	}

	in.finish(ctx, summary)
	return summary, nil
}

func (in *Ingestor) finish(ctx context.Context, summary *RunSummary) {
	if in.journal != nil {
		run := models.IngestRun{
			Start:      summary.Start,
			End:        summary.End,
			Fetched:    summary.Fetched,
			Accepted:   summary.Accepted,
			Rejected:   summary.Rejected,
			Inserted:   summary.Inserted,
			FinishedAt: in.now().UTC(),
		}
		if err := in.journal.RecordIngestRun(ctx, run); err != nil {
			logger.Error.Printf("Failed to record ingest run: %v", err)
		}
	}
	if err := metrics.Push(ctx, in.cfg.PushgatewayURL, "attempts_ingest"); err != nil {
		logger.Error.Printf("%v", err)
	}
}
