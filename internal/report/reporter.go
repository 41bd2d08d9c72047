package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/attemptsync/internal/metrics"
	"github.com/shrimpsizemoose/attemptsync/internal/models"
	"github.com/shrimpsizemoose/attemptsync/internal/store"
)

var ErrNoAttempts = errors.New("attempts table has no data")

// RunSource knows the window of the last ingestion.
type RunSource interface {
	LastIngestRun(ctx context.Context) (*models.IngestRun, error)
}

type ReporterConfig struct {
	BackupPath string
	// Start and End name the period when no ingest run was journaled.
	Start          string
	End            string
	PushgatewayURL string
}

type ReportSummary struct {
	Rows           []Row
	Published      bool
	SpreadsheetURL string
	BackupPath     string
	Emailed        bool
}

type Reporter struct {
	cfg       ReporterConfig
	store     store.AttemptStore
	publisher Publisher
	mailer    Mailer
	runs      RunSource
}

// NewReporter wires the report job. A nil publisher always falls back to the
// CSV backup; a nil mailer skips the notification.
func NewReporter(cfg ReporterConfig, st store.AttemptStore, publisher Publisher, mailer Mailer, runs RunSource) *Reporter {
	return &Reporter{
		cfg:       cfg,
		store:     st,
		publisher: publisher,
		mailer:    mailer,
		runs:      runs,
	}
}

func (r *Reporter) Run(ctx context.Context) (*ReportSummary, error) {
	has, err := r.store.HasAttempts(ctx)
	if err != nil {
		logger.Error.Printf("CRITICAL: failed to check the attempts table: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrNoAttempts, err)
	}
	if !has {
		logger.Error.Println("CRITICAL: the attempts table is empty, run the ingest job first")
		return nil, ErrNoAttempts
	}

	stats, err := r.store.SummarizeAttempts(ctx)
	if err != nil {
		logger.Error.Printf("CRITICAL: failed to aggregate attempts: %v", err)
		return nil, err
	}

	summary := &ReportSummary{Rows: MetricRows(stats)}
	logger.Info.Println("Aggregated metrics:")
	for _, row := range summary.Rows {
		logger.Info.Printf("  %s: %v", row.Metric, row.Value)
	}

	r.publish(ctx, summary)
	r.notify(ctx, summary)

	if err := metrics.Push(ctx, r.cfg.PushgatewayURL, "attempts_report"); err != nil {
		logger.Error.Printf("%v", err)
	}

	if summary.Published {
		logger.Info.Println("Report finished successfully")
	} else {
		logger.Error.Println("CRITICAL: report finished with a local backup only")
	}
	return summary, nil
}

func (r *Reporter) publish(ctx context.Context, summary *ReportSummary) {
	if r.publisher != nil {
		url, err := r.publisher.Publish(ctx, summary.Rows)
		if err == nil {
			metrics.ReportPublishTotal.WithLabelValues("sheets", "success").Inc()
			logger.Info.Printf("Metrics published to Google Sheets: %s", url)
			summary.Published = true
			summary.SpreadsheetURL = url
			return
		}
		metrics.ReportPublishTotal.WithLabelValues("sheets", "failure").Inc()
		logger.Error.Printf("Failed to publish to Google Sheets: %v", err)
	} else {
		logger.Error.Println("Google Sheets is not available, writing a local backup")
	}

	path, err := WriteBackup(r.cfg.BackupPath, summary.Rows)
	if err != nil {
		metrics.ReportPublishTotal.WithLabelValues("csv", "failure").Inc()
		logger.Error.Printf("Failed to save metrics locally: %v", err)
		return
	}
	metrics.ReportPublishTotal.WithLabelValues("csv", "success").Inc()
	logger.Info.Printf("Metrics saved locally to %s", path)
	summary.BackupPath = path
}

func (r *Reporter) notify(ctx context.Context, summary *ReportSummary) {
	if r.mailer == nil {
		logger.Error.Println("Email settings are incomplete, skipping the notification")
		return
	}

	start, end := r.period(ctx)
	err := r.mailer.Send(ctx, Notification{
		Published:      summary.Published,
		SpreadsheetURL: summary.SpreadsheetURL,
		BackupPath:     summary.BackupPath,
		PeriodStart:    start,
		PeriodEnd:      end,
	})
	if err != nil {
		metrics.ReportPublishTotal.WithLabelValues("email", "failure").Inc()
		logger.Error.Printf("Failed to send the report email: %v", err)
		return
	}
	metrics.ReportPublishTotal.WithLabelValues("email", "success").Inc()
	logger.Info.Println("Report email sent")
	summary.Emailed = true
}

func (r *Reporter) period(ctx context.Context) (string, string) {
	if r.runs != nil {
		run, err := r.runs.LastIngestRun(ctx)
		if err != nil {
			logger.Debug.Printf("Could not read the last ingest run: %v", err)
		}
		if run != nil && run.Start != "" {
			return run.Start, run.End
		}
	}
	return r.cfg.Start, r.cfg.End
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
