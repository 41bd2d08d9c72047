package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shrimpsizemoose/trekker/logger"
)

// RunScheduled runs job on the cron expression until SIGINT or SIGTERM. Runs
// never overlap: a tick that fires while the previous run is still going is
// dropped.
func RunScheduled(ctx context.Context, expr string, job func(context.Context)) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	if _, err := scheduler.Cron(expr).Do(func() { job(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", expr, err)
	}

	scheduler.StartAsync()
	logger.Info.Printf("Scheduled on %q, next run at %s", expr, nextRun(scheduler))

	<-ctx.Done()
	logger.Info.Println("Stopping scheduler")
	scheduler.Stop()
	return nil
}

func nextRun(s *gocron.Scheduler) string {
	_, t := s.NextRun()
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(timeFormat)
}
