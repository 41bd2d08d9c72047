package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

const (
	timeFormat    = "2006-01-02 15:04:05"
	lastRunKey    = "ingest:last_run"
	fieldRunCount = "run_count"
)

// Journal keeps the outcome of the last ingest run in redis so the report
// job can name the period it covers. A nil *Journal is a valid no-op.
type Journal struct {
	redis *redis.Client
}

func NewJournal(ctx context.Context, redisURL string) (*Journal, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Journal{redis: client}, nil
}

func (j *Journal) RecordIngestRun(ctx context.Context, run models.IngestRun) error {
	if j == nil {
		return nil
	}

	pipe := j.redis.TxPipeline()
	pipe.HSet(ctx, lastRunKey, map[string]interface{}{
		"start":             run.Start,
		"end":               run.End,
		"fetched":           run.Fetched,
		"accepted":          run.Accepted,
		"rejected":          run.Rejected,
		"inserted":          run.Inserted,
		"finished_dttm_utc": run.FinishedAt.UTC().Format(timeFormat),
	})
	pipe.HIncrBy(ctx, lastRunKey, fieldRunCount, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

// LastIngestRun returns nil without error when no run was recorded yet.
func (j *Journal) LastIngestRun(ctx context.Context) (*models.IngestRun, error) {
	if j == nil {
		return nil, nil
	}

	values, err := j.redis.HGetAll(ctx, lastRunKey).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(values) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last ingest run: %w", err)
	}

	fetched, _ := strconv.Atoi(values["fetched"])
	accepted, _ := strconv.Atoi(values["accepted"])
	rejected, _ := strconv.Atoi(values["rejected"])
	inserted, _ := strconv.Atoi(values["inserted"])
	finishedAt, _ := time.Parse(timeFormat, values["finished_dttm_utc"])

	return &models.IngestRun{
		Start:      values["start"],
		End:        values["end"],
		Fetched:    fetched,
		Accepted:   accepted,
		Rejected:   rejected,
		Inserted:   inserted,
		FinishedAt: finishedAt,
	}, nil
}

func (j *Journal) Close() error {
	if j != nil && j.redis != nil {
		return j.redis.Close()
	}
	return nil
}
