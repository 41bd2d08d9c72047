package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

// insertChunkSize keeps each multi-row INSERT under SQLite's bind limit.
const insertChunkSize = 500

type AttemptStore interface {
	Close() error
	Ping(ctx context.Context) error
	EnsureSchema() error

	InsertAttempts(ctx context.Context, attempts []models.Attempt) error
	HasAttempts(ctx context.Context) (bool, error)
	SummarizeAttempts(ctx context.Context) (*models.AttemptSummary, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
	// Translate rewrites the Postgres schema into the backend's dialect.
	Translate func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *BaseStore) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

// EnsureSchema creates the attempts table if it does not exist yet.
func (s *BaseStore) EnsureSchema() error {
	schema := AttemptsSchema
	if s.Translate != nil {
		schema = s.Translate(schema)
	}
	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create attempts table: %w", err)
	}
	return nil
}

// InsertAttempts writes all attempts in one transaction. Either every row is
// committed or none is.
func (s *BaseStore) InsertAttempts(ctx context.Context, attempts []models.Attempt) (err error) {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	for start := 0; start < len(attempts); start += insertChunkSize {
		end := min(start+insertChunkSize, len(attempts))
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO attempts (
				user_id,
				oauth_consumer_key,
				lis_result_sourcedid,
				lis_outcome_service_url,
				is_correct,
				attempt_type,
				created_at
			)
			VALUES (
				:user_id,
				:oauth_consumer_key,
				:lis_result_sourcedid,
				:lis_outcome_service_url,
				:is_correct,
				:attempt_type,
				:created_at
			)
		`, attempts[start:end]); err != nil {
			return fmt.Errorf("failed to insert attempts %d-%d: %w", start, end-1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempts: %w", err)
	}
	return nil
}

func (s *BaseStore) HasAttempts(ctx context.Context) (bool, error) {
	var one int
	err := s.DB.GetContext(ctx, &one, `SELECT 1 FROM attempts LIMIT 1`)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check attempts: %w", err)
	}
	return true, nil
}

func (s *BaseStore) SummarizeAttempts(ctx context.Context) (*models.AttemptSummary, error) {
	var summary models.AttemptSummary
	query := s.Converter(`
		SELECT
			COUNT(*) AS total_attempts,
			COUNT(CASE WHEN is_correct THEN 1 END) AS correct_attempts,
			COUNT(CASE WHEN attempt_type = ? THEN 1 END) AS submits,
			COUNT(CASE WHEN attempt_type = ? THEN 1 END) AS runs,
			COUNT(DISTINCT user_id) AS unique_users,
			MIN(created_at) AS first_attempt,
			MAX(created_at) AS last_attempt
		FROM attempts
	`)

	err := s.DB.GetContext(ctx, &summary, query, models.AttemptTypeSubmit, models.AttemptTypeRun)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", err)
	}
	return &summary, nil
}
