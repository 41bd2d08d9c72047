package postgres

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

// setupTestDB starts a throwaway Postgres container and creates the schema
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	postgres, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := postgres.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn)
	require.NoError(t, err, "Failed to create store")
	require.NoError(t, s.EnsureSchema(), "Failed to create schema")

	cleanup := func() {
		s.Close()
		postgres.Terminate(ctx)
	}

	return s, cleanup
}

func strPtr(s string) *string { return &s }

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestInsertAndSummarize(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureSchema(), "schema creation is idempotent")

	attempts := []models.Attempt{
		{
			UserID:             "u1",
			OAuthConsumerKey:   strPtr("k"),
			LISResultSourcedID: strPtr("s"),
			IsCorrect:          models.CorrectnessTrue,
			AttemptType:        models.AttemptTypeSubmit,
			CreatedAt:          "2024-01-01 10:00:00.123456",
		},
		{
			UserID:      "u2",
			IsCorrect:   models.CorrectnessUnknown,
			AttemptType: models.AttemptTypeRun,
			CreatedAt:   "2024-01-01 09:00:00",
		},
	}

	t.Run("insert", func(t *testing.T) {
		require.NoError(t, s.InsertAttempts(ctx, attempts))
		has, err := s.HasAttempts(ctx)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("null correctness survives", func(t *testing.T) {
		var got []models.Correctness
		require.NoError(t, s.DB.Select(&got, `SELECT is_correct FROM attempts ORDER BY id`))
		assert.Equal(t, []models.Correctness{models.CorrectnessTrue, models.CorrectnessUnknown}, got)
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := s.SummarizeAttempts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.TotalAttempts)
		assert.Equal(t, int64(1), summary.CorrectAttempts)
		assert.Equal(t, int64(1), summary.Submits)
		assert.Equal(t, int64(1), summary.Runs)
		assert.Equal(t, int64(2), summary.UniqueUsers)
		require.NotNil(t, summary.FirstAttempt)
		assert.Contains(t, *summary.FirstAttempt, "2024-01-01")
	})
}

func TestInsertRollsBackOnFailure(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	batch := []models.Attempt{
		{UserID: "ok", AttemptType: models.AttemptTypeRun, CreatedAt: "2024-01-01 00:00:00"},
		{UserID: "bad", AttemptType: models.AttemptTypeRun, CreatedAt: "not a timestamp"},
	}

	err := s.InsertAttempts(ctx, batch)
	require.Error(t, err)

	has, err := s.HasAttempts(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", rebind("a = ? AND b = ?"))
}
