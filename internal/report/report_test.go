package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockStore) EnsureSchema() error {
	return nil
}

func (m *MockStore) InsertAttempts(ctx context.Context, attempts []models.Attempt) error {
	return nil
}

func (m *MockStore) HasAttempts(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) SummarizeAttempts(ctx context.Context) (*models.AttemptSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AttemptSummary), args.Error(1)
}

type fakePublisher struct {
	url  string
	err  error
	rows []Row
}

func (p *fakePublisher) Publish(ctx context.Context, rows []Row) (string, error) {
	p.rows = rows
	return p.url, p.err
}

type fakeMailer struct {
	sent []Notification
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, n Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

type fakeRuns struct {
	run *models.IngestRun
	err error
}

func (f fakeRuns) LastIngestRun(ctx context.Context) (*models.IngestRun, error) {
	return f.run, f.err
}

func strPtr(s string) *string { return &s }

func testSummary() *models.AttemptSummary {
	return &models.AttemptSummary{
		TotalAttempts:   10,
		CorrectAttempts: 4,
		Submits:         6,
		Runs:            4,
		UniqueUsers:     3,
		FirstAttempt:    strPtr("2024-01-01 09:00:00"),
		LastAttempt:     strPtr("2024-01-31 18:00:00"),
	}
}

func populatedStore() *MockStore {
	st := new(MockStore)
	st.On("HasAttempts", mock.Anything).Return(true, nil)
	st.On("SummarizeAttempts", mock.Anything).Return(testSummary(), nil)
	return st
}

func testConfig(t *testing.T) ReporterConfig {
	return ReporterConfig{
		BackupPath: filepath.Join(t.TempDir(), "metrics_backup.csv"),
		Start:      "cfg-start",
		End:        "cfg-end",
	}
}

func TestMetricRows(t *testing.T) {
	rows := MetricRows(testSummary())
	require.Len(t, rows, 7)
	assert.Equal(t, Row{"Total attempts", int64(10)}, rows[0])
	assert.Equal(t, Row{"Unique users", int64(3)}, rows[4])
	assert.Equal(t, Row{"Last attempt", "2024-01-31 18:00:00"}, rows[6])

	empty := MetricRows(&models.AttemptSummary{})
	assert.Equal(t, "", empty[5].Value)
}

func TestWriteBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	abs, err := WriteBackup(path, MetricRows(testSummary()))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	f, err := os.Open(abs)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 8)
	assert.Equal(t, []string{"Metric", "Value"}, records[0])
	assert.Equal(t, []string{"Total attempts", "10"}, records[1])
	assert.Equal(t, []string{"First attempt", "2024-01-01 09:00:00"}, records[6])
}

func TestWriteBackup_BadPath(t *testing.T) {
	_, err := WriteBackup(filepath.Join(t.TempDir(), "missing", "dir", "out.csv"), nil)
	assert.Error(t, err)
}

func TestReporter_Published(t *testing.T) {
	pub := &fakePublisher{url: "https://docs.example/sheet"}
	ml := &fakeMailer{}
	runs := fakeRuns{run: &models.IngestRun{Start: "2024-01-01", End: "2024-01-31"}}
	cfg := testConfig(t)

	summary, err := NewReporter(cfg, populatedStore(), pub, ml, runs).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Published)
	assert.Equal(t, "https://docs.example/sheet", summary.SpreadsheetURL)
	assert.Empty(t, summary.BackupPath)
	assert.True(t, summary.Emailed)
	assert.Len(t, pub.rows, 7)

	require.Len(t, ml.sent, 1)
	assert.Equal(t, Notification{
		Published:      true,
		SpreadsheetURL: "https://docs.example/sheet",
		PeriodStart:    "2024-01-01",
		PeriodEnd:      "2024-01-31",
	}, ml.sent[0])

	_, err = os.Stat(cfg.BackupPath)
	assert.True(t, os.IsNotExist(err), "no backup when the sheet is updated")
}

func TestReporter_FallsBackToCSV(t *testing.T) {
	pub := &fakePublisher{err: errors.New("403 forbidden")}
	ml := &fakeMailer{}
	cfg := testConfig(t)

	summary, err := NewReporter(cfg, populatedStore(), pub, ml, fakeRuns{}).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Published)
	assert.Equal(t, cfg.BackupPath, summary.BackupPath)
	assert.FileExists(t, cfg.BackupPath)

	require.Len(t, ml.sent, 1)
	assert.False(t, ml.sent[0].Published)
	assert.Equal(t, cfg.BackupPath, ml.sent[0].BackupPath)
	assert.Equal(t, "cfg-start", ml.sent[0].PeriodStart, "period falls back to config")
}

func TestReporter_NilPublisherWritesBackup(t *testing.T) {
	cfg := testConfig(t)

	summary, err := NewReporter(cfg, populatedStore(), nil, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Published)
	assert.False(t, summary.Emailed)
	assert.FileExists(t, cfg.BackupPath)
}

func TestReporter_MailFailureIsNotFatal(t *testing.T) {
	ml := &fakeMailer{err: errors.New("auth failed")}

	summary, err := NewReporter(testConfig(t), populatedStore(), &fakePublisher{url: "u"}, ml, nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Published)
	assert.False(t, summary.Emailed)
}

func TestReporter_EmptyTable(t *testing.T) {
	st := new(MockStore)
	st.On("HasAttempts", mock.Anything).Return(false, nil)
	pub := &fakePublisher{}
	ml := &fakeMailer{}

	summary, err := NewReporter(testConfig(t), st, pub, ml, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoAttempts)
	assert.Nil(t, summary)
	assert.Nil(t, pub.rows)
	assert.Empty(t, ml.sent)
	st.AssertNotCalled(t, "SummarizeAttempts", mock.Anything)
}

func TestReporter_StoreErrors(t *testing.T) {
	t.Run("check fails", func(t *testing.T) {
		st := new(MockStore)
		st.On("HasAttempts", mock.Anything).Return(false, errors.New("connection refused"))

		_, err := NewReporter(testConfig(t), st, nil, nil, nil).Run(context.Background())
		assert.ErrorIs(t, err, ErrNoAttempts)
	})

	t.Run("aggregate fails", func(t *testing.T) {
		st := new(MockStore)
		st.On("HasAttempts", mock.Anything).Return(true, nil)
		st.On("SummarizeAttempts", mock.Anything).Return(nil, errors.New("syntax error"))

		_, err := NewReporter(testConfig(t), st, nil, nil, nil).Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
	})
}
