package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeSheetsAPI struct {
	mu          sync.Mutex
	title       string
	failUpdate  bool
	clearPath   string
	updatePath  string
	updateQuery string
	values      [][]any
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetUrl": "https://docs.google.com/spreadsheets/d/sheet-1/edit",
			"sheets": []any{
				map[string]any{"properties": map[string]any{"title": f.title}},
			},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":clear"):
		f.clearPath = r.URL.Path
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		if f.failUpdate {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": {"code": 403, "message": "no access"}}`))
			return
		}
		f.updatePath = r.URL.Path
		f.updateQuery = r.URL.RawQuery
		var body struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.values = body.Values
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestPublisher(t *testing.T, api *fakeSheetsAPI) *SheetPublisher {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := NewSheetPublisher(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return p
}

func TestSheetPublisher_Publish(t *testing.T) {
	api := &fakeSheetsAPI{title: "Metrics"}
	p := newTestPublisher(t, api)

	url, err := p.Publish(context.Background(), MetricRows(testSummary()))
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/sheet-1/edit", url)

	assert.Contains(t, api.clearPath, "'Metrics'")
	assert.Contains(t, api.updatePath, "'Metrics'!A1")
	assert.Contains(t, api.updateQuery, "valueInputOption=RAW")

	require.Len(t, api.values, 8)
	assert.Equal(t, []any{"Metric", "Value"}, api.values[0])
	assert.Equal(t, []any{"Total attempts", float64(10)}, api.values[1])
	assert.Equal(t, []any{"Last attempt", "2024-01-31 18:00:00"}, api.values[7])
}

func TestSheetPublisher_UpdateFails(t *testing.T) {
	api := &fakeSheetsAPI{title: "Metrics", failUpdate: true}
	p := newTestPublisher(t, api)

	_, err := p.Publish(context.Background(), MetricRows(testSummary()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update worksheet")
}

func TestSheetPublisher_RequiresID(t *testing.T) {
	_, err := NewSheetPublisher(context.Background(), "", option.WithoutAuthentication())
	assert.Error(t, err)
}

func TestQuoteSheetName(t *testing.T) {
	assert.Equal(t, "'Sheet1'", quoteSheetName("Sheet1"))
	assert.Equal(t, "'Bob''s data'", quoteSheetName("Bob's data"))
}
