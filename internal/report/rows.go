// Package report turns the attempts table into a short metrics summary and
// delivers it to a spreadsheet, a local CSV file and an email.
package report

import (
	"fmt"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

var header = []string{"Metric", "Value"}

type Row struct {
	Metric string
	Value  any
}

// MetricRows lays the summary out in the order it is published.
func MetricRows(s *models.AttemptSummary) []Row {
	return []Row{
		{"Total attempts", s.TotalAttempts},
		{"Correct attempts", s.CorrectAttempts},
		{"Submits", s.Submits},
		{"Runs", s.Runs},
		{"Unique users", s.UniqueUsers},
		{"First attempt", textOrEmpty(s.FirstAttempt)},
		{"Last attempt", textOrEmpty(s.LastAttempt)},
	}
}

func textOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// table renders the rows with a header line, the way both sinks want them.
func table(rows []Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, header)
	for _, r := range rows {
		out = append(out, []string{r.Metric, fmt.Sprint(r.Value)})
	}
	return out
}
