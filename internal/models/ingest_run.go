package models

import "time"

// IngestRun is what the journal remembers about the last ingestion.
type IngestRun struct {
	Start      string
	End        string
	Fetched    int
	Accepted   int
	Rejected   int
	Inserted   int
	FinishedAt time.Time
}
