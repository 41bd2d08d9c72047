// Package ingest pulls attempt records from the statistics API, normalizes
// them and hands the accepted ones to the store.
package ingest

import (
	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

type NormalizeResult struct {
	Accepted   []models.Attempt
	Rejections []models.Rejection
	Total      int
}

func (r *NormalizeResult) AcceptedCount() int { return len(r.Accepted) }
func (r *NormalizeResult) RejectedCount() int { return len(r.Rejections) }

// Normalizer runs the Validator over a whole batch. It keeps no state
// between batches and does no logging; rejections are returned to the caller.
type Normalizer struct {
	validator *Validator
}

func NewNormalizer() *Normalizer {
	return &Normalizer{validator: NewValidator()}
}

func (n *Normalizer) Normalize(batch []models.RawAttempt) *NormalizeResult {
	result := &NormalizeResult{
		Accepted: make([]models.Attempt, 0, len(batch)),
		Total:    len(batch),
	}
	for i, record := range batch {
		attempt, rejection := n.validator.Validate(record, i)
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		result.Accepted = append(result.Accepted, *attempt)
	}
	return result
}
