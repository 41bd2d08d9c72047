package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	AttemptTypeRun    = "run"
	AttemptTypeSubmit = "submit"
)

// RawAttempt is one record as returned by the statistics API. Nothing about
// its shape is trusted.
type RawAttempt map[string]any

// Correctness is the tri-state outcome of an attempt.
type Correctness int8

const (
	CorrectnessUnknown Correctness = iota
	CorrectnessFalse
	CorrectnessTrue
)

func CorrectnessOf(v bool) Correctness {
	if v {
		return CorrectnessTrue
	}
	return CorrectnessFalse
}

func (c Correctness) String() string {
	switch c {
	case CorrectnessTrue:
		return "true"
	case CorrectnessFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Value stores Unknown as NULL.
func (c Correctness) Value() (driver.Value, error) {
	switch c {
	case CorrectnessTrue:
		return true, nil
	case CorrectnessFalse:
		return false, nil
	default:
		return nil, nil
	}
}

func (c *Correctness) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = CorrectnessUnknown
	case bool:
		*c = CorrectnessOf(v)
	case int64:
		*c = CorrectnessOf(v != 0)
	case []byte:
		return c.scanText(string(v))
	case string:
		return c.scanText(v)
	default:
		return fmt.Errorf("cannot scan %T into Correctness", src)
	}
	return nil
}

func (c *Correctness) scanText(s string) error {
	switch s {
	case "t", "true", "TRUE", "1":
		*c = CorrectnessTrue
	case "f", "false", "FALSE", "0":
		*c = CorrectnessFalse
	default:
		return fmt.Errorf("cannot scan %q into Correctness", s)
	}
	return nil
}

// Attempt is the normalized, persistable form of a RawAttempt.
type Attempt struct {
	UserID               string      `db:"user_id" json:"user_id" validate:"required,max=100"`
	OAuthConsumerKey     *string     `db:"oauth_consumer_key" json:"oauth_consumer_key"`
	LISResultSourcedID   *string     `db:"lis_result_sourcedid" json:"lis_result_sourcedid"`
	LISOutcomeServiceURL *string     `db:"lis_outcome_service_url" json:"lis_outcome_service_url"`
	IsCorrect            Correctness `db:"is_correct" json:"is_correct"`
	AttemptType          string      `db:"attempt_type" json:"attempt_type" validate:"required,oneof=run submit"`
	CreatedAt            string      `db:"created_at" json:"created_at" validate:"required"`
}

var validate = validator.New()

func (a *Attempt) Validate() error {
	return validate.Struct(a)
}

// AttemptSummary is the aggregate read by the reporting job.
type AttemptSummary struct {
	TotalAttempts   int64   `db:"total_attempts"`
	CorrectAttempts int64   `db:"correct_attempts"`
	Submits         int64   `db:"submits"`
	Runs            int64   `db:"runs"`
	UniqueUsers     int64   `db:"unique_users"`
	FirstAttempt    *string `db:"first_attempt"`
	LastAttempt     *string `db:"last_attempt"`
}
