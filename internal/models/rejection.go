package models

import (
	"fmt"
	"strings"
)

type RejectionReason string

const (
	RejectMissingFields      RejectionReason = "missing_fields"
	RejectInvalidAttemptType RejectionReason = "invalid_attempt_type"
	RejectBadPassback        RejectionReason = "unparsable_passback"
	RejectUnexpected         RejectionReason = "unexpected"
)

// Rejection records why the record at Index was excluded from persistence.
// It is only logged and counted, never stored.
type Rejection struct {
	Index         int
	Reason        RejectionReason
	MissingFields []string
	// Value is the offending raw value: the attempt_type for
	// RejectInvalidAttemptType, the passback text for RejectBadPassback.
	Value any
	Cause string
}

func (r Rejection) Error() string {
	return fmt.Sprintf("record %d: %s", r.Index, r.Detail())
}

func (r Rejection) Detail() string {
	switch r.Reason {
	case RejectMissingFields:
		return fmt.Sprintf("missing fields [%s]", strings.Join(r.MissingFields, ", "))
	case RejectInvalidAttemptType:
		return fmt.Sprintf("invalid attempt_type %q", fmt.Sprint(r.Value))
	case RejectBadPassback:
		return fmt.Sprintf("unable to parse passback_params %q: %s", fmt.Sprint(r.Value), r.Cause)
	default:
		return fmt.Sprintf("unexpected error: %s", r.Cause)
	}
}
