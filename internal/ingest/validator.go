package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
	"github.com/shrimpsizemoose/attemptsync/internal/passback"
)

const (
	FieldUserID         = "lti_user_id"
	FieldPassbackParams = "passback_params"
	FieldAttemptType    = "attempt_type"
	FieldIsCorrect      = "is_correct"
	FieldCreatedAt      = "created_at"
)

// RequiredFields must all be present and truthy for a record to be accepted.
var RequiredFields = []string{FieldUserID, FieldPassbackParams, FieldAttemptType, FieldCreatedAt}

const attemptTypeRule = "oneof=" + models.AttemptTypeRun + " " + models.AttemptTypeSubmit

// Validator turns one raw record into an Attempt or a Rejection.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate applies, in order: presence of required fields, the attempt_type
// enumeration, passback_params parsing and is_correct coercion. Exactly one
// of the results is non-nil.
func (v *Validator) Validate(record models.RawAttempt, index int) (attempt *models.Attempt, rejection *models.Rejection) {
	defer func() {
		if r := recover(); r != nil {
			attempt = nil
			rejection = &models.Rejection{
				Index:  index,
				Reason: models.RejectUnexpected,
				Cause:  fmt.Sprint(r),
			}
		}
	}()

	var missing []string
	for _, key := range RequiredFields {
		if IsAbsent(record, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &models.Rejection{
			Index:         index,
			Reason:        models.RejectMissingFields,
			MissingFields: missing,
		}
	}

	rawType := record[FieldAttemptType]
	attemptType, ok := rawType.(string)
	if !ok || v.validate.Var(attemptType, attemptTypeRule) != nil {
		return nil, &models.Rejection{
			Index:  index,
			Reason: models.RejectInvalidAttemptType,
			Value:  rawType,
		}
	}

	params, err := passback.Parse(record[FieldPassbackParams])
	if err != nil {
		rej := &models.Rejection{
			Index:  index,
			Reason: models.RejectBadPassback,
			Value:  record[FieldPassbackParams],
			Cause:  err.Error(),
		}
		var perr *passback.ParseError
		if errors.As(err, &perr) {
			rej.Value = perr.Raw
			rej.Cause = perr.Err.Error()
		}
		return nil, rej
	}

	isCorrect := CoerceCorrectness(record)

	userID, err := identifierText(record[FieldUserID])
	if err != nil {
		return nil, unexpected(index, fmt.Errorf("%s: %w", FieldUserID, err))
	}
	createdAt, ok := record[FieldCreatedAt].(string)
	if !ok {
		return nil, unexpected(index, fmt.Errorf("%s: expected string, got %T", FieldCreatedAt, record[FieldCreatedAt]))
	}

	attempt = &models.Attempt{
		UserID:               userID,
		OAuthConsumerKey:     params.OAuthConsumerKey,
		LISResultSourcedID:   params.LISResultSourcedID,
		LISOutcomeServiceURL: params.LISOutcomeServiceURL,
		IsCorrect:            isCorrect,
		AttemptType:          attemptType,
		CreatedAt:            createdAt,
	}
	if err := attempt.Validate(); err != nil {
		return nil, unexpected(index, err)
	}
	return attempt, nil
}

func unexpected(index int, err error) *models.Rejection {
	return &models.Rejection{
		Index:  index,
		Reason: models.RejectUnexpected,
		Cause:  err.Error(),
	}
}

// identifierText keeps numeric ids as their exact decimal text.
func identifierText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("unsupported identifier type %T", v)
	}
}
