// Package passback extracts LTI outcome-service metadata from the
// passback_params field of an attempt record.
package passback

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	KeyOAuthConsumerKey     = "oauth_consumer_key"
	KeyLISResultSourcedID   = "lis_result_sourcedid"
	KeyLISOutcomeServiceURL = "lis_outcome_service_url"
)

// Params holds the outcome-service fields. A nil field means the key was
// absent or None in the source literal.
type Params struct {
	OAuthConsumerKey     *string
	LISResultSourcedID   *string
	LISOutcomeServiceURL *string
}

// ParseError carries the verbatim input that could not be parsed.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse passback_params %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes raw, which must be a string holding a mapping literal.
// It never panics; every failure is a *ParseError.
func Parse(raw any) (params *Params, err error) {
	text, ok := raw.(string)
	if !ok {
		return nil, &ParseError{Raw: rawText(raw), Err: fmt.Errorf("expected string, got %T", raw)}
	}

	defer func() {
		if r := recover(); r != nil {
			params = nil
			err = &ParseError{Raw: text, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	v, err := ParseLiteral(text)
	if err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}
	dict, ok := v.(*Dict)
	if !ok {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("%w: got %s", ErrNotMapping, kindOf(v))}
	}

	params = &Params{}
	fields := []struct {
		key string
		dst **string
	}{
		{KeyOAuthConsumerKey, &params.OAuthConsumerKey},
		{KeyLISResultSourcedID, &params.LISResultSourcedID},
		{KeyLISOutcomeServiceURL, &params.LISOutcomeServiceURL},
	}
	for _, f := range fields {
		val, found := dict.Lookup(f.key)
		if !found {
			continue
		}
		s, err := scalarText(val)
		if err != nil {
			return nil, &ParseError{Raw: text, Err: fmt.Errorf("%s: %w", f.key, err)}
		}
		*f.dst = s
	}
	return params, nil
}

// scalarText renders a literal scalar the way the source system prints it.
func scalarText(v any) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = t
	case Number:
		s = t.Text
	case bool:
		s = "False"
		if t {
			s = "True"
		}
	case Bytes:
		if !utf8.Valid(t) {
			return nil, fmt.Errorf("bytes value is not valid UTF-8")
		}
		s = string(t)
	default:
		return nil, fmt.Errorf("unsupported value of kind %s", kindOf(v))
	}
	return &s, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case string:
		return "str"
	case Bytes:
		return "bytes"
	case bool:
		return "bool"
	case Number:
		return "number"
	case []any:
		return "list"
	case Tuple:
		return "tuple"
	case Set:
		return "set"
	case *Dict:
		return "dict"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func rawText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
