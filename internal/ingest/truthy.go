package ingest

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

// Truthy reports whether a decoded JSON value counts as "set" under the
// statistics API's conventions: null, false, numeric zero, "" and empty
// arrays/objects are falsy, everything else is truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return true
		}
		return f != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// IsAbsent is the presence rule for required fields: a missing key and a
// falsy value are treated the same.
func IsAbsent(record models.RawAttempt, key string) bool {
	v, ok := record[key]
	return !ok || !Truthy(v)
}

// CoerceCorrectness maps is_correct onto the tri-state. Null or missing is
// Unknown; any other value goes through Truthy, so 0 and "" become False.
func CoerceCorrectness(record models.RawAttempt) models.Correctness {
	v, ok := record[FieldIsCorrect]
	if !ok || v == nil {
		return models.CorrectnessUnknown
	}
	return models.CorrectnessOf(Truthy(v))
}
