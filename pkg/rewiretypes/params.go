package rewiretypes

import (
	"encoding/json"
	"fmt"
)

// MarshalParams encodes exp's type-specific params as the opaque JSON
// blob both pkg/store (as params_json, on disk) and pkg/httpapi (as
// the params_json admin form field, per spec.md §6) exchange.
func MarshalParams(exp Expectation) (string, error) {
	var v any
	switch exp.Type {
	case TypeSchedule:
		v = exp.ScheduleParams
	case TypeAlertPath:
		v = exp.AlertPathParams
	default:
		return "", fmt.Errorf("unknown expectation type %q", exp.Type)
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// UnmarshalParams decodes raw into exp's type-specific params field.
// Malformed JSON is returned unwrapped; callers attach the kind that
// fits their context (rewireerr.ParamParse for stored rows,
// ValidationError for admin input).
func UnmarshalParams(exp *Expectation, raw string) error {
	switch exp.Type {
	case TypeSchedule:
		var p ScheduleParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		exp.ScheduleParams = p
	case TypeAlertPath:
		var p AlertPathParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return err
		}
		exp.AlertPathParams = p
	default:
		return fmt.Errorf("unknown expectation type %q", exp.Type)
	}
	return nil
}
