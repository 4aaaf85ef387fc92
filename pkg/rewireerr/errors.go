// Package rewireerr implements the error taxonomy of spec.md §7 as
// sentinel errors plus wrapping, matching the teacher's own error
// handling idiom (fmt.Errorf %w, errors.Is/errors.As) rather than a
// bespoke error-code framework.
package rewireerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap these with fmt.Errorf("...: %w", ErrX) to attach
// context; callers dispatch with errors.Is.
var (
	// ErrValidation covers bad admin inputs or observation kinds.
	ErrValidation = errors.New("validation error")
	// ErrAuth covers a missing or incorrect admin bearer token.
	ErrAuth = errors.New("auth error")
	// ErrNotFound covers an unknown expectation or trial id.
	ErrNotFound = errors.New("not found")
	// ErrStore covers a transient backend failure.
	ErrStore = errors.New("store error")
	// ErrEvaluator covers a logic bug triggered by malformed stored
	// data; the offending expectation is skipped for the tick, never
	// panicking the checker loop.
	ErrEvaluator = errors.New("evaluator error")
	// ErrNotifier covers an SMTP/webhook delivery failure.
	ErrNotifier = errors.New("notifier error")
	// ErrParamParse covers a malformed params_json on a stored
	// expectation.
	ErrParamParse = errors.New("param parse error")
)

// Validation wraps ErrValidation with a machine-readable reason.
func Validation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrValidation)
}

// NotFound wraps ErrNotFound with the missing id.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q not found: %w", what, id, ErrNotFound)
}

// Store wraps ErrStore with the failed operation's name.
func Store(op string, cause error) error {
	return fmt.Errorf("store: %s: %w: %v", op, ErrStore, cause)
}

// ParamParse wraps ErrParamParse with the expectation id.
func ParamParse(expectationID string, cause error) error {
	return fmt.Errorf("expectation %q: %w: %v", expectationID, ErrParamParse, cause)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
