package rewiretypes

import "github.com/rewire/rewire/pkg/rewireerr"

// ValidateNewExpectation checks the constraints spec.md §3 places on a
// newly admin-created Expectation (before an id/timestamps are
// assigned).
func ValidateNewExpectation(exp Expectation) error {
	switch exp.Type {
	case TypeSchedule, TypeAlertPath:
	default:
		return rewireerr.Validation("type must be schedule or alert_path")
	}
	if exp.Name == "" {
		return rewireerr.Validation("name must not be empty")
	}
	if exp.OwnerContact == "" {
		return rewireerr.Validation("owner_contact must not be empty")
	}
	if exp.ExpectedIntervalS < 60 {
		return rewireerr.Validation("expected_interval_s must be >= 60")
	}
	if exp.ToleranceS < 0 {
		return rewireerr.Validation("tolerance_s must be >= 0")
	}
	switch exp.Type {
	case TypeSchedule:
		if exp.ScheduleParams.MaxRuntimeS < 0 || exp.ScheduleParams.MinSpacingS < 0 {
			return rewireerr.Validation("schedule params must be >= 0")
		}
	case TypeAlertPath:
		if exp.AlertPathParams.AckWindowS <= 0 {
			return rewireerr.Validation("ack_window_s must be positive")
		}
		if exp.AlertPathParams.TestIntervalS <= 0 {
			return rewireerr.Validation("test_interval_s must be positive")
		}
	}
	return nil
}
