// Package evaluator implements the pure RuleEvaluator of spec.md §4.C:
// a deterministic function from (Expectation, observation history, now)
// to the violation codes that should be open or closed. It performs no
// I/O and carries no state between calls, so it can be property-tested
// exhaustively (spec.md §8).
package evaluator

import (
	"fmt"

	"github.com/rewire/rewire/pkg/rewiretypes"
)

// Evidence is the structured justification attached to an opened
// violation.
type Evidence map[string]any

// Verdict is the evaluator's opinion for one expectation at one tick.
// ToOpen and ToClose are disjoint: a code never appears in both, and a
// code absent from both means "no opinion" (leave any existing open
// violation as-is — this only happens when there isn't yet enough
// history to judge, e.g. no start observation at all).
type Verdict struct {
	ToOpen           map[rewiretypes.ViolationCode]Evidence
	ToClose          []rewiretypes.ViolationCode
	ShouldIssueTrial bool
	TrialsToExpire   []string
}

func newVerdict() Verdict {
	return Verdict{ToOpen: make(map[rewiretypes.ViolationCode]Evidence)}
}

func (v *Verdict) open(code rewiretypes.ViolationCode, ev Evidence) {
	v.ToOpen[code] = ev
}

func (v *Verdict) close(code rewiretypes.ViolationCode) {
	v.ToClose = append(v.ToClose, code)
}

// Evaluate dispatches to the schedule or alert-path rule set based on
// exp.Type. history must be newest-first. pendingTrials is ignored for
// schedule expectations.
func Evaluate(exp rewiretypes.Expectation, history []rewiretypes.Observation, pendingTrials []rewiretypes.AlertTrial, now int64) (Verdict, error) {
	switch exp.Type {
	case rewiretypes.TypeSchedule:
		return evaluateSchedule(exp, history, now), nil
	case rewiretypes.TypeAlertPath:
		return evaluateAlertPath(exp, history, pendingTrials, now), nil
	default:
		return Verdict{}, fmt.Errorf("evaluator: unknown expectation type %q", exp.Type)
	}
}

// newestOfKind returns the most recent observation of kind k, or nil.
func newestOfKind(history []rewiretypes.Observation, k rewiretypes.ObservationKind) *rewiretypes.Observation {
	for i := range history {
		if history[i].Kind == k {
			return &history[i]
		}
	}
	return nil
}

// nthNewestOfKind returns the n-th most recent (1-indexed) observation
// of kind k, or nil if fewer than n exist.
func nthNewestOfKind(history []rewiretypes.Observation, k rewiretypes.ObservationKind, n int) *rewiretypes.Observation {
	count := 0
	for i := range history {
		if history[i].Kind == k {
			count++
			if count == n {
				return &history[i]
			}
		}
	}
	return nil
}

// newestEndAtOrAfter returns the most recent end observation with
// ObservedAt >= threshold, or nil.
func newestEndAtOrAfter(history []rewiretypes.Observation, threshold int64) *rewiretypes.Observation {
	for i := range history {
		if history[i].Kind == rewiretypes.KindEnd && history[i].ObservedAt >= threshold {
			return &history[i]
		}
	}
	return nil
}

// newestEndBefore returns the most recent end observation with
// ObservedAt < threshold, or nil.
func newestEndBefore(history []rewiretypes.Observation, threshold int64) *rewiretypes.Observation {
	for i := range history {
		if history[i].Kind == rewiretypes.KindEnd && history[i].ObservedAt < threshold {
			return &history[i]
		}
	}
	return nil
}

func evaluateSchedule(exp rewiretypes.Expectation, history []rewiretypes.Observation, now int64) Verdict {
	v := newVerdict()
	params := exp.ScheduleParams

	s := newestOfKind(history, rewiretypes.KindStart)

	// missed
	if s == nil {
		// no opinion: not enough history to judge yet.
	} else {
		threshold := exp.ExpectedIntervalS + exp.ToleranceS
		age := now - s.ObservedAt
		if age > threshold {
			v.open(rewiretypes.CodeMissed, Evidence{
				"last_start_at": s.ObservedAt,
				"age_s":         age,
				"expected_s":    exp.ExpectedIntervalS,
				"tolerance_s":   exp.ToleranceS,
			})
		} else {
			v.close(rewiretypes.CodeMissed)
		}
	}

	var e, ePrev, s2 *rewiretypes.Observation
	running := false
	if s != nil {
		e = newestEndAtOrAfter(history, s.ObservedAt)
		ePrev = newestEndBefore(history, s.ObservedAt)
		s2 = nthNewestOfKind(history, rewiretypes.KindStart, 2)
		running = e == nil
	}

	// longrun
	if params.MaxRuntimeS > 0 {
		if s != nil && running {
			runningFor := now - s.ObservedAt
			if runningFor > params.MaxRuntimeS {
				v.open(rewiretypes.CodeLongrun, Evidence{
					"start_at":      s.ObservedAt,
					"running_for_s": runningFor,
					"max_runtime_s": params.MaxRuntimeS,
				})
			} else {
				v.close(rewiretypes.CodeLongrun)
			}
		} else {
			v.close(rewiretypes.CodeLongrun)
		}
	} else {
		v.close(rewiretypes.CodeLongrun)
	}

	// overlap
	if !params.AllowOverlap {
		opened := false
		if s != nil && running && s2 != nil {
			noInterveningEnd := ePrev == nil || s2.ObservedAt >= ePrev.ObservedAt
			if noInterveningEnd && s2.ObservedAt < s.ObservedAt {
				v.open(rewiretypes.CodeOverlap, Evidence{
					"newest_start_at": s.ObservedAt,
					"other_start_at":  s2.ObservedAt,
				})
				opened = true
			}
		}
		if !opened {
			v.close(rewiretypes.CodeOverlap)
		}
	} else {
		v.close(rewiretypes.CodeOverlap)
	}

	// spacing
	if params.MinSpacingS > 0 {
		if s != nil && e != nil && ePrev != nil {
			gap := s.ObservedAt - ePrev.ObservedAt
			if gap < params.MinSpacingS {
				v.open(rewiretypes.CodeSpacing, Evidence{
					"gap_s":         gap,
					"min_spacing_s": params.MinSpacingS,
					"prev_end_at":   ePrev.ObservedAt,
					"start_at":      s.ObservedAt,
				})
			} else {
				v.close(rewiretypes.CodeSpacing)
			}
		} else {
			v.close(rewiretypes.CodeSpacing)
		}
	} else {
		v.close(rewiretypes.CodeSpacing)
	}

	return v
}

func evaluateAlertPath(exp rewiretypes.Expectation, history []rewiretypes.Observation, pendingTrials []rewiretypes.AlertTrial, now int64) Verdict {
	v := newVerdict()
	params := exp.AlertPathParams

	// "last observation of any kind" resets the test-interval timer,
	// preserved per spec.md §9 Open Questions (ping counts).
	var lastAt *int64
	if len(history) > 0 {
		t := history[0].ObservedAt
		lastAt = &t
	}

	v.ShouldIssueTrial = lastAt == nil || now-*lastAt >= params.TestIntervalS

	threshold := params.AckWindowS + exp.ToleranceS
	var expiredEvidence Evidence
	var oldestExpired *rewiretypes.AlertTrial
	for i := range pendingTrials {
		t := &pendingTrials[i]
		age := now - t.SentAt
		if age > threshold {
			v.TrialsToExpire = append(v.TrialsToExpire, t.ID)
			if oldestExpired == nil || t.SentAt < oldestExpired.SentAt {
				oldestExpired = t
				expiredEvidence = Evidence{
					"trial_id": t.ID,
					"sent_at":  t.SentAt,
					"age_s":    age,
				}
			}
		}
	}

	if len(v.TrialsToExpire) > 0 {
		v.open(rewiretypes.CodeNoAck, expiredEvidence)
	} else {
		v.close(rewiretypes.CodeNoAck)
	}

	return v
}
