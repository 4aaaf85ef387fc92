package evaluator

import (
	"testing"

	"github.com/rewire/rewire/pkg/rewiretypes"
)

func obs(seq int64, kind rewiretypes.ObservationKind, at int64) rewiretypes.Observation {
	return rewiretypes.Observation{Seq: seq, Kind: kind, ObservedAt: at}
}

// newestFirst reverses an oldest-first slice into the newest-first order
// the evaluator expects.
func newestFirst(o []rewiretypes.Observation) []rewiretypes.Observation {
	out := make([]rewiretypes.Observation, len(o))
	for i, v := range o {
		out[len(o)-1-i] = v
	}
	return out
}

func TestScheduleMissed(t *testing.T) {
	exp := rewiretypes.Expectation{Type: rewiretypes.TypeSchedule, ExpectedIntervalS: 60, ToleranceS: 10}

	// t=5 start. t=105: age=100 > threshold(70) -> missed opens.
	hist := newestFirst([]rewiretypes.Observation{obs(1, rewiretypes.KindStart, 5)})
	v := evaluateSchedule(exp, hist, 105)
	ev, open := v.ToOpen[rewiretypes.CodeMissed]
	if !open {
		t.Fatalf("expected missed to open, got %+v", v)
	}
	if ev["age_s"] != int64(100) {
		t.Fatalf("age_s = %v, want 100", ev["age_s"])
	}

	// t=110 new start observed -> missed closes.
	hist2 := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 5),
		obs(2, rewiretypes.KindStart, 110),
	})
	v2 := evaluateSchedule(exp, hist2, 110)
	found := false
	for _, c := range v2.ToClose {
		if c == rewiretypes.CodeMissed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missed to close, got %+v", v2)
	}
}

func TestScheduleMissedNoOpinionWithoutStart(t *testing.T) {
	exp := rewiretypes.Expectation{Type: rewiretypes.TypeSchedule, ExpectedIntervalS: 60, ToleranceS: 10}
	v := evaluateSchedule(exp, nil, 1000)
	if _, open := v.ToOpen[rewiretypes.CodeMissed]; open {
		t.Fatalf("expected no opinion, got open")
	}
	for _, c := range v.ToClose {
		if c == rewiretypes.CodeMissed {
			t.Fatalf("expected no opinion, got close")
		}
	}
}

func TestScheduleMissedBoundaryNotViolated(t *testing.T) {
	// age == threshold exactly must NOT be missed (strict >).
	exp := rewiretypes.Expectation{Type: rewiretypes.TypeSchedule, ExpectedIntervalS: 60, ToleranceS: 10}
	hist := newestFirst([]rewiretypes.Observation{obs(1, rewiretypes.KindStart, 0)})
	v := evaluateSchedule(exp, hist, 70)
	if _, open := v.ToOpen[rewiretypes.CodeMissed]; open {
		t.Fatalf("age==threshold must not open missed")
	}
}

func TestScheduleLongrun(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeSchedule, ExpectedIntervalS: 60, ToleranceS: 0,
		ScheduleParams: rewiretypes.ScheduleParams{MaxRuntimeS: 30},
	}

	// t=0 start. t=40 checker: longrun opens (running_for=40>30).
	hist := newestFirst([]rewiretypes.Observation{obs(1, rewiretypes.KindStart, 0)})
	v := evaluateSchedule(exp, hist, 40)
	ev, open := v.ToOpen[rewiretypes.CodeLongrun]
	if !open || ev["running_for_s"] != int64(40) {
		t.Fatalf("expected longrun open with running_for_s=40, got %+v", v)
	}

	// t=45 end. t=50 checker: longrun closes.
	hist2 := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 0),
		obs(2, rewiretypes.KindEnd, 45),
	})
	v2 := evaluateSchedule(exp, hist2, 50)
	closed := false
	for _, c := range v2.ToClose {
		if c == rewiretypes.CodeLongrun {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("expected longrun closed, got %+v", v2)
	}
}

func TestScheduleLongrunBoundaryNotViolated(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeSchedule,
		ScheduleParams: rewiretypes.ScheduleParams{MaxRuntimeS: 30},
	}
	hist := newestFirst([]rewiretypes.Observation{obs(1, rewiretypes.KindStart, 0)})
	v := evaluateSchedule(exp, hist, 30)
	if _, open := v.ToOpen[rewiretypes.CodeLongrun]; open {
		t.Fatalf("running_for==max_runtime_s must not open longrun")
	}
}

func TestScheduleOverlap(t *testing.T) {
	exp := rewiretypes.Expectation{Type: rewiretypes.TypeSchedule}

	// t=0 start, t=10 start (no end in between). t=15 overlap opens.
	hist := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 0),
		obs(2, rewiretypes.KindStart, 10),
	})
	v := evaluateSchedule(exp, hist, 15)
	ev, open := v.ToOpen[rewiretypes.CodeOverlap]
	if !open || ev["newest_start_at"] != int64(10) || ev["other_start_at"] != int64(0) {
		t.Fatalf("expected overlap open with evidence, got %+v", v)
	}

	// t=20 end. t=25 overlap closes.
	hist2 := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 0),
		obs(2, rewiretypes.KindStart, 10),
		obs(3, rewiretypes.KindEnd, 20),
	})
	v2 := evaluateSchedule(exp, hist2, 25)
	closed := false
	for _, c := range v2.ToClose {
		if c == rewiretypes.CodeOverlap {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("expected overlap closed, got %+v", v2)
	}
}

func TestScheduleSpacing(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeSchedule,
		ScheduleParams: rewiretypes.ScheduleParams{MinSpacingS: 100},
	}
	// t=0 start, t=10 end, t=50 start, t=55 end. t=60: gap=40 < 100.
	hist := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 0),
		obs(2, rewiretypes.KindEnd, 10),
		obs(3, rewiretypes.KindStart, 50),
		obs(4, rewiretypes.KindEnd, 55),
	})
	v := evaluateSchedule(exp, hist, 60)
	ev, open := v.ToOpen[rewiretypes.CodeSpacing]
	if !open || ev["gap_s"] != int64(40) {
		t.Fatalf("expected spacing open with gap_s=40, got %+v", v)
	}
}

func TestScheduleSpacingBoundaryNotViolated(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeSchedule,
		ScheduleParams: rewiretypes.ScheduleParams{MinSpacingS: 100},
	}
	hist := newestFirst([]rewiretypes.Observation{
		obs(1, rewiretypes.KindStart, 0),
		obs(2, rewiretypes.KindEnd, 10),
		obs(3, rewiretypes.KindStart, 110),
		obs(4, rewiretypes.KindEnd, 115),
	})
	v := evaluateSchedule(exp, hist, 120)
	if _, open := v.ToOpen[rewiretypes.CodeSpacing]; open {
		t.Fatalf("gap==min_spacing_s must not open spacing")
	}
}

func TestAlertPathHappyPath(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeAlertPath, ToleranceS: 0,
		AlertPathParams: rewiretypes.AlertPathParams{TestIntervalS: 3600, AckWindowS: 300},
	}
	// t=0 no history yet: should issue trial.
	v := evaluateAlertPath(exp, nil, nil, 0)
	if !v.ShouldIssueTrial {
		t.Fatalf("expected should issue trial with no history")
	}

	// t=120 the trial has been acked, so no pending trials are left;
	// no expiry, no_ack should close.
	v2 := evaluateAlertPath(exp, nil, nil, 120)
	found := false
	for _, c := range v2.ToClose {
		if c == rewiretypes.CodeNoAck {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected no_ack closed, got %+v", v2)
	}
}

func TestAlertPathExpiry(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeAlertPath, ToleranceS: 0,
		AlertPathParams: rewiretypes.AlertPathParams{TestIntervalS: 3600, AckWindowS: 300},
	}
	trial := rewiretypes.AlertTrial{ID: "T2", SentAt: 0, Status: rewiretypes.TrialPending}

	// t=400: age=400 > 300 -> expires, no_ack opens.
	v := evaluateAlertPath(exp, nil, []rewiretypes.AlertTrial{trial}, 400)
	if len(v.TrialsToExpire) != 1 || v.TrialsToExpire[0] != "T2" {
		t.Fatalf("expected T2 to expire, got %+v", v.TrialsToExpire)
	}
	ev, open := v.ToOpen[rewiretypes.CodeNoAck]
	if !open || ev["trial_id"] != "T2" || ev["age_s"] != int64(400) {
		t.Fatalf("expected no_ack open with trial evidence, got %+v", v)
	}
}

func TestAlertPathAckWindowBoundaryNotExpired(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeAlertPath,
		AlertPathParams: rewiretypes.AlertPathParams{AckWindowS: 300},
	}
	trial := rewiretypes.AlertTrial{ID: "T1", SentAt: 0, Status: rewiretypes.TrialPending}
	v := evaluateAlertPath(exp, nil, []rewiretypes.AlertTrial{trial}, 300)
	if len(v.TrialsToExpire) != 0 {
		t.Fatalf("age==ack_window_s must not expire the trial")
	}
}

func TestPingResetsAlertPathTimer(t *testing.T) {
	exp := rewiretypes.Expectation{
		Type: rewiretypes.TypeAlertPath,
		AlertPathParams: rewiretypes.AlertPathParams{TestIntervalS: 3600},
	}
	hist := newestFirst([]rewiretypes.Observation{obs(1, rewiretypes.KindPing, 100)})
	v := evaluateAlertPath(exp, hist, nil, 200)
	if v.ShouldIssueTrial {
		t.Fatalf("a recent ping of any kind should reset the test-interval timer")
	}
}
