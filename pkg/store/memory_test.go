package store

import (
	"context"
	"testing"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

func TestAckTrialIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.NewFake(0))
	if err := s.CreateTrial(ctx, rewiretypes.AlertTrial{ID: "t1", ExpectationID: "e1", SentAt: 0}); err != nil {
		t.Fatal(err)
	}
	ok1, err := s.AckTrial(ctx, "t1")
	if err != nil || !ok1 {
		t.Fatalf("first ack: ok=%v err=%v", ok1, err)
	}
	ok2, err := s.AckTrial(ctx, "t1")
	if err != nil || ok2 {
		t.Fatalf("second ack must return false, got ok=%v err=%v", ok2, err)
	}
}

func TestCloseViolationsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.NewFake(0))
	id, err := s.CreateViolation(ctx, rewiretypes.Violation{
		ExpectationID: "e1", Code: rewiretypes.CodeMissed, DetectedAt: 0,
		Message: "m", Evidence: map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CloseViolations(ctx, "e1", []rewiretypes.ViolationCode{rewiretypes.CodeMissed}); err != nil {
		t.Fatal(err)
	}
	if err := s.CloseViolations(ctx, "e1", []rewiretypes.ViolationCode{rewiretypes.CodeMissed}); err != nil {
		t.Fatalf("closing an already-closed code must be a no-op, got %v", err)
	}
	_, open, _ := s.OpenViolation(ctx, "e1", rewiretypes.CodeMissed)
	if open {
		t.Fatalf("violation %d should be closed", id)
	}
}

func TestOpenViolationSingleOpenPerCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.NewFake(0))
	if _, err := s.CreateViolation(ctx, rewiretypes.Violation{
		ExpectationID: "e1", Code: rewiretypes.CodeMissed, DetectedAt: 0,
		Message: "first", Evidence: map[string]any{"x": 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CloseViolations(ctx, "e1", []rewiretypes.ViolationCode{rewiretypes.CodeMissed}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateViolation(ctx, rewiretypes.Violation{
		ExpectationID: "e1", Code: rewiretypes.CodeMissed, DetectedAt: 10,
		Message: "second", Evidence: map[string]any{"x": 2},
	}); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, v := range s.violations {
		if v.ExpectationID == "e1" && v.Code == rewiretypes.CodeMissed && v.IsOpen {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 open violation, got %d", count)
	}
}

func TestAppendObservationRejectsBadKind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.NewFake(0))
	if _, err := s.AppendObservation(ctx, "e1", "bogus", nil); err == nil {
		t.Fatal("expected validation error for bad kind")
	}
}

func TestObservationsNewestFirstAndNonDecreasing(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(0)
	s := NewMemoryStore(fc)
	if _, err := s.AppendObservation(ctx, "e1", rewiretypes.KindStart, nil); err != nil {
		t.Fatal(err)
	}
	fc.Advance(5)
	if _, err := s.AppendObservation(ctx, "e1", rewiretypes.KindEnd, nil); err != nil {
		t.Fatal(err)
	}
	hist, err := s.RecentObservations(ctx, "e1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Kind != rewiretypes.KindEnd || hist[1].Kind != rewiretypes.KindStart {
		t.Fatalf("expected newest-first [end, start], got %+v", hist)
	}
	if hist[0].ObservedAt < hist[1].ObservedAt {
		t.Fatalf("observed_at must be non-decreasing over seq")
	}
}
