package checker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/notify"
	"github.com/rewire/rewire/pkg/reconcile"
	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
	"github.com/rewire/rewire/pkg/store"
	"github.com/rewire/rewire/pkg/trial"
)

type nopNotifier struct{}

func (nopNotifier) Deliver(context.Context, string, string, string, notify.Payload) error { return nil }

// paramParseOnceStore wraps a Store and makes its first GetExpectation
// call for a given id fail with a ParamParseError, simulating a
// corrupted params_json row. MemoryStore itself never produces this
// error (it has no JSON round-trip), so this double is how the
// checker's config_error handling is exercised without the cgo
// sqlite3 backend.
type paramParseOnceStore struct {
	store.Store
	failOnce map[string]bool
}

func (s *paramParseOnceStore) GetExpectation(ctx context.Context, id string) (rewiretypes.Expectation, error) {
	if s.failOnce[id] {
		delete(s.failOnce, id)
		exp, _ := s.Store.GetExpectation(ctx, id)
		return exp, rewireerr.ParamParse(id, context.DeadlineExceeded)
	}
	return s.Store.GetExpectation(ctx, id)
}

func TestLoopTicksAndReconciles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clock.NewFake(1000)
	s := store.NewMemoryStore(fc)
	tm := trial.New(s, fc)
	r := reconcile.New(s, fc, tm, nopNotifier{}, zerolog.Nop(), "http://base", 0, time.Second)

	exp := rewiretypes.Expectation{
		ID: "e1", Type: rewiretypes.TypeSchedule, Name: "job", OwnerContact: "ops@example.com",
		ExpectedIntervalS: 60, ToleranceS: 0, Enabled: true,
	}
	if err := s.CreateExpectation(ctx, exp); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendObservation(ctx, "e1", rewiretypes.KindStart, nil); err != nil {
		t.Fatal(err)
	}
	fc.Advance(100) // well past the 60s threshold, so the first tick should open "missed".

	loop := New(s, r, zerolog.Nop(), 1)
	go loop.Start(ctx)
	defer loop.Stop()

	deadline := time.After(3 * time.Second)
	for {
		_, open, err := s.OpenViolation(ctx, "e1", rewiretypes.CodeMissed)
		if err != nil {
			t.Fatal(err)
		}
		if open {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for checker tick to open missed violation")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestLoopStopIsCooperative(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(0)
	s := store.NewMemoryStore(fc)
	tm := trial.New(s, fc)
	r := reconcile.New(s, fc, tm, nopNotifier{}, zerolog.Nop(), "http://base", 0, time.Second)

	loop := New(s, r, zerolog.Nop(), 1)
	go loop.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSafeReconcileOpensConfigErrorOnParamParseFailure(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(1000)
	inner := store.NewMemoryStore(fc)
	s := &paramParseOnceStore{Store: inner, failOnce: map[string]bool{"e1": true}}

	tm := trial.New(s, fc)
	r := reconcile.New(s, fc, tm, nopNotifier{}, zerolog.Nop(), "http://base", 0, time.Second)

	exp := rewiretypes.Expectation{
		ID: "e1", Type: rewiretypes.TypeSchedule, Name: "job", OwnerContact: "ops@example.com",
		ExpectedIntervalS: 60, Enabled: true,
	}
	if err := inner.CreateExpectation(ctx, exp); err != nil {
		t.Fatal(err)
	}

	loop := New(s, r, zerolog.Nop(), 60)
	loop.safeReconcile(ctx, "e1")

	_, open, err := s.OpenViolation(ctx, "e1", rewiretypes.CodeConfigError)
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Fatalf("expected config_error open after a ParamParseError from GetExpectation")
	}

	// The next tick's GetExpectation succeeds (failOnce consumed), so
	// Reconcile runs normally and clears the config_error.
	loop.safeReconcile(ctx, "e1")
	_, open, err = s.OpenViolation(ctx, "e1", rewiretypes.CodeConfigError)
	if err != nil {
		t.Fatal(err)
	}
	if open {
		t.Fatalf("expected config_error closed once GetExpectation succeeds")
	}
}
