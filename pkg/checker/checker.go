// Package checker implements the CheckerLoop of spec.md §4.F: a single
// cooperative task that wakes every check_every_s, enumerates enabled
// expectations, and runs the Reconciler for each — containing any one
// expectation's failure so it never stops the loop.
//
// Grounded on the teacher's pkg/cron/service.go Start/Stop/timer idiom
// (deps-struct injecting Store/Reconciler/Logger, a mutex-guarded running
// flag) and on the panic/error containment idiom in
// other_examples/...marcus-qen-legator__internal-controlplane-alerts-engine.go.go's
// safeEvaluate wrapper.
package checker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/obs"
	"github.com/rewire/rewire/pkg/reconcile"
	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/store"
)

// Loop periodically reconciles every enabled expectation.
type Loop struct {
	store       store.Store
	reconciler  *reconcile.Reconciler
	log         zerolog.Logger
	checkEveryS int64
	metrics     *obs.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New returns a Loop that ticks every checkEveryS seconds.
func New(s store.Store, r *reconcile.Reconciler, log zerolog.Logger, checkEveryS int64) *Loop {
	return &Loop{
		store:       s,
		reconciler:  r,
		log:         log.With().Str("component", "checker").Logger(),
		checkEveryS: checkEveryS,
	}
}

// SetMetrics attaches a Metrics registry the loop increments on every
// tick. Optional: a nil-metrics Loop just skips the increment.
func (l *Loop) SetMetrics(m *obs.Metrics) {
	l.metrics = m
}

// Start runs the loop until ctx is canceled or Stop is called. It
// blocks the calling goroutine; callers typically `go loop.Start(ctx)`.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	defer close(l.doneCh)

	ticker := time.NewTicker(time.Duration(l.checkEveryS) * time.Second)
	defer ticker.Stop()

	l.log.Info().Int64("check_every_s", l.checkEveryS).Msg("checker: started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("checker: context canceled, stopping")
			return
		case <-l.stopCh:
			l.log.Info().Msg("checker: stop requested")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Stop requests cooperative shutdown: the loop finishes the expectation
// it is currently reconciling (not mid-reconciliation) and exits.
// Blocks until the loop has returned.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// tick runs one reconciliation pass over every enabled expectation. A
// panic or error from one expectation is recovered/logged and never
// aborts the remaining expectations.
func (l *Loop) tick(ctx context.Context) {
	if l.metrics != nil {
		l.metrics.TicksTotal.Inc()
	}
	expectations, err := l.store.ListEnabled(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("checker: list_enabled failed, skipping this tick")
		return
	}

	for _, exp := range expectations {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}
		l.safeReconcile(ctx, exp.ID)
	}
}

func (l *Loop) safeReconcile(ctx context.Context, expectationID string) {
	defer func() {
		if p := recover(); p != nil {
			l.log.Error().Interface("panic", p).Str("expectation_id", expectationID).Msg("checker: reconcile panicked, expectation skipped this tick")
		}
	}()
	exp, err := l.store.GetExpectation(ctx, expectationID)
	if err != nil {
		if errors.Is(err, rewireerr.ErrParamParse) {
			// exp is still populated (scanExpectation returns the
			// partial row alongside the error), so a config_error
			// violation can name and notify the right expectation.
			if cerr := l.reconciler.ReportConfigError(ctx, exp, err); cerr != nil {
				l.log.Error().Err(cerr).Str("expectation_id", expectationID).Msg("checker: report config_error failed")
			}
			return
		}
		l.log.Error().Err(err).Str("expectation_id", expectationID).Msg("checker: get_expectation failed, skipping")
		return
	}
	if err := l.reconciler.Reconcile(ctx, exp); err != nil {
		l.log.Error().Err(err).Str("expectation_id", expectationID).Msg("checker: reconcile failed, skipping this tick")
	}
}
