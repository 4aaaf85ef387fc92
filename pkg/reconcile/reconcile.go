// Package reconcile implements the Reconciler of spec.md §4.E: per
// expectation, per tick, it reads the Store, delegates the verdict to
// pkg/evaluator, and applies the close-then-open diff that keeps the
// violation ledger's is_open state in sync with the evaluator's
// opinion (the biconditional invariant of spec.md §8).
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/evaluator"
	"github.com/rewire/rewire/pkg/notify"
	"github.com/rewire/rewire/pkg/obs"
	"github.com/rewire/rewire/pkg/rewiretypes"
	"github.com/rewire/rewire/pkg/store"
	"github.com/rewire/rewire/pkg/trial"
)

// historyLimit bounds how many recent observations the evaluator sees.
// Every rule in spec.md §4.C only ever looks at the two most recent
// starts and the ends around them, so this comfortably overshoots what
// any rule needs while keeping each tick's read bounded.
const historyLimit = 50

// Reconciler reconciles one expectation's violation ledger against the
// RuleEvaluator's verdict.
type Reconciler struct {
	store          store.Store
	clock          clock.Clock
	trials         *trial.Manager
	notifier       notify.Notifier
	log            zerolog.Logger
	renotifyAfterS int64
	baseURL        string
	notifyTimeout  time.Duration
	metrics        *obs.Metrics
}

// SetMetrics attaches a Metrics registry the Reconciler increments as
// violations open/close and notifications fail. Optional.
func (r *Reconciler) SetMetrics(m *obs.Metrics) {
	r.metrics = m
}

// New returns a Reconciler. renotifyAfterS of 0 disables renotification
// (spec.md §6). notifyTimeout bounds every Notifier.Deliver call
// (spec.md §5: a deliver call must have a total deadline <=
// check_every_s/2).
func New(s store.Store, clk clock.Clock, trials *trial.Manager, notifier notify.Notifier, log zerolog.Logger, baseURL string, renotifyAfterS int64, notifyTimeout time.Duration) *Reconciler {
	return &Reconciler{
		store: s, clock: clk, trials: trials, notifier: notifier,
		log:            log.With().Str("component", "reconcile").Logger(),
		renotifyAfterS: renotifyAfterS,
		baseURL:        baseURL,
		notifyTimeout:  notifyTimeout,
	}
}

// Reconcile runs one tick for exp. It never panics: evaluator failures
// and store failures while reading inputs or closing violations are
// surfaced to the caller (CheckerLoop), which logs and skips to the next
// expectation, per spec.md §7 EvaluatorError/StoreError. Failures while
// expiring a trial, opening one violation, or issuing a trial are
// logged here and do not abort the rest of the call.
func (r *Reconciler) Reconcile(ctx context.Context, exp rewiretypes.Expectation) error {
	// Reaching here means CheckerLoop already has a cleanly-parsed
	// exp (GetExpectation would have returned a ParamParseError
	// otherwise, see ReportConfigError), so any previously-opened
	// config_error violation no longer applies.
	if err := r.store.CloseViolations(ctx, exp.ID, []rewiretypes.ViolationCode{rewiretypes.CodeConfigError}); err != nil {
		return fmt.Errorf("reconcile %s: close config_error: %w", exp.ID, err)
	}

	history, err := r.store.RecentObservations(ctx, exp.ID, historyLimit)
	if err != nil {
		return fmt.Errorf("reconcile %s: read history: %w", exp.ID, err)
	}

	var pending []rewiretypes.AlertTrial
	if exp.Type == rewiretypes.TypeAlertPath {
		pending, err = r.trials.Pending(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("reconcile %s: read pending trials: %w", exp.ID, err)
		}
	}

	now := r.clock.Now()
	verdict, err := evaluator.Evaluate(exp, history, pending, now)
	if err != nil {
		return fmt.Errorf("reconcile %s: evaluate: %w", exp.ID, err)
	}

	// Expire trials before opening no_ack, and close before open
	// within this call, so a flapping violation never appears as two
	// simultaneously-open rows (spec.md §4.E ordering guarantee).
	for _, id := range verdict.TrialsToExpire {
		if err := r.trials.Expire(ctx, id); err != nil {
			r.log.Error().Err(err).Str("expectation_id", exp.ID).Str("trial_id", id).Msg("expire trial failed")
		}
	}

	if len(verdict.ToClose) > 0 {
		var wasOpen []rewiretypes.ViolationCode
		if r.metrics != nil {
			for _, code := range verdict.ToClose {
				if _, open, err := r.store.OpenViolation(ctx, exp.ID, code); err == nil && open {
					wasOpen = append(wasOpen, code)
				}
			}
		}
		if err := r.store.CloseViolations(ctx, exp.ID, verdict.ToClose); err != nil {
			return fmt.Errorf("reconcile %s: close_violations: %w", exp.ID, err)
		}
		if r.metrics != nil {
			for _, code := range wasOpen {
				r.metrics.ViolationsClosedTotal.WithLabelValues(string(code)).Inc()
			}
		}
	}

	for code, evidence := range verdict.ToOpen {
		if err := r.applyOpen(ctx, exp, code, evidence, now); err != nil {
			r.log.Error().Err(err).Str("expectation_id", exp.ID).Str("code", string(code)).Msg("apply open failed")
		}
	}

	if exp.Type == rewiretypes.TypeAlertPath && verdict.ShouldIssueTrial {
		if err := r.issueTrial(ctx, exp); err != nil {
			r.log.Error().Err(err).Str("expectation_id", exp.ID).Msg("issue trial failed")
		}
	}

	return nil
}

// ReportConfigError opens (or renotifies) a config_error violation for
// an expectation whose stored params_json failed to parse, per
// spec.md §7's ParamParseError handling. CheckerLoop calls this
// instead of Reconcile when GetExpectation itself fails with a
// ParamParseError, since the evaluator cannot run without valid
// type-specific params.
func (r *Reconciler) ReportConfigError(ctx context.Context, exp rewiretypes.Expectation, cause error) error {
	evidence := evaluator.Evidence{"error": cause.Error()}
	return r.applyOpen(ctx, exp, rewiretypes.CodeConfigError, evidence, r.clock.Now())
}

func (r *Reconciler) applyOpen(ctx context.Context, exp rewiretypes.Expectation, code rewiretypes.ViolationCode, evidence evaluator.Evidence, now int64) error {
	existing, open, err := r.store.OpenViolation(ctx, exp.ID, code)
	if err != nil {
		return fmt.Errorf("open_violation: %w", err)
	}

	if !open {
		message := renderMessage(exp, code, evidence)
		v := rewiretypes.Violation{
			ExpectationID: exp.ID,
			Code:          code,
			DetectedAt:    now,
			Message:       message,
			Evidence:      evidence,
		}
		id, err := r.store.CreateViolation(ctx, v)
		if err != nil {
			return fmt.Errorf("create_violation: %w", err)
		}
		if r.metrics != nil {
			r.metrics.ViolationsOpenTotal.WithLabelValues(string(code)).Inc()
		}
		r.notifyViolation(ctx, id, exp, code, message, evidence)
		return nil
	}

	// Already open: renotify_after_s governs whether we re-send using
	// the ORIGINAL evidence captured at open time. The row itself is
	// never mutated to reflect fresher evidence (spec.md §4.E, §9) —
	// a changed fact pattern only produces a new row once the old one
	// closes.
	// A violation whose notification never went through
	// (LastNotifiedAt still nil) is retried on every tick, even with
	// renotification disabled.
	if existing.LastNotifiedAt != nil {
		if r.renotifyAfterS <= 0 || now-*existing.LastNotifiedAt < r.renotifyAfterS {
			return nil
		}
	}
	r.notifyViolation(ctx, existing.ID, exp, code, existing.Message, existing.Evidence)
	return nil
}

func (r *Reconciler) notifyViolation(ctx context.Context, violationID int64, exp rewiretypes.Expectation, code rewiretypes.ViolationCode, message string, evidence map[string]any) {
	subject := fmt.Sprintf("[rewire] VIOLATION %s: %s", code, exp.Name)
	payload := notify.Payload{
		ExpectationID: exp.ID,
		Name:          exp.Name,
		Type:          string(exp.Type),
		Code:          string(code),
		Message:       message,
		Evidence:      evidence,
		DetectedAt:    r.clock.Now(),
	}
	deliverCtx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()
	if err := r.notifier.Deliver(deliverCtx, exp.OwnerContact, subject, message, payload); err != nil {
		// Leave last_notified_at untouched: next tick's renotify
		// check will retry (spec.md §4.G, §7 NotifierError).
		if r.metrics != nil {
			r.metrics.NotifierFailuresTotal.Inc()
		}
		r.log.Warn().Err(err).Str("expectation_id", exp.ID).Str("code", string(code)).Msg("notify failed, will retry next tick")
		return
	}
	if err := r.store.MarkNotified(ctx, violationID); err != nil {
		r.log.Error().Err(err).Int64("violation_id", violationID).Msg("mark_notified failed")
	}
}

func (r *Reconciler) issueTrial(ctx context.Context, exp rewiretypes.Expectation) error {
	ackPrefix := r.baseURL + "/ack/"
	t, err := r.trials.Issue(ctx, exp.ID, ackPrefix)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[rewire] test alert for %s", exp.Name)
	body := fmt.Sprintf("This is a scheduled delivery test for %q. Acknowledge at %s%s", exp.Name, ackPrefix, t.ID)
	payload := notify.Payload{
		ExpectationID: exp.ID,
		Name:          exp.Name,
		Type:          string(exp.Type),
		Code:          "trial",
		Message:       body,
		Evidence:      map[string]any{"trial_id": t.ID, "sent_at": t.SentAt},
		DetectedAt:    t.SentAt,
	}
	deliverCtx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()
	if err := r.notifier.Deliver(deliverCtx, exp.OwnerContact, subject, body, payload); err != nil {
		r.log.Warn().Err(err).Str("expectation_id", exp.ID).Str("trial_id", t.ID).Msg("trial notify failed")
	}
	return nil
}

func renderMessage(exp rewiretypes.Expectation, code rewiretypes.ViolationCode, evidence evaluator.Evidence) string {
	// Evidence values round-trip through JSON in the SQLite backend
	// (ints become float64), so every numeric field is rendered with
	// %v rather than %d to stay correct across both Store backends.
	switch code {
	case rewiretypes.CodeMissed:
		return fmt.Sprintf("%s has not started in %vs (expected every %vs, tolerance %vs)",
			exp.Name, evidence["age_s"], evidence["expected_s"], evidence["tolerance_s"])
	case rewiretypes.CodeLongrun:
		return fmt.Sprintf("%s has been running for %vs, exceeding max runtime %vs",
			exp.Name, evidence["running_for_s"], evidence["max_runtime_s"])
	case rewiretypes.CodeOverlap:
		return fmt.Sprintf("%s started again at %v while a prior run from %v was still active",
			exp.Name, evidence["newest_start_at"], evidence["other_start_at"])
	case rewiretypes.CodeSpacing:
		return fmt.Sprintf("%s ran only %vs after its prior run ended, below the minimum spacing of %vs",
			exp.Name, evidence["gap_s"], evidence["min_spacing_s"])
	case rewiretypes.CodeNoAck:
		return fmt.Sprintf("%s's alert-path test %v was not acknowledged within the ack window (%vs elapsed)",
			exp.Name, evidence["trial_id"], evidence["age_s"])
	case rewiretypes.CodeConfigError:
		return fmt.Sprintf("%s has malformed configuration and was skipped", exp.Name)
	default:
		return fmt.Sprintf("%s: %s", exp.Name, code)
	}
}
