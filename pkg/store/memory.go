package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// MemoryStore is an in-process Store used by tests: the reconciler and
// checker tests need many fast, deterministic ticks, which a cgo
// sqlite3 handle is unnecessary overhead for. It enforces
// the same invariants (V1, T1-T3, O1-O2) as SQLiteStore so a test
// written against it exercises real Store semantics, not a shortcut.
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock

	expectations map[string]rewiretypes.Expectation
	observations map[string][]rewiretypes.Observation // per expectation, append order
	trials       map[string]rewiretypes.AlertTrial
	violations   []rewiretypes.Violation
	nextSeq      int64
	nextVID      int64
}

// NewMemoryStore returns an empty MemoryStore driven by clk.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:        clk,
		expectations: make(map[string]rewiretypes.Expectation),
		observations: make(map[string][]rewiretypes.Observation),
		trials:       make(map[string]rewiretypes.AlertTrial),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateExpectation(_ context.Context, exp rewiretypes.Expectation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	exp.CreatedAt, exp.UpdatedAt = now, now
	m.expectations[exp.ID] = exp
	return nil
}

func (m *MemoryStore) GetExpectation(_ context.Context, id string) (rewiretypes.Expectation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expectations[id]
	if !ok {
		return rewiretypes.Expectation{}, rewireerr.NotFound("expectation", id)
	}
	return exp, nil
}

func (m *MemoryStore) ListEnabled(_ context.Context) ([]rewiretypes.Expectation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rewiretypes.Expectation
	for _, exp := range m.expectations {
		if exp.Enabled {
			out = append(out, exp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expectations[id]
	if !ok {
		return rewireerr.NotFound("expectation", id)
	}
	exp.Enabled = enabled
	exp.UpdatedAt = m.clock.Now()
	m.expectations[id] = exp
	return nil
}

func (m *MemoryStore) AppendObservation(_ context.Context, expectationID string, kind rewiretypes.ObservationKind, meta []byte) (int64, error) {
	if !rewiretypes.ValidKind(kind) {
		return 0, rewireerr.Validation("kind must be start|end|ping|ack")
	}
	if len(meta) > rewiretypes.MaxMetaBytes {
		return 0, rewireerr.Validation("meta too large")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	o := rewiretypes.Observation{
		Seq:           m.nextSeq,
		ExpectationID: expectationID,
		Kind:          kind,
		ObservedAt:    m.clock.Now(),
		Meta:          meta,
	}
	m.observations[expectationID] = append(m.observations[expectationID], o)
	return o.Seq, nil
}

func (m *MemoryStore) RecentObservations(_ context.Context, expectationID string, limit int) ([]rewiretypes.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.observations[expectationID]
	out := make([]rewiretypes.Observation, 0, min(limit, len(hist)))
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, hist[i])
	}
	return out, nil
}

func (m *MemoryStore) LastObservationAt(_ context.Context, expectationID string, kind *rewiretypes.ObservationKind) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.observations[expectationID]
	for i := len(hist) - 1; i >= 0; i-- {
		if kind == nil || hist[i].Kind == *kind {
			at := hist[i].ObservedAt
			return &at, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateTrial(_ context.Context, trial rewiretypes.AlertTrial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trial.Status = rewiretypes.TrialPending
	trial.AckedAt = nil
	m.trials[trial.ID] = trial
	return nil
}

func (m *MemoryStore) AckTrial(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trials[id]
	if !ok || t.Status != rewiretypes.TrialPending {
		return false, nil
	}
	now := m.clock.Now()
	t.Status = rewiretypes.TrialAcked
	t.AckedAt = &now
	m.trials[id] = t
	return true, nil
}

func (m *MemoryStore) ExpireTrial(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trials[id]
	if !ok || t.Status != rewiretypes.TrialPending {
		return nil
	}
	t.Status = rewiretypes.TrialExpired
	m.trials[id] = t
	return nil
}

func (m *MemoryStore) PendingTrials(_ context.Context, expectationID string) ([]rewiretypes.AlertTrial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rewiretypes.AlertTrial
	for _, t := range m.trials {
		if t.ExpectationID == expectationID && t.Status == rewiretypes.TrialPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) OpenViolation(_ context.Context, expectationID string, code rewiretypes.ViolationCode) (rewiretypes.Violation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.violations {
		v := &m.violations[i]
		if v.ExpectationID == expectationID && v.Code == code && v.IsOpen {
			return *v, true, nil
		}
	}
	return rewiretypes.Violation{}, false, nil
}

func (m *MemoryStore) CreateViolation(_ context.Context, v rewiretypes.Violation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextVID++
	v.ID = m.nextVID
	v.IsOpen = true
	v.LastNotifiedAt = nil
	m.violations = append(m.violations, v)
	return v.ID, nil
}

func (m *MemoryStore) CloseViolations(_ context.Context, expectationID string, codes []rewiretypes.ViolationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[rewiretypes.ViolationCode]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	for i := range m.violations {
		v := &m.violations[i]
		if v.ExpectationID == expectationID && v.IsOpen && set[v.Code] {
			v.IsOpen = false
		}
	}
	return nil
}

func (m *MemoryStore) MarkNotified(_ context.Context, violationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for i := range m.violations {
		if m.violations[i].ID == violationID {
			m.violations[i].LastNotifiedAt = &now
			return nil
		}
	}
	return rewireerr.NotFound("violation", "")
}
