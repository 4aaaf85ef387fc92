// Package rewiretypes holds the data model shared by every other rewire
// package: Expectation, Observation, AlertTrial, Violation, and the
// enumerations that constrain them.
package rewiretypes

// ExpectationType selects which rule family an Expectation is checked
// against.
type ExpectationType string

const (
	TypeSchedule   ExpectationType = "schedule"
	TypeAlertPath  ExpectationType = "alert_path"
)

// ObservationKind is the event an instrumented job reports.
type ObservationKind string

const (
	KindStart ObservationKind = "start"
	KindEnd   ObservationKind = "end"
	KindPing  ObservationKind = "ping"
	KindAck   ObservationKind = "ack"
)

// ValidKind reports whether k is one of the four recognized kinds.
func ValidKind(k ObservationKind) bool {
	switch k {
	case KindStart, KindEnd, KindPing, KindAck:
		return true
	default:
		return false
	}
}

// ViolationCode names a category of breach. A given (expectation, code)
// pair has at most one open Violation row at a time (Invariant V1).
type ViolationCode string

const (
	CodeMissed      ViolationCode = "missed"
	CodeLongrun     ViolationCode = "longrun"
	CodeOverlap     ViolationCode = "overlap"
	CodeSpacing     ViolationCode = "spacing"
	CodeNoAck       ViolationCode = "no_ack"
	CodeConfigError ViolationCode = "config_error"
)

// TrialStatus is a node in the AlertTrial DAG: pending -> {acked, expired}.
type TrialStatus string

const (
	TrialPending TrialStatus = "pending"
	TrialAcked   TrialStatus = "acked"
	TrialExpired TrialStatus = "expired"
)

// ScheduleParams holds the type-specific options for a TypeSchedule
// expectation. A zero value for MaxRuntimeS or MinSpacingS disables that
// rule, per spec.
type ScheduleParams struct {
	MaxRuntimeS  int64 `json:"max_runtime_s"`
	MinSpacingS  int64 `json:"min_spacing_s"`
	AllowOverlap bool  `json:"allow_overlap"`
}

// AlertPathParams holds the type-specific options for a TypeAlertPath
// expectation.
type AlertPathParams struct {
	AckWindowS  int64 `json:"ack_window_s"`
	TestIntervalS int64 `json:"test_interval_s"`
}

// Expectation is the operator-declared rule. Identity and type are
// immutable after creation; Enabled and the numeric/params fields may be
// mutated via admin operations.
type Expectation struct {
	ID                string
	Type              ExpectationType
	Name              string
	OwnerContact      string
	ExpectedIntervalS int64
	ToleranceS        int64
	ScheduleParams    ScheduleParams
	AlertPathParams   AlertPathParams
	Enabled           bool
	CreatedAt         int64
	UpdatedAt         int64
}

// Observation is one append-only event in an expectation's history.
// ObservedAt is always stamped by the Store, never client-supplied
// (Invariant O2 relies on Store's own clock being non-decreasing).
type Observation struct {
	Seq           int64
	ExpectationID string
	Kind          ObservationKind
	ObservedAt    int64
	Meta          []byte
}

// MaxMetaBytes bounds Observation.Meta, per spec.md §3.
const MaxMetaBytes = 4096

// AlertTrial is one synthetic ping injected to prove a delivery path
// works end-to-end.
type AlertTrial struct {
	ID            string
	ExpectationID string
	SentAt        int64
	AckedAt       *int64
	Status        TrialStatus
}

// Violation asserts, with cited Evidence, that an expectation's
// constraint is currently breached.
type Violation struct {
	ID             int64
	ExpectationID  string
	Code           ViolationCode
	DetectedAt     int64
	Message        string
	Evidence       map[string]any
	IsOpen         bool
	LastNotifiedAt *int64
}
