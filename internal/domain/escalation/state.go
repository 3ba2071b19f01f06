package escalation

import (
	"fmt"
	"strings"
	"time"

	model "github.com/okian/guardline/internal/domain/model"
)

// State is the position of a subject in the escalation state machine.
type State string

// States, in the order a staged run walks them.
const (
	StateIdle             State = "idle"
	StateArmed            State = "armed"
	StateGuardianNotified State = "guardian-notified"
	StateRecordingStarted State = "recording-started"
	StateServicesNotified State = "services-notified"
)

var stageStates = [...]State{StateArmed, StateGuardianNotified, StateRecordingStarted, StateServicesNotified}

// stageCount is the number of timed stages after arming.
const stageCount = len(stageStates) - 1

// Cancellation reasons.
const (
	ReasonSafe       = "safe"
	ReasonSuperseded = "superseded"
	ReasonDisconnect = "disconnect"
	ReasonShutdown   = "shutdown"
)

// Policy decides what a qualifying evaluation does while a run is active.
type Policy string

// Duplicate arm policies.
const (
	// PolicySupersede cancels the active run and starts a new one.
	PolicySupersede Policy = "supersede"
	// PolicySuppress ignores the evaluation and lets the active run continue.
	PolicySuppress Policy = "suppress"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicySupersede:
		return PolicySupersede, nil
	case PolicySuppress:
		return PolicySuppress, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Alert is the context attached to an arm request.
type Alert struct {
	Pattern   model.Pattern
	EventKind model.EventKind
	Location  *model.Location
}

// Transition is one state change of a run, reported for audit.
type Transition struct {
	RunID     string    `json:"runId"`
	SubjectID string    `json:"subjectId"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Score     int       `json:"score"`
	Manual    bool      `json:"manual"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Run is a read-only view of an active run.
type Run struct {
	ID        string    `json:"runId"`
	SubjectID string    `json:"subjectId"`
	StartedAt time.Time `json:"startedAt"`
	State     State     `json:"state"`
	Score     int       `json:"score"`
	Manual    bool      `json:"manual"`
}
