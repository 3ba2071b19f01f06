// Package escalation drives the per-subject emergency state machine: arming on
// a threshold breach, emitting time-staged notifications and cancelling runs.
package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	types "github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

// Default escalation configuration constants.
const (
	defaultThreshold   = 60
	defaultStage1Delay = 1000 * time.Millisecond
	defaultStage2Delay = 1500 * time.Millisecond
	defaultStage3Delay = 2000 * time.Millisecond
	manualScore        = 100
)

// Notifier delivers messages to a subject's channels.
type Notifier interface {
	NotifySubject(subjectID string, msg types.Message) int
	NotifyMonitors(subjectID string, msg types.Message) int
}

// TransitionRecorder receives every run transition. It must not block.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t Transition)
}

type run struct {
	id        string
	subject   string
	startedAt time.Time
	score     int
	manual    bool
	stage     int
	cancelled bool
	timers    []*time.Timer
}

func (r *run) state() State { return stageStates[r.stage] }

// Coordinator owns at most one run per subject. All run state is guarded by
// mu; stage timers re-check the run under mu before emitting, so a stopped
// or superseded run never emits after Cancel returns.
type Coordinator struct {
	mu   sync.Mutex
	runs map[string]*run

	notifier  Notifier
	recorder  TransitionRecorder
	threshold int
	delays    [stageCount]time.Duration
	policy    Policy
	now       func() time.Time
	logger    logger.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithThreshold sets the score at or above which a run is armed.
func WithThreshold(score int) Option {
	return func(c *Coordinator) {
		if score > 0 && score <= manualScore {
			c.threshold = score
		}
	}
}

// WithStageDelays sets the delay of each stage measured from the arm instant.
// Delays must be positive and non-decreasing.
func WithStageDelays(guardian, recording, services time.Duration) Option {
	return func(c *Coordinator) {
		if guardian > 0 && recording >= guardian && services >= recording {
			c.delays = [stageCount]time.Duration{guardian, recording, services}
		}
	}
}

// WithPolicy sets the duplicate arm policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		if p == PolicySupersede || p == PolicySuppress {
			c.policy = p
		}
	}
}

// WithRecorder sets the audit recorder for transitions.
func WithRecorder(r TransitionRecorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(context.Context, Transition) {}

// NewCoordinator creates a coordinator publishing through n.
func NewCoordinator(n Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		runs:      make(map[string]*run),
		notifier:  n,
		recorder:  nopRecorder{},
		threshold: defaultThreshold,
		delays:    [stageCount]time.Duration{defaultStage1Delay, defaultStage2Delay, defaultStage3Delay},
		policy:    PolicySupersede,
		now:       time.Now,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the arming score.
func (c *Coordinator) Threshold() int { return c.threshold }

// Evaluate arms a staged run for subject when score reaches the threshold.
// It reports whether a new run was armed.
func (c *Coordinator) Evaluate(ctx context.Context, subject string, score int, alert Alert) bool {
	if score < c.threshold {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.runs[subject]; ok {
		if prev.manual || c.policy == PolicySuppress {
			c.logger.Debug(ctx, "arm suppressed by active run",
				logger.String("subject", subject),
				logger.String("run", prev.id),
				logger.Bool("manual", prev.manual))
			return false
		}
		c.cancelLocked(ctx, prev, ReasonSuperseded)
	}

	r := c.armLocked(ctx, subject, score, false)
	payload := c.alertPayload(r, alert)
	c.notifier.NotifySubject(subject, types.Message{Type: types.TypeAlertTriggered, Data: payload})
	c.notifier.NotifyMonitors(subject, types.Message{Type: types.TypeGuardianAlert, Data: payload})

	r.timers = make([]*time.Timer, 0, stageCount)
	for i, d := range c.delays {
		target := i + 1
		r.timers = append(r.timers, time.AfterFunc(d, func() { c.fire(r, target) }))
	}
	return true
}

// Manual forces an immediate full-severity run for subject. Any staged run is
// superseded and no stage timers are scheduled.
func (c *Coordinator) Manual(ctx context.Context, subject string, alert Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.runs[subject]; ok {
		c.cancelLocked(ctx, prev, ReasonSuperseded)
	}
	r := c.armLocked(ctx, subject, manualScore, true)
	payload := c.alertPayload(r, alert)
	c.notifier.NotifySubject(subject, types.Message{Type: types.TypeAlertConfirmed, Data: payload})
	c.notifier.NotifyMonitors(subject, types.Message{Type: types.TypeGuardianEmergency, Data: payload})
}

// Cancel stops the subject's run. Pending stage timers are invalidated before
// it returns. It reports whether a run was active.
func (c *Coordinator) Cancel(ctx context.Context, subject, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.runs[subject]
	if !ok {
		return false
	}
	c.cancelLocked(ctx, r, reason)
	return true
}

// State returns the current state for subject.
func (c *Coordinator) State(subject string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.runs[subject]; ok {
		return r.state()
	}
	return StateIdle
}

// Run returns a view of the subject's active run.
func (c *Coordinator) Run(subject string) (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[subject]
	if !ok {
		return Run{}, false
	}
	return Run{ID: r.id, SubjectID: r.subject, StartedAt: r.startedAt, State: r.state(), Score: r.score, Manual: r.manual}, true
}

// Active returns the number of runs in flight.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

// Stop cancels every run.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.runs {
		c.cancelLocked(ctx, r, ReasonShutdown)
	}
}

func (c *Coordinator) armLocked(ctx context.Context, subject string, score int, manual bool) *run {
	r := &run{
		id:        uuid.NewString(),
		subject:   subject,
		startedAt: c.now(),
		score:     score,
		manual:    manual,
	}
	c.runs[subject] = r

	trigger := "auto"
	if manual {
		trigger = "manual"
	}
	metrics.RecordEscalationArmed(trigger)
	metrics.UpdateEscalationsActive(len(c.runs))
	c.transition(ctx, r, StateIdle, StateArmed, "")
	c.logger.Info(ctx, "escalation armed",
		logger.String("subject", subject),
		logger.String("run", r.id),
		logger.Int("score", score),
		logger.Bool("manual", manual))
	return r
}

func (c *Coordinator) cancelLocked(ctx context.Context, r *run, reason string) {
	r.cancelled = true
	for _, t := range r.timers {
		t.Stop()
	}
	delete(c.runs, r.subject)

	metrics.RecordEscalationCancelled(reason)
	metrics.UpdateEscalationsActive(len(c.runs))
	c.transition(ctx, r, r.state(), StateIdle, reason)
	c.logger.Info(ctx, "escalation cancelled",
		logger.String("subject", r.subject),
		logger.String("run", r.id),
		logger.String("reason", reason),
		logger.String("at", string(r.state())))
}

// fire emits every stage up to target that has not been emitted yet, so a
// subject always observes stages in increasing order.
func (c *Coordinator) fire(r *run, target int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.cancelled || c.runs[r.subject] != r {
		return
	}
	ctx := context.Background()
	for r.stage < target {
		from := r.state()
		r.stage++
		c.notifier.NotifySubject(r.subject, types.Message{Type: stageMessageType(r.stage), Data: c.stagePayload(r)})
		metrics.RecordEscalationStage(string(r.state()))
		c.transition(ctx, r, from, r.state(), "")
	}
	if r.stage == stageCount {
		delete(c.runs, r.subject)
		metrics.RecordEscalationCompleted()
		metrics.UpdateEscalationsActive(len(c.runs))
		c.transition(ctx, r, r.state(), StateIdle, "completed")
		c.logger.Info(ctx, "escalation completed", logger.String("subject", r.subject), logger.String("run", r.id))
	}
}

func (c *Coordinator) transition(ctx context.Context, r *run, from, to State, reason string) {
	c.recorder.RecordTransition(ctx, Transition{
		RunID:     r.id,
		SubjectID: r.subject,
		From:      from,
		To:        to,
		Score:     r.score,
		Manual:    r.manual,
		Reason:    reason,
		At:        c.now(),
	})
}

func (c *Coordinator) alertPayload(r *run, a Alert) types.Alert {
	return types.Alert{
		RunID:     r.id,
		SubjectID: r.subject,
		Score:     r.score,
		Manual:    r.manual,
		Pattern:   a.Pattern,
		EventKind: a.EventKind,
		Location:  a.Location,
		Timestamp: r.startedAt,
	}
}

func stageMessageType(stage int) string {
	switch stage {
	case 1:
		return types.TypeGuardianNotified
	case 2:
		return types.TypeRecordingStarted
	default:
		return types.TypeServicesNotified
	}
}

func (c *Coordinator) stagePayload(r *run) types.Stage {
	p := types.Stage{RunID: r.id, SubjectID: r.subject, Stage: string(r.state()), Timestamp: c.now()}
	switch r.stage {
	case 1:
		p.Status, p.Method = "sent", "SMS"
	case 2:
		p.Status, p.Uploading = "active", true
	default:
		p.Status, p.ETA = "dispatched", "8 minutes"
	}
	return p
}
