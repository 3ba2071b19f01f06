// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the WebSocket transport.
//
// Every operation that touches a subject's state runs as a task on that
// subject's worker shard, so operations for one subject are applied in the
// order they were accepted.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	workerpool "github.com/okian/guardline/internal/adapters/mq/worker"
	"github.com/okian/guardline/internal/adapters/registry"
	"github.com/okian/guardline/internal/adapters/repository"
	"github.com/okian/guardline/internal/domain/analysis"
	"github.com/okian/guardline/internal/domain/dedupe"
	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/internal/domain/scoring"
	"github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize             = 1024
	defaultDedupeSize            = 50_000
	defaultRegistryShards        = 32
	defaultWindowSize            = 10
	defaultLocationRiskThreshold = 15
	defaultHeartbeat             = 30 * time.Second
	maxRecentEvents              = 100
)

// Status values of alert:resolved.
const statusSafe = "safe"

// Message sent to a subject entering a high-risk zone.
const locationRiskMessage = "Entering high-risk zone"

// Auditor records assessments and escalation transitions. Calls must not
// block.
type Auditor interface {
	escalation.TransitionRecorder
	RecordAssessment(ctx context.Context, subjectID string, e model.Event, a model.ThreatAssessment, at time.Time)
}

type nopAuditor struct{}

func (nopAuditor) RecordTransition(context.Context, escalation.Transition) {}

func (nopAuditor) RecordAssessment(context.Context, string, model.Event, model.ThreatAssessment, time.Time) {
}

// EscalationStatus is the current escalation state of a subject.
type EscalationStatus struct {
	SubjectID string           `json:"subjectId"`
	State     escalation.State `json:"state"`
	Run       *escalation.Run  `json:"run,omitempty"`
	Observers int              `json:"observers"`
	Online    bool             `json:"online"`
}

// Service wires scoring, analysis, escalation and fan-out together.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry    *registry.Registry
	coordinator *escalation.Coordinator
	scorer      *scoring.Scorer
	analyzer    *analysis.Analyzer
	predictor   *analysis.Predictor
	deduper     dedupe.Deduper
	windows     *repository.WindowStore
	workerPool  *workerpool.Pool
	auditor     Auditor

	// Configuration
	workerCount           int
	queueSize             int
	dedupeSize            int
	registryShards        int
	windowSize            int
	locationRiskThreshold int
	heartbeat             time.Duration
	escalationOpts        []escalation.Option
	now                   func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a Service. Call Start before submitting work and Stop once
// no caller can submit any more.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:           runtime.NumCPU() * 2,
		queueSize:             defaultQueueSize,
		dedupeSize:            defaultDedupeSize,
		registryShards:        defaultRegistryShards,
		windowSize:            defaultWindowSize,
		locationRiskThreshold: defaultLocationRiskThreshold,
		heartbeat:             defaultHeartbeat,
		auditor:               nopAuditor{},
		now:                   time.Now,
		logger:                logger.Get(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.scorer == nil {
		s.scorer = scoring.NewScorer()
	}
	s.registry = registry.New(registry.WithShardCount(s.registryShards))
	s.analyzer = analysis.NewAnalyzer()
	s.predictor = analysis.NewPredictor(s.analyzer, s.scorer.Zones())
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.windows = repository.NewWindowStore(repository.WithWindowSize(s.windowSize))
	s.workerPool = workerpool.NewPool(s.workerCount,
		workerpool.WithQueueCapacity(s.queueSize),
		workerpool.WithErrorReporter(s),
		workerpool.WithPoolLogger(s.logger.Named("worker-pool")),
	)

	escOpts := append([]escalation.Option{
		escalation.WithRecorder(s.auditor),
		escalation.WithClock(s.now),
		escalation.WithLogger(s.logger.Named("escalation")),
	}, s.escalationOpts...)
	s.coordinator = escalation.NewCoordinator(s.registry, escOpts...)

	return s
}

// Start starts the worker shards. It is a no-op when already started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.workerPool.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "guardline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("threshold", s.coordinator.Threshold()),
	)
	return nil
}

// Stop cancels every escalation run and drains the worker shards.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coordinator.Stop(ctx)
	err := s.workerPool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "guardline service stopped")
	return err
}

// Registry returns the session registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Coordinator returns the escalation coordinator.
func (s *Service) Coordinator() *escalation.Coordinator { return s.coordinator }

// JoinSubject registers conn as one of the subject's connections.
func (s *Service) JoinSubject(ctx context.Context, conn registry.Conn, req types.JoinSubject) error {
	return s.join(ctx, conn, registry.Session{Role: registry.RoleSubject, SubjectID: req.SubjectID})
}

// JoinObserver registers conn as an observer of the subject.
func (s *Service) JoinObserver(ctx context.Context, conn registry.Conn, req types.JoinObserver) error {
	return s.join(ctx, conn, registry.Session{Role: registry.RoleObserver, SubjectID: req.SubjectID, ObserverID: req.ObserverID})
}

func (s *Service) join(ctx context.Context, conn registry.Conn, sess registry.Session) error {
	if err := s.registry.Join(conn, sess); err != nil {
		return fmt.Errorf("join %s: %w", sess.Role, err)
	}
	conn.Send(types.Message{Type: types.TypeConnectionConfirmed, Data: types.ConnectionConfirmed{
		ConnectionID: conn.ID(),
		Role:         string(sess.Role),
		SubjectID:    sess.SubjectID,
		ObserverID:   sess.ObserverID,
	}})
	s.logger.Debug(ctx, "connection joined",
		logger.String("conn", conn.ID()),
		logger.String("role", string(sess.Role)),
		logger.String("subject", sess.SubjectID))
	return nil
}

// Disconnect removes the connection. When it was the subject's last
// connection the subject's escalation run is cancelled.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	sess, ok := s.registry.Leave(connID)
	if !ok || sess.Role != registry.RoleSubject {
		return
	}
	if s.registry.Members(registry.SubjectChannel(sess.SubjectID)) > 0 {
		return
	}

	subject := sess.SubjectID
	cancel := func(ctx context.Context) error {
		if s.registry.Members(registry.SubjectChannel(subject)) == 0 {
			s.coordinator.Cancel(ctx, subject, escalation.ReasonDisconnect)
		}
		return nil
	}
	err := s.workerPool.Submit(ctx, model.Task{ID: uuid.NewString(), SubjectID: subject, Kind: model.TaskLeave, Exec: cancel})
	if err != nil {
		// The shard is unavailable; cancel directly so no run outlives its subject.
		_ = cancel(ctx)
	}
}

// SubmitEvent scores one event against the subject's recent window, fans the
// result out and arms an escalation run when the score crosses the threshold.
// Events carrying an already seen id are acknowledged as duplicates.
func (s *Service) SubmitEvent(ctx context.Context, connID string, req types.EventRequest) (types.EventResponse, error) {
	eventID := req.EventID
	if eventID != "" && s.seenAndRecord(ctx, eventID) {
		return types.EventResponse{EventID: eventID, Duplicate: true}, nil
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	var resp types.EventResponse
	err := s.do(ctx, connID, req.SubjectID, model.TaskEvent, func(ctx context.Context) error {
		var err error
		resp, err = s.evaluate(ctx, eventID, req)
		return err
	})
	if err != nil {
		if req.EventID != "" {
			s.deduper.Unrecord(ctx, req.EventID)
		}
		return types.EventResponse{}, err
	}
	return resp, nil
}

func (s *Service) evaluate(ctx context.Context, eventID string, req types.EventRequest) (types.EventResponse, error) {
	now := s.now()
	ts := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = *req.Timestamp
	}
	event := model.NewEvent(eventID, req.Type, req.Category, req.Severity, ts)

	window, err := s.window(ctx, req.SubjectID, req.RecentEvents, event)
	if err != nil {
		return types.EventResponse{}, err
	}
	loc := usableLocation(req.Location)

	start := time.Now()
	a := s.analyzer.Analyze(window)
	assessment := s.scorer.Assess(window, loc, now, req.Behavior, a)
	prediction := s.predictor.Predict(window, loc, now)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordAssessment(assessment.Score, string(assessment.Level), string(assessment.Pattern))
	metrics.RecordEventProcessed()
	s.auditor.RecordAssessment(ctx, req.SubjectID, event, assessment, now)

	s.registry.NotifySubject(req.SubjectID, types.Message{Type: types.TypeThreatUpdated, Data: types.ThreatUpdate{
		SubjectID:  req.SubjectID,
		Assessment: assessment,
		Prediction: prediction,
		Event:      event,
		Timestamp:  now,
	}})
	s.registry.NotifyMonitors(req.SubjectID, types.Message{Type: types.TypeThreatDetected, Data: types.ThreatDetected{
		SubjectID: req.SubjectID,
		Event:     event,
		Score:     assessment.Score,
		Level:     assessment.Level,
		Pattern:   assessment.Pattern,
		Location:  loc,
		Timestamp: now,
	}})
	s.registry.NotifySubject(req.SubjectID, types.Message{Type: types.TypeAIReasoning, Data: types.Reasoning{
		SubjectID: req.SubjectID,
		Score:     assessment.Score,
		Reasons:   assessment.Reasons,
	}})

	armed := s.coordinator.Evaluate(ctx, req.SubjectID, assessment.Score, escalation.Alert{
		Pattern:   assessment.Pattern,
		EventKind: event.Kind,
		Location:  loc,
	})

	s.logger.Debug(ctx, "event scored",
		logger.String("subject", req.SubjectID),
		logger.String("event", eventID),
		logger.String("type", string(event.Kind)),
		logger.Int("score", assessment.Score),
		logger.String("pattern", string(assessment.Pattern)),
		logger.Bool("armed", armed))

	return types.EventResponse{
		EventID:    eventID,
		Score:      assessment.Score,
		Level:      assessment.Level,
		Analysis:   a,
		Prediction: prediction,
		Reasoning:  assessment.Reasons,
		Armed:      armed,
	}, nil
}

// window builds the ordered window ending with event. Caller supplied recent
// events replace the stored window; otherwise event is appended to it.
func (s *Service) window(ctx context.Context, subjectID string, recent []model.Event, event model.Event) ([]model.Event, error) {
	if len(recent) == 0 {
		return s.windows.Append(ctx, subjectID, event)
	}
	if len(recent) > maxRecentEvents {
		recent = recent[len(recent)-maxRecentEvents:]
	}
	window := make([]model.Event, 0, len(recent)+1)
	for _, e := range recent {
		window = append(window, model.NewEvent(e.ID, e.Kind, e.Category, e.Severity, e.Timestamp))
	}
	window = repository.Truncate(append(window, event), s.windowSize)
	if err := s.windows.Replace(ctx, subjectID, window); err != nil {
		return nil, err
	}
	return window, nil
}

// SubmitLocation publishes a position update to observers and warns the
// subject when it is inside a high-risk zone.
func (s *Service) SubmitLocation(ctx context.Context, connID string, req types.LocationRequest) (types.LocationUpdated, error) {
	var out types.LocationUpdated
	err := s.do(ctx, connID, req.SubjectID, model.TaskLocation, func(ctx context.Context) error {
		now := s.now()
		ts := now
		if req.Timestamp != nil && !req.Timestamp.IsZero() {
			ts = *req.Timestamp
		}
		loc := model.Location{Lat: req.Lat, Lng: req.Lng}
		zone, inZone := s.scorer.Zones().ZoneFor(&loc)
		risk := 0
		if inZone {
			risk = zone.Risk
		}

		out = types.LocationUpdated{SubjectID: req.SubjectID, Location: loc, Risk: risk, Timestamp: ts}
		s.registry.NotifyMonitors(req.SubjectID, types.Message{Type: types.TypeLocationUpdated, Data: out})

		notice := risk > s.locationRiskThreshold
		if notice {
			s.registry.NotifySubject(req.SubjectID, types.Message{Type: types.TypeLocationRisk, Data: types.LocationRisk{
				Risk:    risk,
				Zone:    zone.Name,
				Message: locationRiskMessage,
			}})
		}
		metrics.RecordLocationUpdate(notice)
		return nil
	})
	return out, err
}

// ManualAlert starts a full-severity run for the subject immediately.
func (s *Service) ManualAlert(ctx context.Context, connID string, req types.ManualAlertRequest) (escalation.Run, error) {
	var run escalation.Run
	err := s.do(ctx, connID, req.SubjectID, model.TaskManual, func(ctx context.Context) error {
		s.coordinator.Manual(ctx, req.SubjectID, escalation.Alert{Location: usableLocation(req.Location)})
		run, _ = s.coordinator.Run(req.SubjectID)
		return nil
	})
	return run, err
}

// ConfirmSafe cancels the subject's run and tells the subject and its
// observers. The subject's stored window is cleared.
func (s *Service) ConfirmSafe(ctx context.Context, connID string, req types.SafeRequest) (types.Resolved, error) {
	var out types.Resolved
	err := s.do(ctx, connID, req.SubjectID, model.TaskSafe, func(ctx context.Context) error {
		cancelled := s.coordinator.Cancel(ctx, req.SubjectID, escalation.ReasonSafe)
		s.windows.Forget(ctx, req.SubjectID)
		out = types.Resolved{SubjectID: req.SubjectID, Status: statusSafe, Cancelled: cancelled, Timestamp: s.now()}
		msg := types.Message{Type: types.TypeAlertResolved, Data: out}
		s.registry.NotifySubject(req.SubjectID, msg)
		s.registry.NotifyMonitors(req.SubjectID, msg)
		return nil
	})
	return out, err
}

// ObserverRespond relays an observer's reply to the subject.
func (s *Service) ObserverRespond(ctx context.Context, connID string, req types.RespondRequest) (types.GuardianResponse, error) {
	var out types.GuardianResponse
	err := s.do(ctx, connID, req.SubjectID, model.TaskRespond, func(context.Context) error {
		out = types.GuardianResponse{ObserverID: req.ObserverID, Action: req.Action, Timestamp: s.now()}
		s.registry.NotifySubject(req.SubjectID, types.Message{Type: types.TypeGuardianResponse, Data: out})
		return nil
	})
	return out, err
}

// Escalation returns the subject's escalation status.
func (s *Service) Escalation(_ context.Context, subjectID string) EscalationStatus {
	st := EscalationStatus{
		SubjectID: subjectID,
		State:     escalation.StateIdle,
		Observers: s.registry.Members(registry.MonitoringChannel(subjectID)),
		Online:    s.registry.Members(registry.SubjectChannel(subjectID)) > 0,
	}
	if run, ok := s.coordinator.Run(subjectID); ok {
		st.State = run.State
		st.Run = &run
	}
	return st
}

// Heartbeat sends one health ping to every connection and returns how many
// received it.
func (s *Service) Heartbeat() int {
	return s.registry.Broadcast(types.Message{Type: types.TypeHealthPing, Data: types.HealthPing{Timestamp: s.now()}})
}

// Serve pings every connection on the heartbeat interval until ctx is done.
// It satisfies suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n := s.Heartbeat()
			s.logger.Debug(ctx, "health ping sent", logger.Int("connections", n))
		}
	}
}

// ReportTaskError tells the originating connection that its operation
// failed. Tasks without a connection are only logged by the worker.
func (s *Service) ReportTaskError(_ context.Context, t model.Task, err error) {
	if t.ConnID == "" {
		return
	}
	msg := "processing failed"
	if errors.Is(err, workerpool.ErrTaskPanic) {
		msg = "internal error"
	}
	s.registry.Send(t.ConnID, types.Message{Type: types.TypeError, Data: types.ErrorNotice{
		Op:      opName(t.Kind),
		Message: msg,
	}})
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(_ context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"started":             s.started,
		"workerCount":         s.workerPool.Size(),
		"queueSize":           s.queueSize,
		"dedupeSize":          s.dedupeSize,
		"dedupeEntries":       s.deduper.Size(),
		"connections":         s.registry.Connections(),
		"trackedSubjects":     s.windows.Count(),
		"activeEscalations":   s.coordinator.Active(),
		"escalationThreshold": s.coordinator.Threshold(),
	}
}

func (s *Service) seenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event", logger.String("event", id))
	}
	return seen
}

// do runs fn on the subject's shard and waits for it.
func (s *Service) do(ctx context.Context, connID, subjectID string, kind model.TaskKind, fn func(context.Context) error) error {
	err := s.workerPool.Do(ctx, model.Task{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      kind,
		ConnID:    connID,
		Exec:      fn,
	})
	if err != nil {
		return fmt.Errorf("%s for subject %s: %w", kind, subjectID, err)
	}
	return nil
}

func usableLocation(loc *model.Location) *model.Location {
	if loc == nil || !loc.Valid() {
		return nil
	}
	return loc
}

func opName(kind model.TaskKind) string {
	switch kind {
	case model.TaskEvent:
		return types.TypeEventDetected
	case model.TaskLocation:
		return types.TypeLocationUpdate
	case model.TaskManual:
		return types.TypeAlertManual
	case model.TaskSafe:
		return types.TypeUserSafe
	case model.TaskRespond:
		return types.TypeGuardianRespond
	default:
		return string(kind)
	}
}
