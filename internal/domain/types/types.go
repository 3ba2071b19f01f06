// Package types contains the wire messages exchanged with subjects and
// observers.
package types

import (
	"time"

	model "github.com/okian/guardline/internal/domain/model"
)

// Inbound message types.
const (
	TypeJoinSubject     = "join:subject"
	TypeJoinObserver    = "join:observer"
	TypeEventDetected   = "event:detected"
	TypeLocationUpdate  = "location:update"
	TypeAlertManual     = "alert:manual"
	TypeUserSafe        = "user:safe"
	TypeGuardianRespond = "guardian:respond"
)

// Outbound message types.
const (
	TypeConnectionConfirmed = "connection:confirmed"
	TypeThreatUpdated       = "threat:updated"
	TypeThreatDetected      = "threat:detected"
	TypeAIReasoning         = "ai:reasoning"
	TypeAlertTriggered      = "alert:triggered"
	TypeGuardianAlert       = "guardian:alert"
	TypeGuardianNotified    = "emergency:guardian-notified"
	TypeRecordingStarted    = "emergency:recording-started"
	TypeServicesNotified    = "emergency:services-notified"
	TypeAlertConfirmed      = "alert:confirmed"
	TypeGuardianEmergency   = "guardian:emergency"
	TypeAlertResolved       = "alert:resolved"
	TypeLocationUpdated     = "location:updated"
	TypeLocationRisk        = "alert:location-risk"
	TypeGuardianResponse    = "guardian:response"
	TypeHealthPing          = "health:ping"
	TypeError               = "error"
)

// Message is the envelope every notification travels in.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Envelope is an inbound frame whose payload is decoded once the type is
// known.
type Envelope[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// JoinSubject registers a connection as a subject.
type JoinSubject struct {
	SubjectID string `json:"subjectId" validate:"required,max=128"`
}

// JoinObserver registers a connection as an observer of one subject.
type JoinObserver struct {
	ObserverID string `json:"observerId" validate:"required,max=128"`
	SubjectID  string `json:"subjectId" validate:"required,max=128"`
}

// EventRequest submits one detected event.
type EventRequest struct {
	SubjectID    string                `json:"subjectId" validate:"required,max=128"`
	EventID      string                `json:"eventId,omitempty" validate:"max=128"`
	Type         model.EventKind       `json:"type" validate:"required,max=64"`
	Category     model.Category        `json:"category,omitempty" validate:"omitempty,oneof=voice motion behavior"`
	Severity     model.Severity        `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Timestamp    *time.Time            `json:"timestamp,omitempty"`
	Location     *model.Location       `json:"location,omitempty"`
	Behavior     *model.BehaviorSignal `json:"behavior,omitempty"`
	SensorData   map[string]any        `json:"sensorData,omitempty"`
	RecentEvents []model.Event         `json:"recentEvents,omitempty" validate:"max=100"`
}

// EventResponse is returned to the submitter of an event.
type EventResponse struct {
	EventID    string           `json:"eventId,omitempty"`
	Score      int              `json:"score"`
	Level      model.Level      `json:"level"`
	Analysis   model.Analysis   `json:"analysis"`
	Prediction model.Prediction `json:"prediction"`
	Reasoning  []string         `json:"reasoning"`
	Armed      bool             `json:"armed"`
	Duplicate  bool             `json:"duplicate,omitempty"`
}

// LocationRequest submits a position update.
type LocationRequest struct {
	SubjectID string     `json:"subjectId" validate:"required,max=128"`
	Lat       float64    `json:"lat" validate:"latitude"`
	Lng       float64    `json:"lng" validate:"longitude"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ManualAlertRequest is a subject initiated emergency.
type ManualAlertRequest struct {
	SubjectID string          `json:"subjectId" validate:"required,max=128"`
	Location  *model.Location `json:"location,omitempty"`
}

// SafeRequest is a subject's safety confirmation.
type SafeRequest struct {
	SubjectID string `json:"subjectId" validate:"required,max=128"`
}

// RespondRequest is an observer's reply to an alert.
type RespondRequest struct {
	ObserverID string `json:"observerId" validate:"required,max=128"`
	SubjectID  string `json:"subjectId" validate:"required,max=128"`
	Action     string `json:"action" validate:"required,max=64"`
}

// ConnectionConfirmed acknowledges a join.
type ConnectionConfirmed struct {
	ConnectionID string `json:"connectionId"`
	Role         string `json:"role"`
	SubjectID    string `json:"subjectId"`
	ObserverID   string `json:"observerId,omitempty"`
}

// ThreatUpdate is sent to the subject after every evaluation.
type ThreatUpdate struct {
	SubjectID  string                 `json:"subjectId"`
	Assessment model.ThreatAssessment `json:"assessment"`
	Prediction model.Prediction       `json:"prediction"`
	Event      model.Event            `json:"event"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ThreatDetected is sent to the monitoring channel after every evaluation.
type ThreatDetected struct {
	SubjectID string          `json:"subjectId"`
	Event     model.Event     `json:"event"`
	Score     int             `json:"score"`
	Level     model.Level     `json:"level"`
	Pattern   model.Pattern   `json:"pattern"`
	Location  *model.Location `json:"location,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Reasoning carries the explanation of an assessment.
type Reasoning struct {
	SubjectID string   `json:"subjectId"`
	Score     int      `json:"score"`
	Reasons   []string `json:"reasons"`
}

// Alert is the payload of alert and guardian notifications.
type Alert struct {
	RunID     string          `json:"runId"`
	SubjectID string          `json:"subjectId"`
	Score     int             `json:"score"`
	Manual    bool            `json:"manual"`
	Pattern   model.Pattern   `json:"pattern,omitempty"`
	EventKind model.EventKind `json:"eventType,omitempty"`
	Location  *model.Location `json:"location,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Stage is the payload of the staged emergency notifications.
type Stage struct {
	RunID     string    `json:"runId"`
	SubjectID string    `json:"subjectId"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Method    string    `json:"method,omitempty"`
	ETA       string    `json:"eta,omitempty"`
	Uploading bool      `json:"uploading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Resolved is sent when a subject confirms safety.
type Resolved struct {
	SubjectID string    `json:"subjectId"`
	Status    string    `json:"status"`
	Cancelled bool      `json:"cancelled"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdated is sent to observers on every position update.
type LocationUpdated struct {
	SubjectID string         `json:"subjectId"`
	Location  model.Location `json:"location"`
	Risk      int            `json:"risk"`
	Timestamp time.Time      `json:"timestamp"`
}

// LocationRisk warns a subject entering a high-risk zone.
type LocationRisk struct {
	Risk    int    `json:"risk"`
	Zone    string `json:"zone"`
	Message string `json:"message"`
}

// GuardianResponse relays an observer reply to the subject.
type GuardianResponse struct {
	ObserverID string    `json:"observerId"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

// HealthPing is the periodic liveness message.
type HealthPing struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorNotice reports a failed operation to its originating connection.
type ErrorNotice struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}
