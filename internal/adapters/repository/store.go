// Package repository holds per-subject recent-event windows and the audit
// write-behind that persists assessments and escalation transitions.
package repository

import (
	"context"
	"time"
)

// Record kinds.
const (
	KindAssessment = "assessment"
	KindTransition = "transition"
)

// Record is one audit entry. Assessment records carry the score fields;
// transition records carry the run fields.
type Record struct {
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subjectId"`
	EventID   string    `json:"eventId,omitempty"`
	EventKind string    `json:"eventType,omitempty"`
	Score     int       `json:"score"`
	Level     string    `json:"level,omitempty"`
	Pattern   string    `json:"pattern,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Manual    bool      `json:"manual,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Sink persists audit records.
type Sink interface {
	// Write stores one record.
	Write(ctx context.Context, r Record) error

	// Close releases the sink's resources.
	Close() error
}
