// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// EventKind identifies a detected signal. The set is closed for scoring
// purposes but unknown kinds are still accepted.
type EventKind string

// Known event kinds.
const (
	KindScream      EventKind = "scream"
	KindHelp        EventKind = "help"
	KindBreathing   EventKind = "breathing"
	KindSilence     EventKind = "silence"
	KindFall        EventKind = "fall"
	KindSnatch      EventKind = "snatch"
	KindRunning     EventKind = "running"
	KindStruggle    EventKind = "struggle"
	KindDeviation   EventKind = "deviation"
	KindUnsafeZone  EventKind = "unsafe-zone"
	KindUnusualStop EventKind = "unusual-stop"
	KindNightTravel EventKind = "night-travel"
)

// Category groups event kinds by the sensor family that produced them.
type Category string

// Event categories.
const (
	CategoryVoice    Category = "voice"
	CategoryMotion   Category = "motion"
	CategoryBehavior Category = "behavior"
)

// Severity is the per-event severity attribute.
type Severity string

// Severities, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single detected signal for a subject. Events are values and
// are never mutated after creation.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Kind      EventKind `json:"type"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event, deriving category and severity from the kind
// when they are empty.
func NewEvent(id string, kind EventKind, category Category, severity Severity, ts time.Time) Event {
	if category == "" {
		category = CategoryOf(kind)
	}
	if severity == "" {
		severity = SeverityOf(kind)
	}
	return Event{ID: id, Kind: kind, Category: category, Severity: severity, Timestamp: ts}
}

// IsCriticalKind reports whether kind belongs to {fall, snatch, help, scream}.
// This is independent of the Severity attribute.
func IsCriticalKind(kind EventKind) bool {
	switch kind {
	case KindFall, KindSnatch, KindHelp, KindScream:
		return true
	default:
		return false
	}
}

// SeverityOf derives a severity from the kind.
func SeverityOf(kind EventKind) Severity {
	switch kind {
	case KindFall, KindSnatch, KindHelp, KindScream:
		return SeverityCritical
	case KindStruggle, KindUnsafeZone, KindSilence:
		return SeverityHigh
	case KindRunning, KindDeviation, KindNightTravel, KindBreathing:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CategoryOf derives the sensor category from the kind. Unknown kinds are
// treated as behavior signals.
func CategoryOf(kind EventKind) Category {
	switch kind {
	case KindScream, KindHelp, KindBreathing, KindSilence:
		return CategoryVoice
	case KindFall, KindSnatch, KindRunning, KindStruggle:
		return CategoryMotion
	default:
		return CategoryBehavior
	}
}

var descriptions = map[EventKind]string{
	KindScream:      "Scream detected",
	KindHelp:        `Distress keyword "HELP"`,
	KindBreathing:   "Panic breathing pattern",
	KindSilence:     "Forced silence",
	KindFall:        "Sudden fall",
	KindSnatch:      "Phone snatched",
	KindRunning:     "Running pattern",
	KindStruggle:    "Struggle movements",
	KindDeviation:   "Route deviation",
	KindUnsafeZone:  "Unsafe zone entry",
	KindUnusualStop: "Unusual stop",
	KindNightTravel: "Night travel",
}

// Describe returns a human readable label for the kind.
func Describe(kind EventKind) string {
	if d, ok := descriptions[kind]; ok {
		return d
	}
	return "Unknown event"
}

// Location is a WGS84 coordinate in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite and in range.
func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lng, 0) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// CrowdDensity is the observed density of people around the subject.
type CrowdDensity string

// Crowd densities.
const (
	CrowdUnknown CrowdDensity = "unknown"
	CrowdLow     CrowdDensity = "low"
	CrowdMedium  CrowdDensity = "medium"
	CrowdHigh    CrowdDensity = "high"
)

// BehaviorSignal carries independent behavioral anomaly flags.
type BehaviorSignal struct {
	RouteDeviation bool         `json:"routeDeviation"`
	SpeedAnomaly   bool         `json:"speedAnomaly"`
	CrowdDensity   CrowdDensity `json:"crowdDensity"`
	UnusualStop    bool         `json:"unusualStop"`
}
