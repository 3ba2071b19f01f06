// Package analysis classifies recent event windows into threat patterns and
// predicts near-term risk from them.
package analysis

import (
	model "github.com/okian/guardline/internal/domain/model"
)

const (
	defaultWindow         = 5
	criticalKindThreshold = 2
	motionThreshold       = 3
)

// Recommendations attached to each pattern.
const (
	RecommendContinue  = "Continue monitoring"
	RecommendEmergency = "Trigger emergency protocol immediately"
	RecommendPrepare   = "Prepare emergency response"
	RecommendIncrease  = "Increase alert level"
)

// Analyzer classifies the most recent events of a window. Checks are ordered
// and the first match wins.
type Analyzer struct {
	window int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWindow sets how many of the most recent events are inspected.
func WithWindow(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.window = n
		}
	}
}

// NewAnalyzer creates an analyzer over the last 5 events.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{window: defaultWindow}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies events, which are ordered oldest first.
func (a *Analyzer) Analyze(events []model.Event) model.Analysis {
	if len(events) == 0 {
		return model.Analysis{Pattern: model.PatternNormal, Confidence: 0.9, Recommendation: RecommendContinue}
	}
	recent := events
	if len(recent) > a.window {
		recent = recent[len(recent)-a.window:]
	}

	critical, motion := 0, 0
	for _, e := range recent {
		if model.IsCriticalKind(e.Kind) {
			critical++
		}
		if e.Category == model.CategoryMotion {
			motion++
		}
	}

	switch {
	case critical >= criticalKindThreshold:
		return model.Analysis{Pattern: model.PatternEscalatingDanger, Confidence: 0.95, Recommendation: RecommendEmergency}
	case motion >= motionThreshold:
		return model.Analysis{Pattern: model.PatternPhysicalStruggle, Confidence: 0.85, Recommendation: RecommendPrepare}
	default:
		return model.Analysis{Pattern: model.PatternMonitoring, Confidence: 0.75, Recommendation: RecommendIncrease}
	}
}
