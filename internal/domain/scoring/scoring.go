// Package scoring turns an event window plus contextual signals into a
// bounded threat score using a fixed, auditable rule table.
package scoring

import (
	"fmt"
	"math"
	"time"

	geo "github.com/okian/guardline/internal/domain/geo"
	model "github.com/okian/guardline/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultBaseScore    = 20
	defaultEventWeight  = 10
	maxScoreValue       = 100
	nightRisk           = 15
	twilightRisk        = 8
	routeDeviationRisk  = 12
	speedAnomalyRisk    = 10
	lowCrowdDensityRisk = 8
	unusualStopRisk     = 10
	criticalReasonLevel = 75
	warningReasonLevel  = 50
	cautionReasonLevel  = 30
)

// DefaultWeights returns the per-kind event weight table.
func DefaultWeights() map[model.EventKind]float64 {
	return map[model.EventKind]float64{
		model.KindScream:      25,
		model.KindHelp:        30,
		model.KindBreathing:   15,
		model.KindSilence:     20,
		model.KindFall:        35,
		model.KindSnatch:      40,
		model.KindRunning:     20,
		model.KindStruggle:    30,
		model.KindDeviation:   15,
		model.KindUnsafeZone:  25,
		model.KindUnusualStop: 12,
		model.KindNightTravel: 18,
	}
}

// Table is the immutable rule configuration a Scorer evaluates against.
type Table struct {
	Base          float64
	DefaultWeight float64
	Weights       map[model.EventKind]float64
	Zones         *geo.Index
	// Location is the wall-clock zone the time-of-day rule reads the hour in.
	Location *time.Location
}

// DefaultTable returns the built-in rule table.
func DefaultTable() Table {
	return Table{
		Base:          defaultBaseScore,
		DefaultWeight: defaultEventWeight,
		Weights:       DefaultWeights(),
		Zones:         geo.NewIndex(),
		Location:      time.Local,
	}
}

// Option applies a configuration option to the Table a Scorer is built with.
type Option func(*Table)

// WithBase sets the base score.
func WithBase(base float64) Option {
	return func(t *Table) {
		if base >= 0 {
			t.Base = base
		}
	}
}

// WithWeightsFromConfig overlays weights from a configuration map onto the
// built-in table and sets the weight used for unknown kinds.
func WithWeightsFromConfig(weights map[string]float64, defaultWeight float64) Option {
	return func(t *Table) {
		merged := DefaultWeights()
		for kind, w := range weights {
			if w >= 0 {
				merged[model.EventKind(kind)] = w
			}
		}
		t.Weights = merged
		if defaultWeight >= 0 {
			t.DefaultWeight = defaultWeight
		}
	}
}

// WithZones sets the geo risk index.
func WithZones(ix *geo.Index) Option {
	return func(t *Table) {
		if ix != nil {
			t.Zones = ix
		}
	}
}

// WithLocation sets the zone the hour of day is read in.
func WithLocation(loc *time.Location) Option {
	return func(t *Table) {
		if loc != nil {
			t.Location = loc
		}
	}
}

// Breakdown is the per-factor contribution of one evaluation.
type Breakdown struct {
	Base     float64
	Events   float64
	Geo      int
	Zone     string
	Time     int
	Behavior int
	Score    int
}

// Scorer evaluates the rule table. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	table Table
}

// NewScorer creates a scorer over DefaultTable with options applied.
func NewScorer(opts ...Option) *Scorer {
	t := DefaultTable()
	for _, opt := range opts {
		opt(&t)
	}
	return NewScorerFromTable(t)
}

// NewScorerFromTable creates a scorer over a private copy of t.
func NewScorerFromTable(t Table) *Scorer {
	weights := make(map[model.EventKind]float64, len(t.Weights))
	for k, v := range t.Weights {
		weights[k] = v
	}
	t.Weights = weights
	if t.Zones == nil {
		t.Zones = geo.NewIndex()
	}
	if t.Location == nil {
		t.Location = time.Local
	}
	return &Scorer{table: t}
}

// Zones returns the geo index the scorer consults.
func (s *Scorer) Zones() *geo.Index { return s.table.Zones }

// Weight returns the weight applied to kind.
func (s *Scorer) Weight(kind model.EventKind) float64 {
	if w, ok := s.table.Weights[kind]; ok {
		return w
	}
	return s.table.DefaultWeight
}

// Score returns the threat score in [0,100] for the given inputs.
func (s *Scorer) Score(events []model.Event, loc *model.Location, now time.Time, behavior *model.BehaviorSignal) int {
	return s.Breakdown(events, loc, now, behavior).Score
}

// Breakdown evaluates every rule and returns the individual contributions.
func (s *Scorer) Breakdown(events []model.Event, loc *model.Location, now time.Time, behavior *model.BehaviorSignal) Breakdown {
	b := Breakdown{Base: s.table.Base}
	for _, e := range events {
		b.Events += s.Weight(e.Kind)
	}
	if z, ok := s.table.Zones.ZoneFor(loc); ok {
		b.Geo = z.Risk
		b.Zone = z.Name
	}
	b.Time = s.TimeRisk(now)
	b.Behavior = BehaviorRisk(behavior)

	total := b.Base + b.Events + float64(b.Geo+b.Time+b.Behavior)
	b.Score = int(math.Round(math.Max(0, math.Min(maxScoreValue, total))))
	return b
}

// TimeRisk returns the time-of-day contribution for now.
func (s *Scorer) TimeRisk(now time.Time) int {
	hour := now.In(s.table.Location).Hour()
	switch {
	case hour >= 22 || hour < 5:
		return nightRisk
	case (hour >= 20 && hour < 22) || (hour >= 5 && hour < 7):
		return twilightRisk
	default:
		return 0
	}
}

// BehaviorRisk sums the independent behavioral anomaly flags.
func BehaviorRisk(b *model.BehaviorSignal) int {
	if b == nil {
		return 0
	}
	risk := 0
	if b.RouteDeviation {
		risk += routeDeviationRisk
	}
	if b.SpeedAnomaly {
		risk += speedAnomalyRisk
	}
	if b.CrowdDensity == model.CrowdLow {
		risk += lowCrowdDensityRisk
	}
	if b.UnusualStop {
		risk += unusualStopRisk
	}
	return risk
}

// Reasons renders a breakdown as ordered human readable lines.
func (s *Scorer) Reasons(b Breakdown, events []model.Event, behavior *model.BehaviorSignal) []string {
	reasons := []string{fmt.Sprintf("Base risk level: %g/100", b.Base)}
	if n := len(events); n > 0 {
		reasons = append(reasons,
			"Last detected: "+model.Describe(events[n-1].Kind),
			fmt.Sprintf("Events in window: %d", n),
		)
	}
	if b.Geo > 0 {
		reasons = append(reasons, fmt.Sprintf("High-risk zone detected: %s (+%d risk)", b.Zone, b.Geo))
	} else {
		reasons = append(reasons, "Location: Safe zone")
	}
	if b.Time > 0 {
		reasons = append(reasons, fmt.Sprintf("Time factor: Late hours (+%d risk)", b.Time))
	}
	if behavior != nil {
		if behavior.RouteDeviation {
			reasons = append(reasons, fmt.Sprintf("Route deviation (+%d risk)", routeDeviationRisk))
		}
		if behavior.SpeedAnomaly {
			reasons = append(reasons, fmt.Sprintf("Speed anomaly (+%d risk)", speedAnomalyRisk))
		}
		if behavior.CrowdDensity == model.CrowdLow {
			reasons = append(reasons, fmt.Sprintf("Low crowd density (+%d risk)", lowCrowdDensityRisk))
		}
		if behavior.UnusualStop {
			reasons = append(reasons, fmt.Sprintf("Unusual stop duration (+%d risk)", unusualStopRisk))
		}
	}
	switch {
	case b.Score >= criticalReasonLevel:
		reasons = append(reasons, "CRITICAL: Multiple threat indicators detected")
	case b.Score >= warningReasonLevel:
		reasons = append(reasons, "WARNING: Elevated risk level")
	case b.Score >= cautionReasonLevel:
		reasons = append(reasons, "CAUTION: Minor anomalies detected")
	default:
		reasons = append(reasons, "SAFE: Normal operation")
	}
	return reasons
}

// Assess scores the inputs and combines the result with a pattern analysis
// into a fresh ThreatAssessment.
func (s *Scorer) Assess(events []model.Event, loc *model.Location, now time.Time, behavior *model.BehaviorSignal, a model.Analysis) model.ThreatAssessment {
	b := s.Breakdown(events, loc, now, behavior)
	return model.ThreatAssessment{
		Score:          b.Score,
		Level:          model.LevelFor(b.Score),
		Pattern:        a.Pattern,
		Confidence:     a.Confidence,
		Recommendation: a.Recommendation,
		Reasons:        s.Reasons(b, events, behavior),
	}
}
