package analysis

import (
	"time"

	model "github.com/okian/guardline/internal/domain/model"
)

// locationRiskHigh is the geo risk above which a location alone makes an
// incident likely.
const locationRiskHigh = 15

// RiskIndex answers the geo risk of a location.
type RiskIndex interface {
	RiskFor(loc *model.Location) int
}

// Predictor derives likelihood, timeframe and suggested actions from a
// pattern analysis and the subject's location.
type Predictor struct {
	analyzer *Analyzer
	zones    RiskIndex
}

// NewPredictor creates a predictor.
func NewPredictor(analyzer *Analyzer, zones RiskIndex) *Predictor {
	if analyzer == nil {
		analyzer = NewAnalyzer()
	}
	return &Predictor{analyzer: analyzer, zones: zones}
}

// Predict evaluates events (oldest first) relative to now.
func (p *Predictor) Predict(events []model.Event, loc *model.Location, now time.Time) model.Prediction {
	a := p.analyzer.Analyze(events)
	locRisk := 0
	if p.zones != nil {
		locRisk = p.zones.RiskFor(loc)
	}
	return model.Prediction{
		Likelihood:       Likelihood(events, locRisk),
		Timeframe:        Timeframe(events, now),
		SuggestedActions: SuggestedActions(a, locRisk),
		Analysis:         a,
	}
}

// Likelihood counts critical severity events, not critical kinds.
func Likelihood(events []model.Event, locRisk int) model.Likelihood {
	critical := 0
	for _, e := range events {
		if e.Severity == model.SeverityCritical {
			critical++
		}
	}
	switch {
	case critical >= 2 || locRisk > locationRiskHigh:
		return model.LikelihoodHigh
	case critical >= 1 || len(events) >= 3:
		return model.LikelihoodMedium
	default:
		return model.LikelihoodLow
	}
}

// Timeframe estimates time to incident from the age of the last event.
func Timeframe(events []model.Event, now time.Time) string {
	if len(events) == 0 {
		return model.TimeframeNone
	}
	minutes := now.Sub(events[len(events)-1].Timestamp).Minutes()
	switch {
	case minutes < 2:
		return model.TimeframeImmediate
	case minutes < 10:
		return model.TimeframeSoon
	default:
		return model.TimeframeLater
	}
}

// SuggestedActions returns the ordered next steps for an analysis.
func SuggestedActions(a model.Analysis, locRisk int) []string {
	switch {
	case a.Pattern == model.PatternEscalatingDanger:
		return []string{"Trigger emergency alert", "Notify all guardians", "Start evidence recording", "Share live location"}
	case locRisk > locationRiskHigh:
		return []string{"Monitor closely", "Prepare guardians", "Track location"}
	default:
		return []string{"Continue monitoring", "Log events"}
	}
}
