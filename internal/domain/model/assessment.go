package model

// Pattern is the qualitative classification of a recent event window.
type Pattern string

// Patterns produced by the analyzer.
const (
	PatternNormal           Pattern = "normal"
	PatternEscalatingDanger Pattern = "escalating-danger"
	PatternPhysicalStruggle Pattern = "physical-struggle"
	PatternMonitoring       Pattern = "monitoring"
)

// Level is the coarse threat band derived from a score.
type Level string

// Threat levels.
const (
	LevelSafe     Level = "safe"
	LevelCaution  Level = "caution"
	LevelDanger   Level = "danger"
	LevelCritical Level = "critical"
)

// LevelFor maps a score onto a threat level.
func LevelFor(score int) Level {
	switch {
	case score >= 75:
		return LevelCritical
	case score >= 50:
		return LevelDanger
	case score >= 30:
		return LevelCaution
	default:
		return LevelSafe
	}
}

// Analysis is the pattern classification of an event window.
type Analysis struct {
	Pattern        Pattern `json:"pattern"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
}

// ThreatAssessment is the result of one evaluation. It is replaced, never
// mutated.
type ThreatAssessment struct {
	Score          int      `json:"score"`
	Level          Level    `json:"level"`
	Pattern        Pattern  `json:"pattern"`
	Confidence     float64  `json:"confidence"`
	Recommendation string   `json:"recommendation"`
	Reasons        []string `json:"reasons"`
}

// Likelihood of a near-term incident.
type Likelihood string

// Likelihoods.
const (
	LikelihoodLow    Likelihood = "low"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodHigh   Likelihood = "high"
)

// Timeframe estimates.
const (
	TimeframeNone      = "none"
	TimeframeImmediate = "immediate"
	TimeframeSoon      = "5-10 minutes"
	TimeframeLater     = "10+ minutes"
)

// Prediction summarizes the likely next risk for a subject.
type Prediction struct {
	Likelihood       Likelihood `json:"likelihood"`
	Timeframe        string     `json:"timeframe"`
	SuggestedActions []string   `json:"suggestedActions"`
	Analysis         Analysis   `json:"analysis"`
}
