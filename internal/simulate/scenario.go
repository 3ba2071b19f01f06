package simulate

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/internal/domain/types"
)

// ScenarioRandom draws Count events per subject from every known kind.
const ScenarioRandom = "random"

// Step is one scripted event of a scenario.
type Step struct {
	Kind     model.EventKind
	Location *model.Location
}

var (
	unsafeZone = &model.Location{Lat: 28.7041, Lng: 77.1025}
	crimeArea  = &model.Location{Lat: 28.6139, Lng: 77.2090}
)

var scenarios = map[string][]Step{
	"commute": {
		{Kind: model.KindDeviation},
		{Kind: model.KindUnusualStop},
	},
	"fall": {
		{Kind: model.KindFall},
		{Kind: model.KindScream},
		{Kind: model.KindHelp},
	},
	"snatch": {
		{Kind: model.KindRunning, Location: crimeArea},
		{Kind: model.KindSnatch, Location: crimeArea},
		{Kind: model.KindStruggle, Location: crimeArea},
	},
	"night-route": {
		{Kind: model.KindNightTravel},
		{Kind: model.KindDeviation, Location: unsafeZone},
		{Kind: model.KindUnsafeZone, Location: unsafeZone},
		{Kind: model.KindSilence, Location: unsafeZone},
	},
}

var randomKinds = []model.EventKind{
	model.KindScream, model.KindHelp, model.KindBreathing, model.KindSilence,
	model.KindFall, model.KindSnatch, model.KindRunning, model.KindStruggle,
	model.KindDeviation, model.KindUnsafeZone, model.KindUnusualStop, model.KindNightTravel,
}

// Scenarios returns the registered scenario names in sorted order.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios)+1)
	for name := range scenarios {
		names = append(names, name)
	}
	names = append(names, ScenarioRandom)
	sort.Strings(names)
	return names
}

// steps resolves a scenario into the steps one subject plays.
func steps(name string, count int) ([]Step, error) {
	if name == ScenarioRandom {
		out := make([]Step, count)
		for i := range out {
			out[i] = Step{Kind: randomKinds[randomIndex(len(randomKinds))]}
		}
		return out, nil
	}
	s, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return s, nil
}

// randomIndex returns a random index in [0,n) using crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// buildRequest turns a step into an event request carrying the subject's
// client side window.
func buildRequest(subjectID string, step Step, recent []model.Event, now time.Time) types.EventRequest {
	ts := now.UTC()
	return types.EventRequest{
		SubjectID:    subjectID,
		EventID:      uuid.NewString(),
		Type:         step.Kind,
		Timestamp:    &ts,
		Location:     step.Location,
		RecentEvents: recent,
	}
}
