package simulate

import (
	"fmt"
	"time"

	"github.com/okian/guardline/internal/adapters/repository"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/internal/domain/scoring"
	"github.com/okian/guardline/internal/domain/types"
)

const defaultWindowSize = 10

// verifier mirrors the service's scoring with the built-in rule table.
type verifier struct {
	scorer     *scoring.Scorer
	windowSize int
}

func newVerifier(timezone string, windowSize int) (*verifier, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		loc = l
	}
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &verifier{
		scorer:     scoring.NewScorer(scoring.WithLocation(loc)),
		windowSize: windowSize,
	}, nil
}

// expect appends req to the subject's window and returns the new window with
// the score the service should have returned for it.
func (v *verifier) expect(recent []model.Event, req types.EventRequest, now time.Time) ([]model.Event, int) {
	event := model.NewEvent(req.EventID, req.Type, req.Category, req.Severity, *req.Timestamp)
	window := repository.Truncate(append(append([]model.Event(nil), recent...), event), v.windowSize)
	return window, v.scorer.Score(window, req.Location, now, req.Behavior)
}

func (v *verifier) matches(resp types.EventResponse, expected int) bool {
	return resp.Score == expected && resp.Level == model.LevelFor(resp.Score)
}
