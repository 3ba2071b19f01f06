package simulate

import "errors"

var (
	// ErrUnknownScenario is returned for a scenario name that is not registered.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrUnexpectedStatus is returned when the service answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMismatch is returned when returned scores differ from local scoring.
	ErrMismatch = errors.New("score mismatch")
	// ErrNotDuplicate is returned when a resubmitted event id is scored again.
	ErrNotDuplicate = errors.New("resubmitted event was not deduplicated")
)
