package escalation

import "errors"

// Sentinel kinds for escalation errors.
var (
	ErrUnknownPolicy = errors.New("unknown duplicate arm policy")
)
