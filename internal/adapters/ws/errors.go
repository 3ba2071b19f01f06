package ws

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrRateLimited = errors.New("rate limit exceeded")
)
