package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrStopped     = errors.New("worker stopped")
	ErrQueueFull   = errors.New("worker queue full")
	ErrTaskPanic   = errors.New("task panicked")
	ErrInvalidTask = errors.New("invalid task")
)
