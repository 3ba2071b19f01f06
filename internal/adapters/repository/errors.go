package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrSinkClosed     = errors.New("audit sink closed")
	ErrBufferFull     = errors.New("audit buffer full")
	ErrInvalidRecord  = errors.New("invalid audit record")
	ErrMissingClient  = errors.New("redis client is required")
	ErrInvalidSubject = errors.New("subject id is required")
)
