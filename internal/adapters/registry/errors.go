package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNilConn        = errors.New("registry: nil connection")
	ErrInvalidSession = errors.New("registry: invalid session")
)
