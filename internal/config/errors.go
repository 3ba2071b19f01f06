package config

import "errors"

// Sentinel errors returned by Load and Validate. Field specific errors are
// always joined with ErrInvalidConfig.
var (
	ErrInvalidConfig   = errors.New("invalid config")
	ErrLoadConfig      = errors.New("load config failed")
	ErrInvalidTimezone = errors.New("unknown timezone")
	ErrInvalidZone     = errors.New("invalid risk zone")
)
