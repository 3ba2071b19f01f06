// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/guardline/internal/domain/geo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// WorkerCount sets the number of per-subject worker shards.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds each shard's task queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many event ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// RegistryShards sets the number of session registry shards.
	RegistryShards int `koanf:"registry_shards"`

	// WindowSize bounds the recent-event window used for analysis.
	WindowSize int `koanf:"window_size"`

	// BaseScore is the score every assessment starts from.
	BaseScore float64 `koanf:"base_score"`

	// DefaultEventWeight is used for event kinds missing from EventWeights.
	DefaultEventWeight float64 `koanf:"default_event_weight"`

	// EventWeights maps event kinds to their score contribution. Empty
	// means the built-in table.
	EventWeights map[string]float64 `koanf:"event_weights"`

	// RiskZones lists circular high-risk areas in match order. Empty means
	// the built-in zones.
	RiskZones []geo.Zone `koanf:"risk_zones"`

	// Timezone is the IANA name used to read the hour for time risk.
	Timezone string `koanf:"timezone"`

	// EscalationThreshold is the score at or above which a run is armed.
	EscalationThreshold int `koanf:"escalation_threshold"`

	// Stage delays, measured from the arm instant.
	GuardianDelayMS  int `koanf:"guardian_delay_ms"`
	RecordingDelayMS int `koanf:"recording_delay_ms"`
	ServicesDelayMS  int `koanf:"services_delay_ms"`

	// DuplicateArmPolicy is supersede or suppress.
	DuplicateArmPolicy string `koanf:"duplicate_arm_policy"`

	// LocationRiskThreshold is the zone risk above which a location notice
	// is sent to the subject.
	LocationRiskThreshold int `koanf:"location_risk_threshold"`

	// HeartbeatIntervalMS is the health ping period.
	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms"`

	// ClientRateLimit and ClientRateBurst bound inbound WebSocket messages
	// per connection.
	ClientRateLimit float64 `koanf:"client_rate_limit"`
	ClientRateBurst int     `koanf:"client_rate_burst"`

	// AuditBufferSize bounds the audit write-behind buffer.
	AuditBufferSize int `koanf:"audit_buffer_size"`

	// RedisAddr enables the Redis stream audit sink when set.
	RedisAddr   string `koanf:"redis_addr"`
	RedisStream string `koanf:"redis_stream"`
	RedisMaxLen int64  `koanf:"redis_max_len"`

	// Breaker settings for the audit sink.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutMS        int `koanf:"breaker_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":8080",
		WorkerCount:             runtime.NumCPU() * 2,
		QueueSize:               1024,
		DedupeSize:              50_000,
		RegistryShards:          32,
		WindowSize:              10,
		BaseScore:               20,
		DefaultEventWeight:      10,
		Timezone:                "Local",
		EscalationThreshold:     60,
		GuardianDelayMS:         1000,
		RecordingDelayMS:        1500,
		ServicesDelayMS:         2000,
		DuplicateArmPolicy:      "supersede",
		LocationRiskThreshold:   15,
		HeartbeatIntervalMS:     30_000,
		ClientRateLimit:         20,
		ClientRateBurst:         40,
		AuditBufferSize:         4096,
		RedisStream:             "guardline:audit",
		RedisMaxLen:             100_000,
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        10_000,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WindowSize < 1:
		return fmt.Errorf("%w: window_size must be positive", ErrInvalidConfig)
	case c.EscalationThreshold < 1 || c.EscalationThreshold > 100:
		return fmt.Errorf("%w: escalation_threshold must be within 1..100", ErrInvalidConfig)
	case c.GuardianDelayMS < 1 || c.RecordingDelayMS < c.GuardianDelayMS || c.ServicesDelayMS < c.RecordingDelayMS:
		return fmt.Errorf("%w: stage delays must be positive and non-decreasing", ErrInvalidConfig)
	case c.HeartbeatIntervalMS < 1:
		return fmt.Errorf("%w: heartbeat_interval_ms must be positive", ErrInvalidConfig)
	case c.ClientRateLimit <= 0 || c.ClientRateBurst < 1:
		return fmt.Errorf("%w: client rate limit and burst must be positive", ErrInvalidConfig)
	case c.AuditBufferSize < 1:
		return fmt.Errorf("%w: audit_buffer_size must be positive", ErrInvalidConfig)
	case c.BreakerFailureThreshold < 1 || c.BreakerTimeoutMS < 1:
		return fmt.Errorf("%w: breaker threshold and timeout must be positive", ErrInvalidConfig)
	case c.RedisMaxLen < 0:
		return fmt.Errorf("%w: redis_max_len must not be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(strings.TrimSpace(c.DuplicateArmPolicy)) {
	case "", "supersede", "suppress":
	default:
		return fmt.Errorf("%w: unknown duplicate_arm_policy %q", ErrInvalidConfig, c.DuplicateArmPolicy)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	for _, z := range c.RiskZones {
		if z.RadiusKm <= 0 || z.Risk < 0 {
			return fmt.Errorf("%w: %w %q: radius must be positive and risk non-negative", ErrInvalidConfig, ErrInvalidZone, z.Name)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w %q: %v", ErrInvalidConfig, ErrInvalidTimezone, c.Timezone, err)
	}
	return loc, nil
}

// Zones returns the configured risk zones or the built-in ones.
func (c *Config) Zones() []geo.Zone {
	if len(c.RiskZones) == 0 {
		return geo.DefaultZones()
	}
	return c.RiskZones
}

// StageDelays returns the three stage delays.
func (c *Config) StageDelays() (guardian, recording, services time.Duration) {
	return ms(c.GuardianDelayMS), ms(c.RecordingDelayMS), ms(c.ServicesDelayMS)
}

// HeartbeatInterval returns the health ping period.
func (c *Config) HeartbeatInterval() time.Duration { return ms(c.HeartbeatIntervalMS) }

// BreakerTimeout returns how long the audit breaker stays open.
func (c *Config) BreakerTimeout() time.Duration { return ms(c.BreakerTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
