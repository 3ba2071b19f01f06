package service

import (
	"fmt"
	"time"

	"github.com/okian/guardline/internal/config"
	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/geo"
	"github.com/okian/guardline/internal/domain/scoring"
	"github.com/okian/guardline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of per-subject worker shards.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each shard's queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRegistryShards sets the number of session registry shards.
func WithRegistryShards(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.registryShards = n
		}
	}
}

// WithWindowSize bounds the recent-event window.
func WithWindowSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithScorer sets the threat scorer. Its zones also drive location notices
// and predictions.
func WithScorer(sc *scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithEscalation sets the coordinator options.
func WithEscalation(opts ...escalation.Option) Option {
	return func(s *Service) {
		s.escalationOpts = append(s.escalationOpts, opts...)
	}
}

// WithLocationRiskThreshold sets the zone risk above which the subject is
// warned about its location.
func WithLocationRiskThreshold(risk int) Option {
	return func(s *Service) {
		if risk >= 0 {
			s.locationRiskThreshold = risk
		}
	}
}

// WithHeartbeatInterval sets the health ping period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithAuditor sets where assessments and transitions are recorded.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// OptionsFromConfig translates cfg into service options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := escalation.ParsePolicy(cfg.DuplicateArmPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	guardian, recording, services := cfg.StageDelays()

	scorer := scoring.NewScorer(
		scoring.WithBase(cfg.BaseScore),
		scoring.WithWeightsFromConfig(cfg.EventWeights, cfg.DefaultEventWeight),
		scoring.WithZones(geo.NewIndex(geo.WithZones(cfg.Zones()))),
		scoring.WithLocation(loc),
	)

	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithRegistryShards(cfg.RegistryShards),
		WithWindowSize(cfg.WindowSize),
		WithScorer(scorer),
		WithEscalation(
			escalation.WithThreshold(cfg.EscalationThreshold),
			escalation.WithStageDelays(guardian, recording, services),
			escalation.WithPolicy(policy),
		),
		WithLocationRiskThreshold(cfg.LocationRiskThreshold),
		WithHeartbeatInterval(cfg.HeartbeatInterval()),
	}, nil
}
