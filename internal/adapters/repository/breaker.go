package repository

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the settings used for the audit sink.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "audit",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerSink guards a Sink with a circuit breaker so a failing backend is
// skipped quickly instead of stalling the writer.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerSink wraps next.
func NewBreakerSink(next Sink, cfg BreakerConfig, log logger.Logger) *BreakerSink {
	if log == nil {
		log = logger.Discard()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}
	metrics.UpdateBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return &BreakerSink{next: next, cb: gobreaker.NewCircuitBreaker[interface{}](settings)}
}

// State returns the breaker state name.
func (b *BreakerSink) State() string { return b.cb.State().String() }

// Write forwards r unless the breaker is open.
func (b *BreakerSink) Write(ctx context.Context, r Record) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Write(ctx, r)
	})
	return err
}

// Close closes the wrapped sink.
func (b *BreakerSink) Close() error { return b.next.Close() }

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
