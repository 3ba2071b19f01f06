// Package supervisor runs the long-lived parts of the process under a suture
// tree so a crashed component is restarted with backoff instead of taking the
// process down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds restart and shutdown parameters.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64
	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout is the maximum time each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns the default restart policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Tree is a two-layer supervisor: core holds the audit writer and the
// heartbeat; edge holds the listeners and collectors.
type Tree struct {
	root *suture.Supervisor
	core *suture.Supervisor
	edge *suture.Supervisor
	cfg  TreeConfig
}

// NewTree builds the tree. Zero fields of cfg take their defaults.
func NewTree(log *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = (&sutureslog.Handler{Logger: log}).MustHook()

	t := &Tree{
		root: suture.New("guardline", rootSpec),
		core: suture.New("core", childSpec),
		edge: suture.New("edge", childSpec),
		cfg:  cfg,
	}
	t.root.Add(t.core)
	t.root.Add(t.edge)
	return t
}

// Config returns the effective configuration.
func (t *Tree) Config() TreeConfig { return t.cfg }

// AddCore supervises svc in the core layer.
func (t *Tree) AddCore(svc suture.Service) suture.ServiceToken { return t.core.Add(svc) }

// AddEdge supervises svc in the edge layer.
func (t *Tree) AddEdge(svc suture.Service) suture.ServiceToken { return t.edge.Add(svc) }

// Serve runs the tree until ctx is done.
func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }

// ServeBackground runs the tree in a goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error { return t.root.ServeBackground(ctx) }
