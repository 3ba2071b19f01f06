// Package ws is the WebSocket transport for subjects and observers. Each
// connection gets a read pump that decodes, validates and dispatches inbound
// frames in order, and a write pump that drains its outbound buffer.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okian/guardline/internal/adapters/mq/worker"
	"github.com/okian/guardline/internal/adapters/registry"
	"github.com/okian/guardline/internal/adapters/validation"
	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

const (
	defaultRateLimit = 20
	defaultRateBurst = 40
)

// Service is what the transport drives. Operations that run on a subject's
// worker report their own execution failures to connID; the transport only
// reports what fails before work is accepted.
type Service interface {
	JoinSubject(ctx context.Context, conn registry.Conn, req types.JoinSubject) error
	JoinObserver(ctx context.Context, conn registry.Conn, req types.JoinObserver) error
	Disconnect(ctx context.Context, connID string)
	SubmitEvent(ctx context.Context, connID string, req types.EventRequest) (types.EventResponse, error)
	SubmitLocation(ctx context.Context, connID string, req types.LocationRequest) (types.LocationUpdated, error)
	ManualAlert(ctx context.Context, connID string, req types.ManualAlertRequest) (escalation.Run, error)
	ConfirmSafe(ctx context.Context, connID string, req types.SafeRequest) (types.Resolved, error)
	ObserverRespond(ctx context.Context, connID string, req types.RespondRequest) (types.GuardianResponse, error)
}

// Server upgrades HTTP requests and runs connections.
type Server struct {
	service   Service
	validator *validation.Validator
	upgrader  websocket.Upgrader
	limit     rate.Limit
	burst     int
	logger    logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closing bool

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit bounds inbound frames per connection.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limit = rate.Limit(perSecond)
			s.burst = burst
		}
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		if fn != nil {
			s.upgrader.CheckOrigin = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a transport bound to svc.
func NewServer(svc Service, v *validation.Validator, opts ...Option) *Server {
	if v == nil {
		v = validation.New()
	}
	s := &Server{
		service:   svc,
		validator: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		limit:   defaultRateLimit,
		burst:   defaultRateBurst,
		logger:  logger.Discard(),
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.RecordWSRejected("upgrade_failed")
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	c := newClient(conn, rate.NewLimiter(s.limit, s.burst), s.logger)
	if !s.track(c) {
		c.shutdown()
		return
	}
	defer s.untrack(c)
	s.logger.Debug(ctx, "websocket connected", logger.String("conn", c.ID()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writePump(ctx)
	}()

	c.readPump(ctx, s.handle)

	s.service.Disconnect(ctx, c.ID())
	c.close()
	s.logger.Debug(ctx, "websocket disconnected", logger.String("conn", c.ID()))
}

// Wait blocks until every write pump has exited.
func (s *Server) Wait() { s.wg.Wait() }

// Close sends a going-away frame to every open connection and closes it.
// Connections upgraded afterwards are closed immediately.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) track(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c.ID()] = c
	return true
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.ID())
}

func (s *Server) handle(ctx context.Context, c *Client, frame []byte) {
	var env types.Envelope[json.RawMessage]
	if err := json.Unmarshal(frame, &env); err != nil {
		metrics.RecordWSRejected("malformed")
		c.Send(errorMessage("", validation.ErrMalformed))
		return
	}

	if err := s.dispatch(ctx, c, env.Type, env.Data); err != nil {
		if !reportable(err) {
			return
		}
		metrics.RecordWSRejected(rejectReason(err))
		c.Send(errorMessage(env.Type, err))
	}
}

func (s *Server) dispatch(ctx context.Context, c *Client, msgType string, data json.RawMessage) error {
	switch msgType {
	case types.TypeJoinSubject:
		var req types.JoinSubject
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		return s.service.JoinSubject(ctx, c, req)

	case types.TypeJoinObserver:
		var req types.JoinObserver
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		return s.service.JoinObserver(ctx, c, req)

	case types.TypeEventDetected:
		var req types.EventRequest
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		_, err := s.service.SubmitEvent(ctx, c.ID(), req)
		return err

	case types.TypeLocationUpdate:
		var req types.LocationRequest
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		_, err := s.service.SubmitLocation(ctx, c.ID(), req)
		return err

	case types.TypeAlertManual:
		var req types.ManualAlertRequest
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		_, err := s.service.ManualAlert(ctx, c.ID(), req)
		return err

	case types.TypeUserSafe:
		var req types.SafeRequest
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		_, err := s.service.ConfirmSafe(ctx, c.ID(), req)
		return err

	case types.TypeGuardianRespond:
		var req types.RespondRequest
		if err := s.validator.Decode(data, &req); err != nil {
			return err
		}
		_, err := s.service.ObserverRespond(ctx, c.ID(), req)
		return err

	default:
		return ErrUnknownType
	}
}

// reportable tells whether err arose before the work was accepted. Failures
// during execution have already been surfaced by the worker.
func reportable(err error) bool {
	return errors.Is(err, validation.ErrInvalid) ||
		errors.Is(err, validation.ErrMalformed) ||
		errors.Is(err, ErrUnknownType) ||
		errors.Is(err, registry.ErrInvalidSession) ||
		errors.Is(err, worker.ErrQueueFull) ||
		errors.Is(err, worker.ErrStopped)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, validation.ErrMalformed):
		return "invalid"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return "backpressure"
	default:
		return "rejected"
	}
}
