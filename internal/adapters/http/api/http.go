// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/okian/guardline/internal/adapters/http/swagger"
	"github.com/okian/guardline/internal/adapters/mq/worker"
	"github.com/okian/guardline/internal/adapters/validation"
	service "github.com/okian/guardline/internal/app"
	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. HTTP callers have no connection,
// so failures are only returned in the response.
type Dependencies interface {
	SubmitEvent(ctx context.Context, connID string, req types.EventRequest) (types.EventResponse, error)
	SubmitLocation(ctx context.Context, connID string, req types.LocationRequest) (types.LocationUpdated, error)
	ManualAlert(ctx context.Context, connID string, req types.ManualAlertRequest) (escalation.Run, error)
	ConfirmSafe(ctx context.Context, connID string, req types.SafeRequest) (types.Resolved, error)
	ObserverRespond(ctx context.Context, connID string, req types.RespondRequest) (types.GuardianResponse, error)
	Escalation(ctx context.Context, subjectID string) service.EscalationStatus
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
	alertsHandler *AlertsHandler
	ws            http.Handler
	logger        logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithWebSocket mounts h at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, v *validation.Validator, opts ...Option) *Server {
	if v == nil {
		v = validation.New()
	}
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		eventsHandler: NewEventsHandler(deps, v),
		alertsHandler: NewAlertsHandler(deps, v),
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", NewKind(r.URL.Path, ErrNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(r.Method+" "+r.URL.Path, ErrMethod))
	})

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	swagger.Register(r)
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", s.eventsHandler.HandlePostEvent)
		r.Post("/locations", s.eventsHandler.HandlePostLocation)
		r.Post("/alerts/manual", s.alertsHandler.HandleManual)
		r.Post("/alerts/safe", s.alertsHandler.HandleSafe)
		r.Post("/observers/respond", s.alertsHandler.HandleRespond)
		r.Get("/subjects/{id}/escalation", s.alertsHandler.HandleEscalation)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decode reads and validates the request body into dst.
func decode(w http.ResponseWriter, r *http.Request, v *validation.Validator, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", validation.ErrMalformed, err)
	}
	return v.Decode(body, dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail classifies err, wraps it with op and writes it.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, validation.ErrMalformed):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, worker.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, worker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal", NewKind(op, ErrInternal))
	}
}
