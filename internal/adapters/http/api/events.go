package api

import (
	"net/http"

	"github.com/okian/guardline/internal/adapters/validation"
	"github.com/okian/guardline/internal/domain/types"
)

// EventsHandler handles event and location submissions.
type EventsHandler struct {
	deps      Dependencies
	validator *validation.Validator
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies, v *validation.Validator) *EventsHandler {
	return &EventsHandler{deps: deps, validator: v}
}

// HandlePostEvent handles POST /v1/events. The event is scored before the
// response is written; a repeated eventId is acknowledged as a duplicate.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req types.EventRequest
	if err := decode(w, r, h.validator, &req); err != nil {
		fail(w, op, err)
		return
	}
	resp, err := h.deps.SubmitEvent(r.Context(), "", req)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePostLocation handles POST /v1/locations.
func (h *EventsHandler) HandlePostLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_location"
	var req types.LocationRequest
	if err := decode(w, r, h.validator, &req); err != nil {
		fail(w, op, err)
		return
	}
	resp, err := h.deps.SubmitLocation(r.Context(), "", req)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
