package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/guardline/internal/adapters/validation"
	"github.com/okian/guardline/internal/domain/types"
)

// AlertsHandler handles manual alerts, safety confirmation, observer
// responses and escalation status.
type AlertsHandler struct {
	deps      Dependencies
	validator *validation.Validator
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(deps Dependencies, v *validation.Validator) *AlertsHandler {
	return &AlertsHandler{deps: deps, validator: v}
}

// HandleManual handles POST /v1/alerts/manual.
func (h *AlertsHandler) HandleManual(w http.ResponseWriter, r *http.Request) {
	const op = "api.manual_alert"
	var req types.ManualAlertRequest
	if err := decode(w, r, h.validator, &req); err != nil {
		fail(w, op, err)
		return
	}
	run, err := h.deps.ManualAlert(r.Context(), "", req)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// HandleSafe handles POST /v1/alerts/safe.
func (h *AlertsHandler) HandleSafe(w http.ResponseWriter, r *http.Request) {
	const op = "api.confirm_safe"
	var req types.SafeRequest
	if err := decode(w, r, h.validator, &req); err != nil {
		fail(w, op, err)
		return
	}
	resp, err := h.deps.ConfirmSafe(r.Context(), "", req)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRespond handles POST /v1/observers/respond.
func (h *AlertsHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	const op = "api.observer_respond"
	var req types.RespondRequest
	if err := decode(w, r, h.validator, &req); err != nil {
		fail(w, op, err)
		return
	}
	resp, err := h.deps.ObserverRespond(r.Context(), "", req)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleEscalation handles GET /v1/subjects/{id}/escalation.
func (h *AlertsHandler) HandleEscalation(w http.ResponseWriter, r *http.Request) {
	const op = "api.escalation"
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Escalation(r.Context(), id))
}
