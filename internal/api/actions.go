package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/denecity/taas/internal/scheduler"
)

// ActionHandler serves the routine lifecycle endpoints: execute, abort,
// continue, and restart. restart cannot actually reboot a turtle's
// firmware — the server only validates that the turtle is connected and
// reports whether a reconnect-driven restart can be expected to happen.
type ActionHandler struct {
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(sch *scheduler.Scheduler, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{scheduler: sch, logger: logger.Named("action_handler")}
}

type executeRequest struct {
	Routine string `json:"routine"`
	Config  any    `json:"config"`
}

// Execute handles POST /api/v1/turtles/{id}/execute.
func (h *ActionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTurtleID(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Routine == "" {
		ErrBadRequest(w, "routine is required")
		return
	}

	cfg := parseRoutineConfig(req.Config)

	err := h.scheduler.Execute(id, req.Routine, cfg)
	switch {
	case err == nil:
		Created(w, envelope{"accepted": true})
	case errors.Is(err, scheduler.ErrUnknownRoutine):
		ErrNotFound(w)
	case errors.Is(err, scheduler.ErrAgentNotConnected):
		ErrConflict(w, "turtle is not connected")
	default:
		h.logger.Error("execute failed", zap.Int64("turtle_id", id), zap.Error(err))
		ErrInternal(w)
	}
}

// Abort handles POST /api/v1/turtles/{id}/abort.
func (h *ActionHandler) Abort(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTurtleID(w, r)
	if !ok {
		return
	}
	cancelled := h.scheduler.Abort(id)
	Ok(w, envelope{"aborted": cancelled})
}

// Continue handles POST /api/v1/turtles/{id}/continue.
func (h *ActionHandler) Continue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTurtleID(w, r)
	if !ok {
		return
	}

	err := h.scheduler.Continue(id)
	switch {
	case err == nil:
		Created(w, envelope{"accepted": true})
	case errors.Is(err, scheduler.ErrAgentNotConnected):
		ErrConflict(w, "turtle is not connected")
	case errors.Is(err, scheduler.ErrUnknownRoutine):
		ErrNotFound(w)
	default:
		ErrNotFound(w)
	}
}

// Restart handles POST /api/v1/turtles/{id}/restart. The server has no
// channel to reboot a turtle's firmware directly, so it validates that the
// turtle is currently connected and reports accepted accordingly; an
// actual restart still depends on the turtle reconnecting on its own.
func (h *ActionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTurtleID(w, r)
	if !ok {
		return
	}
	if !h.scheduler.IsConnected(id) {
		Ok(w, envelope{"accepted": false, "reason": "turtle is not connected"})
		return
	}
	Ok(w, envelope{"accepted": true})
}
