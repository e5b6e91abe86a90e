package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/denecity/taas/internal/scheduler"
	"github.com/denecity/taas/internal/store"
)

// TurtleHandler serves the read-only turtle state endpoints.
type TurtleHandler struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewTurtleHandler creates a new TurtleHandler.
func NewTurtleHandler(st *store.Store, sch *scheduler.Scheduler, logger *zap.Logger) *TurtleHandler {
	return &TurtleHandler{store: st, scheduler: sch, logger: logger.Named("turtle_handler")}
}

type turtleResponse struct {
	ID               int64            `json:"id"`
	Label            string           `json:"label,omitempty"`
	FuelLevel        *int64           `json:"fuel_level,omitempty"`
	Coords           *store.Coords    `json:"coords,omitempty"`
	Heading          *int64           `json:"heading,omitempty"`
	ConnectionStatus string           `json:"connection_status"`
	FirstSeenMs      int64            `json:"first_seen_ms,omitempty"`
	LastSeenMs       int64            `json:"last_seen_ms,omitempty"`
	Assignment       *assignmentBlock `json:"assignment,omitempty"`
}

type assignmentBlock struct {
	RoutineName string `json:"routine_name"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

func (h *TurtleHandler) toResponse(rec *store.AgentRecord, id int64) turtleResponse {
	resp := turtleResponse{
		ID:               id,
		Label:            rec.Label,
		FuelLevel:        rec.FuelLevel,
		Coords:           rec.Coords,
		Heading:          rec.Heading,
		ConnectionStatus: rec.ConnectionStatus,
		FirstSeenMs:      rec.FirstSeenMs,
		LastSeenMs:       rec.LastSeenMs,
	}
	if a, ok := h.scheduler.AssignmentFor(id); ok {
		resp.Assignment = &assignmentBlock{RoutineName: a.RoutineName, Status: a.Status, Error: a.Error}
	}
	return resp
}

// List handles GET /api/v1/turtles.
func (h *TurtleHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListIDs(r.Context())
	if err != nil {
		h.logger.Error("failed to list turtle ids", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]turtleResponse, 0, len(ids))
	for _, id := range ids {
		rec, err := h.store.Get(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to get turtle", zap.Int64("turtle_id", id), zap.Error(err))
			continue
		}
		items = append(items, h.toResponse(rec, id))
	}

	Ok(w, items)
}

// GetByID handles GET /api/v1/turtles/{id}.
func (h *TurtleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTurtleID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get turtle", zap.Int64("turtle_id", id), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, h.toResponse(rec, id))
}

func parseTurtleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		ErrBadRequest(w, "invalid id: must be an integer turtle id")
		return 0, false
	}
	return id, true
}
