package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/denecity/taas/internal/routine"
)

// RoutineHandler serves the routine catalog.
type RoutineHandler struct {
	registry *routine.Registry
	logger   *zap.Logger
}

// NewRoutineHandler creates a new RoutineHandler.
func NewRoutineHandler(registry *routine.Registry, logger *zap.Logger) *RoutineHandler {
	return &RoutineHandler{registry: registry, logger: logger.Named("routine_handler")}
}

type routineResponse struct {
	Name           string         `json:"name"`
	HumanLabel     string         `json:"human_label"`
	Description    string         `json:"description"`
	ConfigTemplate map[string]any `json:"config_template"`
}

// List handles GET /api/v1/routines.
func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.registry.List()
	items := make([]routineResponse, 0, len(all))
	for _, rt := range all {
		items = append(items, routineResponse{
			Name:           rt.Name(),
			HumanLabel:     rt.HumanLabel(),
			Description:    rt.Description(),
			ConfigTemplate: rt.ConfigTemplate(),
		})
	}
	Ok(w, items)
}
