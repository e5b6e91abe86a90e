package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/denecity/taas/internal/eventbus"
	"github.com/denecity/taas/internal/routine"
	"github.com/denecity/taas/internal/scheduler"
	"github.com/denecity/taas/internal/store"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
type RouterConfig struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Registry  *routine.Registry
	Bus       *eventbus.Bus
	Logger    *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router. Every route
// is under /api/v1 except the gateway's own agent-facing WebSocket endpoint,
// which is mounted separately in cmd/server since it belongs to the
// gateway, not this REST boundary.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	turtles := NewTurtleHandler(cfg.Store, cfg.Scheduler, cfg.Logger)
	routines := NewRoutineHandler(cfg.Registry, cfg.Logger)
	actions := NewActionHandler(cfg.Scheduler, cfg.Logger)
	events := NewEventsHandler(cfg.Bus, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/turtles", turtles.List)
		r.Get("/turtles/{id}", turtles.GetByID)

		r.Post("/turtles/{id}/execute", actions.Execute)
		r.Post("/turtles/{id}/abort", actions.Abort)
		r.Post("/turtles/{id}/continue", actions.Continue)
		r.Post("/turtles/{id}/restart", actions.Restart)

		r.Get("/routines", routines.List)

		r.Get("/events", events.ServeWS)
	})

	return r
}
