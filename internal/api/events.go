package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/denecity/taas/internal/eventbus"
)

const eventsWriteTimeout = 5 * time.Second

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventsHandler serves the dashboard's WS /events feed: every subscriber
// gets every Event published on the bus, best-effort.
type EventsHandler struct {
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(bus *eventbus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger.Named("events_handler")}
}

// ServeWS handles GET /api/v1/events. The handler blocks, forwarding bus
// events to the client, until the connection closes.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("events: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	// Drain client reads on a separate goroutine purely to notice the
	// connection closing — this endpoint is output-only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
