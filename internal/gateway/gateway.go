// Package gateway implements the connection gateway & per-agent command
// multiplexer (spec §4.C/§4.D): the WebSocket endpoint agents connect to,
// the handshake that assigns each connection an AgentId, and the exclusive,
// request/reply-correlated Session each connected agent gets.
//
// The registry pattern (mutex-guarded map, snapshot-copy-on-read) is
// generalized from a gRPC-stream agent registry to a WebSocket-backed,
// full-duplex request/reply protocol.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	pingPeriod       = 20 * time.Second
	pongWait         = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway accepts agent WebSocket connections, performs the handshake, and
// maintains the registry of currently connected Sessions.
type Gateway struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session

	onConnect    []func(*Session)
	onDisconnect []func(computerID int64)
}

// New creates an empty Gateway.
func New(logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:   logger.Named("gateway"),
		sessions: make(map[int64]*Session),
	}
}

// OnConnect registers a callback invoked after a new agent completes its
// handshake and is registered. Callbacks run in registration order; panics
// and errors are not expected and are not recovered here, matching the
// teacher's callback convention elsewhere in this codebase.
func (g *Gateway) OnConnect(fn func(*Session)) { g.onConnect = append(g.onConnect, fn) }

// OnDisconnect registers a callback invoked after an agent's connection is
// torn down and removed from the registry.
func (g *Gateway) OnDisconnect(fn func(computerID int64)) {
	g.onDisconnect = append(g.onDisconnect, fn)
}

// Get returns the live Session for a connected agent, if any.
func (g *Gateway) Get(computerID int64) (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[computerID]
	return s, ok
}

// ConnectedIDs returns a snapshot of currently connected agent IDs.
func (g *Gateway) ConnectedIDs() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int64, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ServeHTTP upgrades the connection, performs the handshake, and — on
// success — registers the Session and blocks running its inbox loop plus
// keepalive pings until the connection closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	hello, err := g.readHello(conn)
	if err != nil {
		g.logger.Warn("handshake failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "invalid hello"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	session := newSession(hello.ComputerID, conn, g.logger)
	g.register(session)

	g.runKeepalive(session)

	for _, cb := range g.onConnect {
		cb(session)
	}

	session.runInbox()
	g.deregister(session)

	for _, cb := range g.onDisconnect {
		cb(session.ComputerID)
	}
}

func (g *Gateway) readHello(conn *websocket.Conn) (*helloFrame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var hello helloFrame
	if err := json.Unmarshal(data, &hello); err != nil {
		return nil, err
	}
	if hello.Type != "hello" || hello.ComputerID <= 0 {
		return nil, errInvalidHello
	}

	_ = conn.SetReadDeadline(time.Time{})
	return &hello, nil
}

var errInvalidHello = &protocolError{"invalid hello frame"}

type protocolError struct{ msg string }

func (e *protocolError) Error() string { return e.msg }

func (g *Gateway) register(s *Session) {
	g.mu.Lock()
	g.sessions[s.ComputerID] = s
	g.mu.Unlock()
	g.logger.Info("agent connected", zap.Int64("computer_id", s.ComputerID))
}

func (g *Gateway) deregister(s *Session) {
	g.mu.Lock()
	if cur, ok := g.sessions[s.ComputerID]; ok && cur == s {
		delete(g.sessions, s.ComputerID)
	}
	g.mu.Unlock()
	g.logger.Info("agent disconnected", zap.Int64("computer_id", s.ComputerID))
}

// runKeepalive starts a background ping ticker and wires the pong handler
// that resets the connection's read deadline, so a dead TCP connection is
// detected within pingPeriod+pongWait instead of hanging indefinitely.
func (g *Gateway) runKeepalive(s *Session) {
	conn := s.conn
	_ = conn.SetReadDeadline(time.Now().Add(pingPeriod + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingPeriod + pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait))
				s.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-s.closed:
				return
			}
		}
	}()
}
