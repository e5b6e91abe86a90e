package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// replyTimeout bounds how long Send waits for a correlated reply before
// giving up on the in-flight command.
const replyTimeout = 30 * time.Second

// ErrDisconnected is returned by Send when the underlying connection has
// already gone away.
var ErrDisconnected = errors.New("gateway: agent disconnected")

// ErrTimeout is returned by Send when no reply arrives within replyTimeout.
var ErrTimeout = errors.New("gateway: command reply timed out")

// Reply is the normalized result of a single command round trip.
type Reply struct {
	OK     bool
	Result any
	Error  string
}

// Session is the connection gateway's per-agent command multiplexer: one
// goroutine demultiplexes inbound replies by request ID onto a pending-
// request table, while an exclusive lease (the lease mutex) guarantees at most
// one concurrent command stream is ever in flight for this agent.
type Session struct {
	ComputerID int64
	conn       *websocket.Conn
	logger     *zap.Logger

	writeMu sync.Mutex // gorilla websocket requires a single writer

	mu      sync.Mutex
	pending map[string]chan replyFrame
	alive   bool

	lease sync.Mutex // the exclusive "at most one command stream" guarantee

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(computerID int64, conn *websocket.Conn, logger *zap.Logger) *Session {
	return &Session{
		ComputerID: computerID,
		conn:       conn,
		logger:     logger.Named("session").With(zap.Int64("computer_id", computerID)),
		pending:    make(map[string]chan replyFrame),
		alive:      true,
		closed:     make(chan struct{}),
	}
}

// Acquire takes the exclusive command-stream lease, blocking until it is
// available, ctx is cancelled, or the session closes (ErrDisconnected). A
// free lease is taken at once, even on a closed session. The returned func
// releases it; a wait that gives up releases the lease as soon as its
// pending lock attempt succeeds.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	if s.lease.TryLock() {
		return s.lease.Unlock, nil
	}
	done := make(chan struct{})
	go func() {
		s.lease.Lock()
		close(done)
	}()

	select {
	case <-done:
		return s.lease.Unlock, nil
	case <-ctx.Done():
		go func() { <-done; s.lease.Unlock() }()
		return nil, ctx.Err()
	case <-s.closed:
		go func() { <-done; s.lease.Unlock() }()
		return nil, ErrDisconnected
	}
}

// IsAlive reports whether the underlying connection is still open.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Send issues one command and blocks for its correlated reply, up to
// replyTimeout or ctx cancellation, whichever comes first. Callers are
// expected to hold the session lease first via Acquire.
func (s *Session) Send(ctx context.Context, line string) (Reply, error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return Reply{}, ErrDisconnected
	}
	reqID, err := newRequestID()
	if err != nil {
		s.mu.Unlock()
		return Reply{}, fmt.Errorf("gateway: generate request id: %w", err)
	}
	ch := make(chan replyFrame, 1)
	s.pending[reqID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
	}()

	frame := commandFrame{ID: reqID, Command: line}
	if err := s.writeJSON(frame); err != nil {
		return Reply{}, fmt.Errorf("gateway: send command: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	select {
	case rep, ok := <-ch:
		if !ok {
			return Reply{}, ErrDisconnected
		}
		return Reply{OK: rep.OK, Result: rep.value(), Error: rep.Error}, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return Reply{}, ctx.Err()
		}
		return Reply{}, ErrTimeout
	case <-s.closed:
		return Reply{}, ErrDisconnected
	}
}

func (s *Session) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// runInbox reads frames off the connection until it closes, demultiplexing
// each one onto its pending request channel by request ID. It is the single
// reader goroutine for this connection, matching the protocol invariant
// that a WebSocket connection has exactly one reader.
func (s *Session) runInbox() {
	defer s.shutdown()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("agent inbox closed", zap.Error(err))
			return
		}

		var rep replyFrame
		if err := json.Unmarshal(data, &rep); err != nil {
			s.logger.Warn("dropping malformed reply frame", zap.Error(err))
			continue
		}

		reqID := rep.requestID()
		if reqID == "" {
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[reqID]
		if ok {
			delete(s.pending, reqID)
		}
		s.mu.Unlock()

		if ok {
			ch <- rep
		}
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.alive = false
		pending := s.pending
		s.pending = make(map[string]chan replyFrame)
		s.mu.Unlock()

		for _, ch := range pending {
			close(ch)
		}
		close(s.closed)
		_ = s.conn.Close()
	})
}

func newRequestID() (string, error) {
	buf := make([]byte, 16) // 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
