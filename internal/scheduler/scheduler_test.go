package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/denecity/taas/internal/eventbus"
	"github.com/denecity/taas/internal/gateway"
	"github.com/denecity/taas/internal/routine"
	"github.com/denecity/taas/internal/store"
)

type testFrame struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// connectFakeAgent dials srv as computerID and replies OK to every command
// frame it receives, forever, until the connection is closed.
func connectFakeAgent(t *testing.T, srv *httptest.Server, computerID int64) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := map[string]any{"type": "hello", "computer_id": computerID}
	b, _ := json.Marshal(hello)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd testFrame
			_ = json.Unmarshal(data, &cmd)
			reply := map[string]any{"request_id": cmd.ID, "ok": true, "value": nil}
			b, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}()

	return conn
}

// connectSilentAgent dials srv as computerID but never replies to any
// command frame, so any Send against it blocks until context cancellation.
func connectSilentAgent(t *testing.T, srv *httptest.Server, computerID int64) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := map[string]any{"type": "hello", "computer_id": computerID}
	b, _ := json.Marshal(hello)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	// still need a reader so pong/close frames don't back up, but it never
	// produces a reply frame.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn
}

func newTestScheduler(t *testing.T) (*Scheduler, *gateway.Gateway, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := store.Open(store.Config{DSN: dsn, Logger: logger, LogLevel: gormlogger.Silent})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	st := store.New(db, logger)
	bus := eventbus.New(logger)
	gw := gateway.New(logger)
	registry := routine.NewRegistry()

	s, err := New(registry, gw, st, bus, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	return s, gw, srv
}

func waitConnected(t *testing.T, gw *gateway.Gateway, id int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := gw.Get(id); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("turtle %d never registered with the gateway", id)
}

func waitStatus(t *testing.T, s *Scheduler, id int64, want string) Assignment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var a Assignment
	for time.Now().Before(deadline) {
		var ok bool
		a, ok = s.AssignmentFor(id)
		if ok && a.Status == want {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("turtle %d assignment never reached status %q, last seen %+v", id, want, a)
	return a
}

func TestExecuteUnknownRoutineReturnsError(t *testing.T) {
	s, _, srv := newTestScheduler(t)
	defer srv.Close()

	err := s.Execute(1, "does_not_exist", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown routine")
	}
}

func TestExecuteAgentNotConnectedReturnsError(t *testing.T) {
	s, _, srv := newTestScheduler(t)
	defer srv.Close()

	err := s.Execute(1, "execute_command", map[string]any{"subroutine": "get_fuel_level"})
	if err != ErrAgentNotConnected {
		t.Errorf("Execute against a disconnected turtle = %v, want ErrAgentNotConnected", err)
	}
}

func TestExecuteRunsRoutineToCompletion(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectFakeAgent(t, srv, 21)
	defer conn.Close()
	waitConnected(t, gw, 21)

	if err := s.Execute(21, "execute_command", map[string]any{"subroutine": "get_fuel_level"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	a := waitStatus(t, s, 21, "finished")
	if a.RoutineName != "execute_command" {
		t.Errorf("assignment routine = %q, want execute_command", a.RoutineName)
	}
}

func TestExecuteCancelsAnyPriorRunningRoutine(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectSilentAgent(t, srv, 22)
	defer conn.Close()
	waitConnected(t, gw, 22)

	if err := s.Execute(22, "simple_walk", map[string]any{"steps": 1000000}); err != nil {
		t.Fatalf("Execute (first): %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := s.Execute(22, "simple_walk", map[string]any{"steps": 1}); err != nil {
		t.Fatalf("Execute (second): %v", err)
	}

	a, ok := s.AssignmentFor(22)
	if !ok {
		t.Fatal("expected an assignment to be recorded")
	}
	if a.Status != "running" {
		t.Errorf("assignment status = %q, want running (second Execute superseding the first)", a.Status)
	}
}

func TestAbortCancelsRunningRoutine(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectSilentAgent(t, srv, 23)
	defer conn.Close()
	waitConnected(t, gw, 23)

	if err := s.Execute(23, "simple_walk", map[string]any{"steps": 1000000}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if aborted := s.Abort(23); !aborted {
		t.Fatal("Abort reported nothing was running")
	}

	waitStatus(t, s, 23, "aborted")
}

func TestAbortOnIdleTurtleReportsFalse(t *testing.T) {
	s, _, srv := newTestScheduler(t)
	defer srv.Close()

	if aborted := s.Abort(99); aborted {
		t.Error("Abort on a turtle with nothing running should report false")
	}
}

func TestContinueReissuesLastAssignment(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectFakeAgent(t, srv, 24)
	defer conn.Close()
	waitConnected(t, gw, 24)

	if err := s.Execute(24, "execute_command", map[string]any{"subroutine": "get_fuel_level"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	waitStatus(t, s, 24, "finished")

	if err := s.Continue(24); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	a := waitStatus(t, s, 24, "finished")
	if a.RoutineName != "execute_command" {
		t.Errorf("Continue changed the routine name to %q", a.RoutineName)
	}
}

func TestContinueWithNoPriorAssignmentErrors(t *testing.T) {
	s, _, srv := newTestScheduler(t)
	defer srv.Close()

	if err := s.Continue(555); err == nil {
		t.Fatal("expected Continue to error when no assignment has ever been recorded")
	}
}

func TestDisconnectEndsRunningRoutine(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectSilentAgent(t, srv, 25)
	waitConnected(t, gw, 25)

	if err := s.Execute(25, "simple_walk", map[string]any{"steps": 1000000}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	conn.Close()

	// handleDisconnect marks the assignment "disconnected" synchronously, but
	// the cancelled routine's own finish() call races it to "aborted" — both
	// are terminal, non-running outcomes.
	deadline := time.Now().Add(2 * time.Second)
	var a Assignment
	for time.Now().Before(deadline) {
		var ok bool
		a, ok = s.AssignmentFor(25)
		if ok && a.Status != "running" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if a.Status != "aborted" && a.Status != "disconnected" {
		t.Errorf("assignment status after disconnect = %q, want aborted or disconnected", a.Status)
	}
}

func TestHandleConnectSetsConnectionStatus(t *testing.T) {
	s, gw, srv := newTestScheduler(t)
	defer srv.Close()

	conn := connectFakeAgent(t, srv, 26)
	defer conn.Close()
	waitConnected(t, gw, 26)

	deadline := time.Now().Add(time.Second)
	for {
		rec, err := s.store.Get(context.Background(), 26)
		if err != nil {
			t.Fatalf("store.Get: %v", err)
		}
		if rec.ConnectionStatus == "connected" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection_status never became connected, last seen %q", rec.ConnectionStatus)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
