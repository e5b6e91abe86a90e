package api

import (
	"bytes"
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
	"github.com/denecity/taas/internal/scheduler"
	"github.com/denecity/taas/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.Store) {
	h, st, _ := newTestRouterWithGateway(t)
	return h, st
}

func newTestRouterWithGateway(t *testing.T) (http.Handler, *store.Store, *gateway.Gateway) {
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

	sch, err := scheduler.New(registry, gw, st, bus, logger)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	return NewRouter(RouterConfig{Store: st, Scheduler: sch, Registry: registry, Bus: bus, Logger: logger}), st, gw
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// unwrapData decodes the {"data": ...} success envelope into dst.
func unwrapData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func TestListTurtlesEmpty(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/turtles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []turtleResponse
	unwrapData(t, rec, &items)
	if len(items) != 0 {
		t.Errorf("expected no turtles yet, got %d", len(items))
	}
}

func TestGetTurtleByIDReturnsDefaultSnapshotForUnknownID(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/turtles/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var tr turtleResponse
	unwrapData(t, rec, &tr)
	if tr.ConnectionStatus != "disconnected" {
		t.Errorf("connection_status = %q, want disconnected", tr.ConnectionStatus)
	}
}

func TestGetTurtleByIDRejectsNonIntegerID(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/turtles/not-a-number", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListRoutinesIncludesKnownNames(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/routines", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []routineResponse
	unwrapData(t, rec, &items)
	found := false
	for _, it := range items {
		if it.Name == "execute_command" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected execute_command in the routine list, got %+v", items)
	}
}

func TestExecuteOnDisconnectedTurtleReturnsConflict(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/execute",
		map[string]any{"routine": "execute_command", "config": map[string]any{"subroutine": "get_fuel_level"}})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestExecuteWithUnknownRoutineReturnsNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/execute",
		map[string]any{"routine": "not_a_real_routine"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestExecuteWithMissingRoutineNameReturnsBadRequest(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/execute", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAbortOnIdleTurtleReportsNotAborted(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/abort", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	unwrapData(t, rec, &body)
	if body["aborted"] != false {
		t.Errorf("aborted = %v, want false", body["aborted"])
	}
}

func TestRestartOnDisconnectedTurtleReturnsNotAccepted(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	unwrapData(t, rec, &body)
	if body["accepted"] != false {
		t.Errorf("accepted = %v, want false", body["accepted"])
	}
}

func TestRestartOnConnectedTurtleReturnsAccepted(t *testing.T) {
	h, _, gw := newTestRouterWithGateway(t)

	wsSrv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer wsSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello, _ := json.Marshal(map[string]any{"type": "hello", "computer_id": 7})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := gw.Get(7); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	unwrapData(t, rec, &body)
	if body["accepted"] != true {
		t.Errorf("accepted = %v, want true", body["accepted"])
	}
}

func TestContinueWithNoPriorAssignmentReturnsNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/turtles/7/continue", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
