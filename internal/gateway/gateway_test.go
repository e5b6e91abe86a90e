package gateway

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
)

// dialAgent connects to srv as an agent and completes the hello handshake.
func dialAgent(t *testing.T, srv *httptest.Server, computerID int64) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := helloFrame{Type: "hello", ComputerID: computerID}
	b, _ := json.Marshal(hello)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return conn
}

func TestHandshakeRegistersSessionAndFiresOnConnect(t *testing.T) {
	gw := New(zap.NewNop())

	connected := make(chan int64, 1)
	gw.OnConnect(func(s *Session) { connected <- s.ComputerID })

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialAgent(t, srv, 7)
	defer conn.Close()

	select {
	case id := <-connected:
		if id != 7 {
			t.Errorf("OnConnect fired with computer_id = %d, want 7", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConnect")
	}

	if _, ok := gw.Get(7); !ok {
		t.Error("expected session 7 to be registered in the gateway")
	}
}

func TestDisconnectDeregistersSessionAndFiresCallback(t *testing.T) {
	gw := New(zap.NewNop())

	disconnected := make(chan int64, 1)
	gw.OnDisconnect(func(id int64) { disconnected <- id })

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialAgent(t, srv, 11)
	// give the handshake a moment to register before tearing the connection down
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case id := <-disconnected:
		if id != 11 {
			t.Errorf("OnDisconnect fired with computer_id = %d, want 11", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnDisconnect")
	}

	if _, ok := gw.Get(11); ok {
		t.Error("expected session 11 to be deregistered after disconnect")
	}
}

func TestSendRoundTripsACorrelatedReply(t *testing.T) {
	gw := New(zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialAgent(t, srv, 3)
	defer conn.Close()

	var session *Session
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := gw.Get(3); ok {
			session = s
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if session == nil {
		t.Fatal("session 3 never registered")
	}

	// fake agent: read one command frame, echo back a spec-conformant reply
	// correlated via request_id and carrying its payload in value.
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd commandFrame
		_ = json.Unmarshal(data, &cmd)
		reply := map[string]any{"request_id": cmd.ID, "ok": true, "value": "done"}
		b, _ := json.Marshal(reply)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}()

	release, err := session.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	rep, err := session.Send(context.Background(), "turtle.getFuelLevel()")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.OK || rep.Result != "done" {
		t.Errorf("Send reply = %+v, want OK=true Result=done", rep)
	}
}

func TestSendRoundTripsReplyCorrelatedByPlainIDWithDataField(t *testing.T) {
	gw := New(zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialAgent(t, srv, 9)
	defer conn.Close()

	var session *Session
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := gw.Get(9); ok {
			session = s
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if session == nil {
		t.Fatal("session 9 never registered")
	}

	// a firmware that only knows the older "id"/"data" wire shape should
	// still correlate and surface its payload.
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd commandFrame
		_ = json.Unmarshal(data, &cmd)
		reply := map[string]any{"id": cmd.ID, "ok": true, "data": 17}
		b, _ := json.Marshal(reply)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}()

	release, err := session.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	rep, err := session.Send(context.Background(), "turtle.getFuelLevel()")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.OK || rep.Result != float64(17) {
		t.Errorf("Send reply = %+v, want OK=true Result=17", rep)
	}
}

func TestSendReturnsErrDisconnectedAfterClose(t *testing.T) {
	gw := New(zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialAgent(t, srv, 4)

	var session *Session
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := gw.Get(4); ok {
			session = s
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if session == nil {
		t.Fatal("session 4 never registered")
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for session.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	release, err := session.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = session.Send(context.Background(), "turtle.getFuelLevel()")
	if err != ErrDisconnected {
		t.Errorf("Send after close = %v, want ErrDisconnected", err)
	}
}
