package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/pkg/logging"
)

// recordingHandler is a minimal FrameHandler that records what it was told,
// standing in for the Message Router so these tests exercise only the
// Connection Supervisor's own timing model.
type recordingHandler struct {
	mu           sync.Mutex
	frameTypes   []frames.Type
	disconnected []string
}

func (h *recordingHandler) HandleFrame(ctx context.Context, conn *Connection, frameType frames.Type, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameTypes = append(h.frameTypes, frameType)
}

func (h *recordingHandler) HandleDisconnect(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, conn.ID())
}

func (h *recordingHandler) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.disconnected)
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *Supervisor, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	sup := New(cfg, handler, logging.New(true))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		sup.HandleUpgrade(w, r, RoleAdmin)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sup, handler
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestAuthGraceWindowClosesSilentConnection verifies that a connection
// which never sends its first frame is reaped on AuthGraceWindow, not on
// the much longer PongTimeout — the bug this test would have caught: the
// auth-grace check used to run only between ReadMessage calls, so with a
// generous PongTimeout a silent connection was held open until that much
// larger deadline fired instead.
func TestAuthGraceWindowClosesSilentConnection(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{
		AuthGraceWindow:   50 * time.Millisecond,
		PingInterval:      time.Minute,
		PongTimeout:       5 * time.Second,
		IdleTimeout:       time.Minute,
		DrainPeriod:       10 * time.Millisecond,
		OutboundQueueSize: 4,
	})
	conn := dial(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	start := time.Now()
	_, _, err := conn.ReadMessage()
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected the silent connection to be closed")
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("connection survived %v past dial, expected reap near the 50ms grace window, not the 5s pong timeout", elapsed)
	}
}

// TestFrameBeforeGraceWindowKeepsConnectionOpen verifies that sending the
// expected first frame before the grace window elapses prevents the
// force-close.
func TestFrameBeforeGraceWindowKeepsConnectionOpen(t *testing.T) {
	srv, sup, handler := newTestServer(t, Config{
		AuthGraceWindow:   80 * time.Millisecond,
		PingInterval:      time.Minute,
		PongTimeout:       5 * time.Second,
		IdleTimeout:       time.Minute,
		DrainPeriod:       10 * time.Millisecond,
		OutboundQueueSize: 4,
	})
	conn := dial(t, srv)

	data, err := json.Marshal(frames.AdminAuth{Type: frames.TypeAdminAuth, Method: frames.AuthMethodCredentials, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(200 * time.Millisecond) // past the grace window

	if handler.disconnectCount() != 0 {
		t.Fatalf("expected the connection to survive past the grace window once authenticated")
	}
	if sup.Count() != 1 {
		t.Fatalf("expected 1 open connection, got %d", sup.Count())
	}
}

// TestIdleTimeoutClosesAuthenticatedConnection verifies that an
// authenticated connection is still reaped once it goes silent for
// longer than IdleTimeout.
func TestIdleTimeoutClosesAuthenticatedConnection(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{
		AuthGraceWindow:   time.Minute,
		PingInterval:      time.Minute,
		PongTimeout:       time.Minute,
		IdleTimeout:       80 * time.Millisecond,
		DrainPeriod:       10 * time.Millisecond,
		OutboundQueueSize: 4,
	})
	conn := dial(t, srv)

	data, err := json.Marshal(frames.AdminAuth{Type: frames.TypeAdminAuth, Method: frames.AuthMethodCredentials, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed after going idle past IdleTimeout")
	}
}

// TestShutdownDrainsThenCloses verifies the graceful-shutdown sequence: a
// terminal frame is delivered to every open connection before it is
// closed.
func TestShutdownDrainsThenCloses(t *testing.T) {
	srv, sup, _ := newTestServer(t, Config{
		AuthGraceWindow:   time.Minute,
		PingInterval:      time.Minute,
		PongTimeout:       time.Minute,
		IdleTimeout:       time.Minute,
		DrainPeriod:       50 * time.Millisecond,
		OutboundQueueSize: 4,
	})
	conn := dial(t, srv)

	done := make(chan error, 1)
	go func() {
		done <- sup.Shutdown(context.Background())
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a terminal frame before close, got error: %v", err)
	}
	var errFrame frames.ErrorFrame
	if err := json.Unmarshal(data, &errFrame); err != nil {
		t.Fatalf("unmarshal terminal frame: %v", err)
	}
	if errFrame.Code != "SYSTEM_SHUTDOWN" {
		t.Fatalf("unexpected terminal frame: %+v", errFrame)
	}

	if err := <-done; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
