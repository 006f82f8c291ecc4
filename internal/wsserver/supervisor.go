package wsserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/internal/metrics"
	"github.com/thunder45/service-translate/pkg/logging"
)

// FrameHandler is the Message Router's entry point for inbound frames and
// disconnect notifications; the Supervisor depends on this narrow
// interface rather than importing the router package directly, avoiding a
// cycle (router needs to enqueue back onto connections).
type FrameHandler interface {
	HandleFrame(ctx context.Context, conn *Connection, frameType frames.Type, raw []byte)
	HandleDisconnect(conn *Connection)
}

// Config carries the timing knobs of §4.1.
type Config struct {
	AuthGraceWindow time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	IdleTimeout     time.Duration
	DrainPeriod     time.Duration
	OutboundQueueSize int
}

// Supervisor is the Connection Supervisor (C10).
type Supervisor struct {
	cfg      Config
	upgrader websocket.Upgrader
	handler  FrameHandler
	logger   *logging.Logger

	mu          sync.RWMutex
	connections map[string]*Connection

	shuttingDown chan struct{}
}

func New(cfg Config, handler FrameHandler, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		handler:  handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		connections:  make(map[string]*Connection),
		shuttingDown: make(chan struct{}),
	}
}

// SetHandler binds the Message Router after construction, breaking the
// construction-order cycle between the Supervisor (which the Router needs
// to look up connections) and the Router (which the Supervisor dispatches
// frames to).
func (s *Supervisor) SetHandler(handler FrameHandler) {
	s.handler = handler
}

// HandleUpgrade upgrades an incoming HTTP request to a WebSocket and
// drives its lifecycle until close, per §4.1. roleHint comes from the
// route the caller mounted (/ws/admin vs /ws/listener).
func (s *Supervisor) HandleUpgrade(w http.ResponseWriter, r *http.Request, roleHint Role) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	c := newConnection(id, conn, roleHint, s.cfg.OutboundQueueSize, s.logger)

	s.mu.Lock()
	s.connections[id] = c
	s.mu.Unlock()
	metrics.ActiveConnections.WithLabelValues(string(roleHint)).Inc()

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	// A silent connection must be reaped on AuthGraceWindow, not
	// PongTimeout: ReadMessage only returns (and the grace check in
	// readLoop only runs) when data arrives or the read deadline set
	// above fires, so a connection that never sends a byte would
	// otherwise survive until PongTimeout regardless of how short the
	// grace window is configured. This timer enforces the grace window
	// independently of the read deadline.
	graceTimer := time.AfterFunc(s.cfg.AuthGraceWindow, func() {
		if !c.Authenticated() {
			c.EnqueueError(authGraceExpired())
			c.Close()
		}
	})
	defer graceTimer.Stop()

	go c.writeLoop(s.cfg.PingInterval)
	s.readLoop(c)
}

// readLoop is the connection's single reader; it enforces the idle
// timeout and hands every parsed frame to the Router. The Supervisor
// never writes to the socket from here — writes only ever happen on the
// connection's own writer goroutine (§4.1's "never calls back into the
// Router from within a socket write" is the dual of this: the Router
// never blocks the reader either, since Enqueue is non-blocking). The
// authentication grace window itself is enforced by the timer started in
// HandleUpgrade, since it must fire even while ReadMessage is blocked
// waiting for a first frame that never arrives.
func (s *Supervisor) readLoop(c *Connection) {
	defer s.teardown(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		c.UpdateBinding(func(b *Binding) { b.LastActivityAt = time.Now() })

		frameType, raw, err := frames.Parse(data)
		if err != nil {
			c.EnqueueError(err)
			continue
		}

		if !c.Authenticated() {
			switch frameType {
			case frames.TypeAdminAuth, frames.TypeJoinSession:
				c.MarkAuthenticated()
			}
		}

		s.handler.HandleFrame(context.Background(), c, frameType, raw)
	}
}

func (s *Supervisor) teardown(c *Connection) {
	s.mu.Lock()
	delete(s.connections, c.id)
	s.mu.Unlock()
	metrics.ActiveConnections.WithLabelValues(string(c.Binding().Role)).Dec()

	s.handler.HandleDisconnect(c)
	c.Close()
}

// Connection looks up a live connection by ID, used by the Router to
// deliver broadcasts.
func (s *Supervisor) Connection(id string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	return c, ok
}

// Count returns the number of currently open connections, for /health.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Shutdown broadcasts a terminal status to every connection, flushes
// queues for the configured drain period, then closes everything, per
// §5's graceful-shutdown requirement.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	close(s.shuttingDown)

	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	terminal := frames.ErrorFrame{Type: frames.TypeError, Code: "SYSTEM_SHUTDOWN", Message: "server is shutting down"}
	payload := mustMarshal(terminal)
	for _, c := range conns {
		c.Enqueue(payload)
	}

	drain := time.NewTimer(s.cfg.DrainPeriod)
	defer drain.Stop()
	select {
	case <-drain.C:
	case <-ctx.Done():
	}

	for _, c := range conns {
		c.Close()
	}
	return nil
}
