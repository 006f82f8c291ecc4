// Package wsserver implements the Connection Supervisor (C10): WebSocket
// upgrade and handshake grace window, heartbeat, a per-connection
// outbound queue with a single writer, and graceful shutdown. A buffered
// outbound queue drained by one writer goroutine per connection keeps the
// read loop and write loop fully decoupled, since §4.1 requires that a
// socket write never calls back into the Router.
package wsserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Role distinguishes the two kinds of WebSocket client, per §3's
// ConnectionBinding.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleListener Role = "listener"
)

// Binding is the ConnectionBinding record of spec §3.
type Binding struct {
	ConnectionID      string
	Role              Role
	AdminID           string
	ListenerID        string
	SessionID         string
	SubscribedLanguage string
	LocalTTSCapable   bool
	LastActivityAt    time.Time
}

// Connection owns one WebSocket: a single reader goroutine, a single
// writer goroutine draining an outbound queue, and the authoritative
// Binding for this socket.
type Connection struct {
	id     string
	conn   *websocket.Conn
	logger *logging.Logger

	outbound chan []byte
	closed   chan struct{}
	closeOnce sync.Once

	authenticated atomic.Bool

	mu      sync.Mutex
	binding Binding
}

func newConnection(id string, conn *websocket.Conn, role Role, queueSize int, logger *logging.Logger) *Connection {
	return &Connection{
		id:       id,
		conn:     conn,
		logger:   logger,
		outbound: make(chan []byte, queueSize),
		closed:   make(chan struct{}),
		binding: Binding{
			ConnectionID:   id,
			Role:           role,
			LastActivityAt: time.Now(),
		},
	}
}

// ID returns the connection's stable identifier.
func (c *Connection) ID() string { return c.id }

// Binding returns a copy of the connection's current binding.
func (c *Connection) Binding() Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

// UpdateBinding mutates the binding under lock.
func (c *Connection) UpdateBinding(fn func(*Binding)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.binding)
}

// MarkAuthenticated records that the connection sent its expected first
// frame (admin-auth or join-session) within the grace window.
func (c *Connection) MarkAuthenticated() { c.authenticated.Store(true) }

// Authenticated reports whether MarkAuthenticated has been called, used
// by the auth-grace-window timer to decide whether to force-close a
// connection that has gone silent.
func (c *Connection) Authenticated() bool { return c.authenticated.Load() }

// Enqueue places a frame on the outbound queue. Per §4.6: "Broadcast is
// best-effort: a slow or closed listener does not block others; if the
// outbound queue overflows, the offending listener is disconnected."
func (c *Connection) Enqueue(payload []byte) (overflowed bool) {
	select {
	case c.outbound <- payload:
		return false
	case <-c.closed:
		return false
	default:
		return true
	}
}

// EnqueueFrame marshals and enqueues a frame value.
func (c *Connection) EnqueueFrame(v any) (overflowed bool, err error) {
	data, err := marshalFrame(v)
	if err != nil {
		return false, err
	}
	return c.Enqueue(data), nil
}

// EnqueueError enqueues the wire representation of err.
func (c *Connection) EnqueueError(err error) {
	c.Enqueue(mustMarshal(frames.FromError(err)))
}

// writeLoop is the connection's single writer, draining the outbound
// queue and sending heartbeat pings, per §4.1.
func (c *Connection) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.outbound:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debugf("connection %s write failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("connection %s ping failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close closes the socket and stops the writer loop exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// Done reports the connection's closed channel, for callers that need to
// observe closure (e.g. the supervisor's reader loop).
func (c *Connection) Done() <-chan struct{} { return c.closed }
