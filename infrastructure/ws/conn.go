// Package ws is the websocket transport of the relay: handshake
// authentication, connection handles, and the read/write pumps.
package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 64 << 10
)

// Connection is the server-side handle for one live client session.
// Deliver enqueues into a buffered channel drained by the write pump, so
// the router never blocks on a slow peer; a full buffer drops the frame
// with an error the router logs per target.
type Connection struct {
	identity  domain.Identity
	sock      *websocket.Conn
	send      chan domain.OutboundMessage
	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func NewConnection(identity domain.Identity, sock *websocket.Conn, bufferSize int, log *slog.Logger) *Connection {
	return &Connection{
		identity: identity,
		sock:     sock,
		send:     make(chan domain.OutboundMessage, bufferSize),
		done:     make(chan struct{}),
		log:      log,
	}
}

func (c *Connection) Identity() domain.Identity {
	return c.identity
}

func (c *Connection) State() contract.ConnectionState {
	return contract.ConnectionState(c.state.Load())
}

func (c *Connection) Deliver(msg domain.OutboundMessage) error {
	if c.State() != contract.StateOpen {
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errors.ErrSendBufferFull
	}
}

// Close signals the peer with a close code and tears the session down.
// Safe to call from any goroutine and more than once.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(contract.StateClosing))
		deadline := time.Now().Add(writeWait)
		message := websocket.FormatCloseMessage(code, reason)
		if err := c.sock.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
			c.log.Debug("Failed to send close frame", "user_id", c.identity.ID, "error", err)
		}
		close(c.done)
		c.state.Store(int32(contract.StateClosed))
		_ = c.sock.Close()
	})
}

// ReadPump pumps frames from the socket into the router. It blocks until
// the peer disconnects or a transport error occurs, then evicts the
// handle from the registry.
func (c *Connection) ReadPump(router *runtime.MessageRouter, registry *runtime.ConnectionRegistry) {
	defer func() {
		registry.Unregister(c)
		c.Close(websocket.CloseNormalClosure, "")
		c.log.Info("User disconnected", "user_id", c.identity.ID, "display_name", c.identity.DisplayName)
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read error", "user_id", c.identity.ID, "error", err)
			}
			return
		}
		router.Route(c, raw)
	}
}

// WritePump drains the send buffer to the socket and keeps the session
// alive with periodic pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(msg); err != nil {
				c.log.Warn("Websocket write error", "user_id", c.identity.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
