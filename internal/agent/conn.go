// ABOUTME: Represents a single attached agent socket and serializes writes to it.
// ABOUTME: Frames go through a buffered send queue drained by one write pump.

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Keepalive parameters for agent sockets. The write pump pings on a timer;
// the socket handler arms its read deadline with PongWait and extends it on
// every pong, so a silent peer is torn down within one pong window.
const (
	// writeWait bounds every socket write, pings included.
	writeWait = 10 * time.Second

	// PongWait is how long a socket may go silent before reads fail.
	PongWait = 60 * time.Second

	// pingPeriod is how often the write pump pings. Must be under PongWait.
	pingPeriod = (PongWait * 9) / 10

	// sendBuffer is the per-agent queue of frames awaiting the write pump.
	sendBuffer = 32
)

// ErrConnClosed indicates a send on a connection that is shutting down.
var ErrConnClosed = errors.New("connection closed")

// ErrSendBufferFull indicates the agent is not draining its socket fast
// enough and the frame was not queued.
var ErrSendBufferFull = errors.New("send buffer full")

// socketConn is the slice of *websocket.Conn the write pump needs. Tests
// substitute a recording fake.
type socketConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one attached agent socket. All writes funnel through a single
// pump goroutine so frames and pings never interleave. Reads stay with the
// socket handler that accepted the connection.
type Conn struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	ws     socketConn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewConn wraps an upgraded socket for the given agent and starts its write
// pump. The caller keeps ownership of reads.
func NewConn(agentID, remoteAddr string, ws socketConn, logger *slog.Logger) *Conn {
	c := &Conn{
		ID:          agentID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now().UTC(),
		ws:          ws,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
	go c.writePump()
	return c
}

// Send marshals a frame and queues it for delivery. It never blocks: a full
// queue returns ErrSendBufferFull and the caller decides whether to fall
// back to the heartbeat path.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down. Safe to call more than once. The write
// pump sends a close frame and releases the underlying socket.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump owns the socket for writing. It drains the send queue and pings
// on a timer until the connection closes or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("socket write failed",
					"agent_id", c.ID,
					"error", err,
				)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
