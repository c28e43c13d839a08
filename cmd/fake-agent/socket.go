// ABOUTME: Agent-side socket client with reconnect and keepalive pumps.
// ABOUTME: Decodes pushed command frames and sends result frames back.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/droverhq/drover/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

type socketConfig struct {
	ServerURL string
	AgentID   string
	AuthToken string
}

// socket maintains the agent's connection to the control plane, redialing
// with jittered exponential backoff whenever it drops. Pushed commands are
// handed to handler, one goroutine per command.
type socket struct {
	cfg     socketConfig
	handler func(wire.Command)
	log     *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	send chan []byte
}

func newSocket(cfg socketConfig, logger *slog.Logger) *socket {
	return &socket{
		cfg:  cfg,
		log:  logger,
		send: make(chan []byte, 64),
	}
}

// Run dials and keeps redialing until ctx is done.
func (s *socket) Run(ctx context.Context) {
	backoff := initialBackoff

	for ctx.Err() == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sleep := jittered(backoff)
			s.log.Warn("connect failed", "error", err, "retry_in", sleep)
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		done := make(chan struct{})
		go s.writeLoop(ctx, conn, done)
		s.readLoop(conn)
		close(done)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}
}

func (s *socket) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := s.buildURL()
	if err != nil {
		return nil, fmt.Errorf("building socket URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	s.log.Info("connected", "server", s.cfg.ServerURL)
	return conn, nil
}

// buildURL turns the HTTP base URL into the agent's socket endpoint. The
// token rides in the query string; a dialing agent cannot always set
// headers.
func (s *socket) buildURL() (string, error) {
	u, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/api/v1/agents/%s/ws", s.cfg.AgentID)
	q := u.Query()
	q.Set("token", s.cfg.AuthToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop decodes inbound frames until the connection dies. Frames
// without an "id" are control frames (connected, errors) and are skipped;
// everything else is a command.
func (s *socket) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read error", "error", err)
			}
			return
		}

		var probe struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &probe); err != nil {
			s.log.Warn("unparseable frame", "error", err)
			continue
		}
		if probe.ID == "" {
			s.log.Debug("control frame", "type", probe.Type)
			continue
		}

		var cmd wire.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			s.log.Warn("unparseable command frame", "error", err)
			continue
		}
		s.log.Info("command received", "command_id", cmd.ID, "type", cmd.Type)
		go s.handler(cmd)
	}
}

// writeLoop owns all writes on conn: queued result frames and keepalive
// pings. It exits when the read side closes done or ctx is cancelled, so a
// dead connection never strands queued frames past its lifetime.
func (s *socket) writeLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case message := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn("write error", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendResult queues a result frame for the write loop. It fails when no
// connection is up or the queue is full; callers fall back to the HTTP
// submission path.
func (s *socket) SendResult(frame wire.ResultFrame) error {
	s.mu.Lock()
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling result frame: %w", err)
	}
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

func jittered(backoff time.Duration) time.Duration {
	jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
	if sleep := backoff + jitter; sleep > 0 {
		return sleep
	}
	return backoff
}
