// ABOUTME: WebSocket endpoint that attaches agent sockets to the registry.
// ABOUTME: Owns the read side of each socket; all writes go through the connection's pump.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/droverhq/drover/internal/agent"
	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// maxMessageSize bounds inbound socket frames. Result frames carry command
// output, so the cap is generous.
const maxMessageSize = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Agents are headless processes; there is no browser origin to check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleAgentSocket handles GET /api/v1/agents/{agentID}/ws. The middleware
// has already verified the token; the socket stays attached until the agent
// goes silent past the pong window or either side closes.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request, agentID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.logger.Warn("socket upgrade failed", "agent_id", agentID, "error", err)
		return
	}

	conn := agent.NewConn(agentID, r.RemoteAddr, ws, s.logger)
	s.registry.Register(conn)
	defer func() {
		conn.Close()
		s.registry.Unregister(conn)
	}()

	if err := conn.Send(wire.Hello{Type: wire.FrameTypeConnected, AgentID: agentID}); err != nil {
		s.logger.Warn("failed to queue hello frame", "agent_id", agentID, "error", err)
		return
	}

	if err := s.store.TouchAgent(r.Context(), agentID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to touch agent", "agent_id", agentID, "error", err)
	}

	s.readLoop(r.Context(), ws, conn)
}

// readLoop consumes frames until the socket dies. Pongs extend the read
// deadline; the write pump's pings keep a healthy agent sending them.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, conn *agent.Conn) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(agent.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(agent.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("agent socket read error", "agent_id", conn.ID, "error", err)
			}
			return
		}
		s.handleAgentFrame(ctx, conn.ID, data)
	}
}

// handleAgentFrame dispatches one inbound socket frame. Unknown frame types
// are ignored so older servers tolerate newer agents.
func (s *Server) handleAgentFrame(ctx context.Context, agentID string, data []byte) {
	var frame wire.ResultFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("unparseable agent frame", "agent_id", agentID, "error", err)
		return
	}

	switch frame.Type {
	case wire.FrameTypeResult:
		if frame.CommandID == "" {
			s.logger.Warn("result frame missing command_id", "agent_id", agentID)
			return
		}
		if err := s.dispatcher.OnAgentResult(ctx, agentID, frame.CommandID, frame.ResultEnvelope); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				s.logger.Warn("result for unknown command",
					"agent_id", agentID,
					"command_id", frame.CommandID,
				)
			case errors.Is(err, dispatch.ErrDeviceMismatch):
				s.logger.Warn("result for another device's command",
					"agent_id", agentID,
					"command_id", frame.CommandID,
				)
			default:
				s.logger.Error("failed to record socket result",
					"agent_id", agentID,
					"command_id", frame.CommandID,
					"error", err,
				)
			}
		}

	default:
		s.logger.Debug("ignoring agent frame", "agent_id", agentID, "type", frame.Type)
	}
}
