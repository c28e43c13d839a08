// ABOUTME: Integration tests for the agent WebSocket endpoint.
// ABOUTME: Dials real sockets against an httptest server and runs a full round trip.

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/auth"
	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// dialAgentSocket connects an agent socket through the full HTTP stack.
func dialAgentSocket(t *testing.T, ts *httptest.Server, agentID, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agents/" + agentID + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestAgentSocketRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	seedAgent(t, srv, "dev-1")

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	token, err := srv.verifier.Generate("dev-1", auth.RoleAgent, time.Hour)
	require.NoError(t, err)
	conn := dialAgentSocket(t, ts, "dev-1", token)

	var hello wire.Hello
	readFrame(t, conn, &hello)
	assert.Equal(t, wire.FrameTypeConnected, hello.Type)
	assert.Equal(t, "dev-1", hello.AgentID)

	assert.True(t, srv.registry.IsConnected("dev-1"))

	// Run a synchronous call while playing the agent on the socket.
	done := make(chan *store.Command, 1)
	errCh := make(chan error, 1)
	go func() {
		cmd, err := srv.dispatcher.Execute(context.Background(), "dev-1", command.TypeKillProcess,
			json.RawMessage(`{"pid":123}`), dispatch.ExecuteOptions{CreatedBy: "ops", TimeoutMs: 5000})
		if err != nil {
			errCh <- err
			return
		}
		done <- cmd
	}()

	var pushed wire.Command
	readFrame(t, conn, &pushed)
	assert.Equal(t, command.TypeKillProcess, pushed.Type)
	assert.JSONEq(t, `{"pid":123}`, string(pushed.Payload))

	reply := wire.ResultFrame{
		Type:      wire.FrameTypeResult,
		CommandID: pushed.ID,
		ResultEnvelope: wire.ResultEnvelope{
			Status:     wire.ResultStatusCompleted,
			Stdout:     `{"pid":123,"name":"notepad","terminated":true}`,
			DurationMs: 200,
		},
	}
	require.NoError(t, conn.WriteJSON(reply))

	select {
	case cmd := <-done:
		assert.Equal(t, store.StatusCompleted, cmd.Status)
		require.NotNil(t, cmd.Result)
		assert.Equal(t, store.DeliveryPush, cmd.Delivery)
		assert.Equal(t, int64(200), cmd.Result.DurationMs)
		kill, ok := cmd.Result.Data.(*command.KillProcessResult)
		require.True(t, ok, "expected typed kill_process data, got %T", cmd.Result.Data)
		assert.Equal(t, "notepad", kill.Name)
	case err := <-errCh:
		t.Fatalf("Execute failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("Execute did not return after the agent replied")
	}
}

func TestAgentSocketRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	seedAgent(t, srv, "dev-1")

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agents/dev-1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentSocketRejectsForeignToken(t *testing.T) {
	srv := newTestServer(t)
	seedAgent(t, srv, "dev-1")
	seedAgent(t, srv, "dev-2")

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	token, err := srv.verifier.Generate("dev-2", auth.RoleAgent, time.Hour)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agents/dev-1/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAgentSocketRevokedAgentCutOff(t *testing.T) {
	srv := newTestServer(t)
	seedAgent(t, srv, "dev-1")
	require.NoError(t, srv.store.SetAgentStatus(context.Background(), "dev-1", store.AgentStatusRevoked))

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	token, err := srv.verifier.Generate("dev-1", auth.RoleAgent, time.Hour)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agents/dev-1/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAgentSocketReconnectSupersedes(t *testing.T) {
	srv := newTestServer(t)
	seedAgent(t, srv, "dev-1")

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	token, err := srv.verifier.Generate("dev-1", auth.RoleAgent, time.Hour)
	require.NoError(t, err)

	first := dialAgentSocket(t, ts, "dev-1", token)
	var hello wire.Hello
	readFrame(t, first, &hello)

	second := dialAgentSocket(t, ts, "dev-1", token)
	readFrame(t, second, &hello)
	assert.Equal(t, "dev-1", hello.AgentID)

	// The superseded socket is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The replacement still works and the agent stays connected.
	assert.True(t, srv.registry.IsConnected("dev-1"))

	// A push lands on the new socket.
	_, err = srv.dispatcher.Enqueue(context.Background(), "dev-1", command.TypePing, nil, dispatch.EnqueueOptions{})
	require.NoError(t, err)
	var pushed wire.Command
	readFrame(t, second, &pushed)
	assert.Equal(t, command.TypePing, pushed.Type)
}

func TestEnrollThenHeartbeatEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	created, err := srv.enrollment.CreateKey(context.Background(), "lab", "")
	require.NoError(t, err)

	// Enroll through the public endpoint.
	enrollBody, _ := json.Marshal(wire.EnrollRequest{
		EnrollmentKey:    "lab",
		EnrollmentSecret: created.Secret,
		Hostname:         "ws-042",
	})
	resp, err := http.Post(ts.URL+"/api/v1/enroll", "application/json", strings.NewReader(string(enrollBody)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var enrolled wire.EnrollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&enrolled))

	// Heartbeat with the minted credential.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/agents/"+enrolled.AgentID+"/heartbeat", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+enrolled.AuthToken)
	hbResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer hbResp.Body.Close()
	require.Equal(t, http.StatusOK, hbResp.StatusCode)

	var hb wire.HeartbeatResponse
	require.NoError(t, json.NewDecoder(hbResp.Body).Decode(&hb))
	assert.Empty(t, hb.Commands)
}
