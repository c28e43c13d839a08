// ABOUTME: HTTP API handlers for enrollment, dispatch, heartbeat and fleet views.
// ABOUTME: Agent-scoped routes verify the token may act for the agent id in the path.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/droverhq/drover/internal/auth"
	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/enroll"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// DispatchRequest is the JSON request body for POST /api/v1/devices/{id}/commands.
// Wait selects the synchronous path: the response carries the terminal
// result. Without Wait the command is queued and the response returns
// immediately with the accepted row.
type DispatchRequest struct {
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Wait            bool            `json:"wait,omitempty"`
	TimeoutMs       int64           `json:"timeout_ms,omitempty"`
	QueueIfOffline  bool            `json:"queue_if_offline,omitempty"`
	PreferHeartbeat bool            `json:"prefer_heartbeat,omitempty"`
}

// CommandResponse is the JSON rendering of a command row.
type CommandResponse struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Result      *command.Result `json:"result,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	Delivery    string          `json:"delivery"`
	TimeoutMs   int64           `json:"timeout_ms,omitempty"`
	CreatedAt   string          `json:"created_at"`
	SentAt      string          `json:"sent_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
	DeadlineAt  string          `json:"deadline_at"`
}

// ListCommandsResponse is the JSON response for GET /api/v1/devices/{id}/commands.
type ListCommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
}

// AgentResponse is the JSON response entry for GET /api/v1/agents.
// Online reflects a live socket; heartbeat-only agents show online=false
// with a recent last_seen_at.
type AgentResponse struct {
	ID           string `json:"id"`
	Hostname     string `json:"hostname"`
	OSType       string `json:"os_type,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
	Status       string `json:"status"`
	Online       bool   `json:"online"`
	EnrolledAt   string `json:"enrolled_at"`
	LastSeenAt   string `json:"last_seen_at,omitempty"`
}

// CreateKeyRequest is the JSON request body for POST /api/v1/enrollment-keys.
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreatedKeyResponse is the JSON response for POST /api/v1/enrollment-keys.
// Secret is shown exactly once.
type CreatedKeyResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// KeyResponse is the JSON response entry for GET /api/v1/enrollment-keys.
type KeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Revoked   bool   `json:"revoked"`
	CreatedAt string `json:"created_at"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

// commandResponse converts a store row into its JSON rendering.
func commandResponse(cmd *store.Command) CommandResponse {
	resp := CommandResponse{
		ID:         cmd.ID,
		DeviceID:   cmd.DeviceID,
		Type:       cmd.Type,
		Payload:    cmd.Payload,
		Status:     string(cmd.Status),
		Result:     cmd.Result,
		CreatedBy:  cmd.CreatedBy,
		Delivery:   cmd.Delivery,
		TimeoutMs:  cmd.TimeoutMs,
		CreatedAt:  cmd.CreatedAt.Format(time.RFC3339),
		DeadlineAt: cmd.DeadlineAt.Format(time.RFC3339),
	}
	if cmd.SentAt != nil {
		resp.SentAt = cmd.SentAt.Format(time.RFC3339)
	}
	if cmd.CompletedAt != nil {
		resp.CompletedAt = cmd.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// handleEnroll handles POST /api/v1/enroll requests. This is the one open
// endpoint: the enrollment key is the credential.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req wire.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EnrollmentKey == "" || req.EnrollmentSecret == "" {
		s.sendJSONError(w, http.StatusBadRequest, "enrollment_key and enrollment_secret are required")
		return
	}
	if req.Hostname == "" {
		s.sendJSONError(w, http.StatusBadRequest, "hostname is required")
		return
	}

	resp, err := s.enrollment.Enroll(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrUnknownKey):
			s.sendJSONError(w, http.StatusUnauthorized, "invalid enrollment key or secret")
		case errors.Is(err, enroll.ErrKeyRevoked):
			s.sendJSONError(w, http.StatusForbidden, "enrollment key revoked")
		default:
			s.logger.Error("enrollment failed", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleAgentScoped routes /api/v1/agents/{agentID}/... to the socket,
// heartbeat, or result handler.
func (s *Server) handleAgentScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	parts := strings.Split(rest, "/")

	identity := auth.FromContext(r.Context())
	if identity == nil {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	agentID := parts[0]
	if agentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if !identity.CanActForAgent(agentID) {
		s.sendJSONError(w, http.StatusForbidden, "token not valid for this agent")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "ws":
		s.handleAgentSocket(w, r, agentID)
	case len(parts) == 2 && parts[1] == "heartbeat":
		s.handleHeartbeat(w, r, agentID)
	case len(parts) == 4 && parts[1] == "commands" && parts[3] == "result":
		s.handleResultSubmission(w, r, agentID, parts[2])
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleHeartbeat handles POST /api/v1/agents/{agentID}/heartbeat.
// Touches last_seen and hands back any claimed pending commands.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// The body is advisory; an empty or absent one is fine.
	var req wire.HeartbeatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.store.TouchAgent(r.Context(), agentID, time.Now().UTC()); err != nil {
		s.logger.Error("failed to touch agent", "agent_id", agentID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	frames, err := s.dispatcher.PullCommands(r.Context(), agentID)
	if err != nil {
		s.logger.Error("failed to claim commands", "agent_id", agentID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wire.HeartbeatResponse{Commands: frames})
}

// handleResultSubmission handles
// POST /api/v1/agents/{agentID}/commands/{commandID}/result.
// The HTTP twin of the socket result frame; both funnel into the correlator,
// so an agent retrying on the other path is harmless.
func (s *Server) handleResultSubmission(w http.ResponseWriter, r *http.Request, agentID, commandID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var env wire.ResultEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.dispatcher.OnAgentResult(r.Context(), agentID, commandID, env); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.sendJSONError(w, http.StatusNotFound, "command not found")
		case errors.Is(err, dispatch.ErrDeviceMismatch):
			s.sendJSONError(w, http.StatusForbidden, "command belongs to a different agent")
		default:
			s.logger.Error("failed to record result", "command_id", commandID, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// handleListAgents handles GET /api/v1/agents requests.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.logger.Error("failed to list agents", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		entry := AgentResponse{
			ID:           a.ID,
			Hostname:     a.Hostname,
			OSType:       a.OSType,
			OSVersion:    a.OSVersion,
			Architecture: a.Architecture,
			AgentVersion: a.AgentVersion,
			Status:       string(a.Status),
			Online:       s.registry.IsConnected(a.ID),
			EnrolledAt:   a.EnrolledAt.Format(time.RFC3339),
		}
		if a.LastSeenAt != nil {
			entry.LastSeenAt = a.LastSeenAt.Format(time.RFC3339)
		}
		response = append(response, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleDeviceScoped routes /api/v1/devices/{deviceID}/commands to dispatch
// or history.
func (s *Server) handleDeviceScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "commands" {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	deviceID := parts[0]
	if deviceID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleDispatch(w, r, deviceID)
	case http.MethodGet:
		s.handleDeviceCommands(w, r, deviceID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleDispatch handles POST /api/v1/devices/{deviceID}/commands.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == "" {
		s.sendJSONError(w, http.StatusBadRequest, "type is required")
		return
	}

	device, err := s.store.GetAgent(r.Context(), deviceID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if device.Status == store.AgentStatusRevoked {
		s.sendJSONError(w, http.StatusConflict, "device is revoked")
		return
	}

	createdBy := ""
	if identity := auth.FromContext(r.Context()); identity != nil {
		createdBy = identity.Subject
	}

	var cmd *store.Command
	if req.Wait {
		cmd, err = s.dispatcher.Execute(r.Context(), deviceID, req.Type, req.Payload, dispatch.ExecuteOptions{
			CreatedBy:      createdBy,
			TimeoutMs:      req.TimeoutMs,
			QueueIfOffline: req.QueueIfOffline,
		})
	} else {
		cmd, err = s.dispatcher.Enqueue(r.Context(), deviceID, req.Type, req.Payload, dispatch.EnqueueOptions{
			CreatedBy:       createdBy,
			PreferHeartbeat: req.PreferHeartbeat,
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnknownType):
			s.sendJSONError(w, http.StatusBadRequest, "unknown command type")
		case errors.Is(err, dispatch.ErrBadPayload):
			s.sendJSONError(w, http.StatusBadRequest, "payload is not valid JSON")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Caller went away mid-wait; nobody is reading the response.
			s.logger.Debug("dispatch abandoned by caller", "device_id", deviceID)
		default:
			s.logger.Error("dispatch failed", "device_id", deviceID, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	status := http.StatusOK
	if !req.Wait {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(commandResponse(cmd))
}

// handleDeviceCommands handles GET /api/v1/devices/{deviceID}/commands.
// Supports status, type and limit query filters.
func (s *Server) handleDeviceCommands(w http.ResponseWriter, r *http.Request, deviceID string) {
	filter := store.CommandFilter{DeviceID: deviceID}

	if v := r.URL.Query().Get("status"); v != "" {
		status := store.CommandStatus(v)
		switch status {
		case store.StatusPending, store.StatusSent, store.StatusCompleted,
			store.StatusFailed, store.StatusTimeout, store.StatusCancelled:
			filter.Status = status
		default:
			s.sendJSONError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
	}
	filter.Type = r.URL.Query().Get("type")

	// Parse optional limit parameter (default 50, max 1000)
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 1000 {
			limit = 1000
		}
	}
	filter.Limit = limit

	commands, err := s.store.ListCommands(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "device_id", deviceID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListCommandsResponse{Commands: make([]CommandResponse, 0, len(commands))}
	for _, cmd := range commands {
		response.Commands = append(response.Commands, commandResponse(cmd))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCommandByID handles GET and DELETE on /api/v1/commands/{id}.
func (s *Server) handleCommandByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/commands/")
	if id == "" || strings.Contains(id, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetCommand(w, r, id)
	case http.MethodDelete:
		s.handleCancelCommand(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleGetCommand handles GET /api/v1/commands/{id}.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request, id string) {
	cmd, err := s.store.GetCommand(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "command not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get command", "id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commandResponse(cmd))
}

// handleCancelCommand handles DELETE /api/v1/commands/{id}. Only a pending
// command can be recalled; anything later is a conflict.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request, id string) {
	applied, err := s.dispatcher.Cancel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "command not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to cancel command", "id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !applied {
		s.sendJSONError(w, http.StatusConflict, "command already sent or finished")
		return
	}

	cmd, err := s.store.GetCommand(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to reload cancelled command", "id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commandResponse(cmd))
}

// handleEnrollmentKeys handles GET and POST on /api/v1/enrollment-keys.
func (s *Server) handleEnrollmentKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListKeys(w, r)
	case http.MethodPost:
		s.handleCreateKey(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCreateKey handles POST /api/v1/enrollment-keys.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := s.enrollment.CreateKey(r.Context(), req.Name, "")
	if errors.Is(err, store.ErrDuplicateKey) {
		s.sendJSONError(w, http.StatusConflict, "enrollment key name already exists")
		return
	}
	if err != nil {
		s.logger.Error("failed to create enrollment key", "name", req.Name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreatedKeyResponse{ID: created.ID, Name: created.Name, Secret: created.Secret})
}

// handleListKeys handles GET /api/v1/enrollment-keys.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.enrollment.ListKeys(r.Context())
	if err != nil {
		s.logger.Error("failed to list enrollment keys", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		entry := KeyResponse{
			ID:        k.ID,
			Name:      k.Name,
			Revoked:   k.Revoked(),
			CreatedAt: k.CreatedAt.Format(time.RFC3339),
		}
		if k.RevokedAt != nil {
			entry.RevokedAt = k.RevokedAt.Format(time.RFC3339)
		}
		response = append(response, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleEnrollmentKeyByID handles DELETE /api/v1/enrollment-keys/{id}.
func (s *Server) handleEnrollmentKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/enrollment-keys/")
	if id == "" || strings.Contains(id, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	if err := s.enrollment.RevokeKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "enrollment key not found")
			return
		}
		s.logger.Error("failed to revoke enrollment key", "key_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
