// ABOUTME: Command dispatch, lookup, history and cancel methods
// ABOUTME: Exec waits for the terminal result, Enqueue returns immediately

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/droverhq/drover/internal/command"
)

// Command is one command row as rendered by the control API. Timestamps
// are RFC 3339 strings; the optional ones are empty until set.
type Command struct {
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

// DispatchOptions are the optional knobs on a dispatch call.
type DispatchOptions struct {
	// TimeoutMs overrides the server's default execution timeout.
	TimeoutMs int64
	// QueueIfOffline queues a waited command instead of failing fast
	// when the device has no live socket.
	QueueIfOffline bool
	// PreferHeartbeat skips push delivery so the command rides the next
	// heartbeat even if the device is connected.
	PreferHeartbeat bool
}

// CommandFilter narrows a history listing. Zero values mean no filter;
// Limit 0 takes the server default.
type CommandFilter struct {
	Status string
	Type   string
	Limit  int
}

// Exec dispatches a command and blocks until its terminal result. The
// returned row carries the final status and normalized result. The call
// can hold the connection open for the command's full timeout window.
func (c *Client) Exec(ctx context.Context, deviceID, cmdType string, payload json.RawMessage, opts DispatchOptions) (*Command, error) {
	return c.dispatch(ctx, deviceID, cmdType, payload, opts, true)
}

// Enqueue queues a command and returns the accepted row without waiting.
func (c *Client) Enqueue(ctx context.Context, deviceID, cmdType string, payload json.RawMessage, opts DispatchOptions) (*Command, error) {
	return c.dispatch(ctx, deviceID, cmdType, payload, opts, false)
}

func (c *Client) dispatch(ctx context.Context, deviceID, cmdType string, payload json.RawMessage, opts DispatchOptions, wait bool) (*Command, error) {
	req := struct {
		Type            string          `json:"type"`
		Payload         json.RawMessage `json:"payload,omitempty"`
		Wait            bool            `json:"wait,omitempty"`
		TimeoutMs       int64           `json:"timeout_ms,omitempty"`
		QueueIfOffline  bool            `json:"queue_if_offline,omitempty"`
		PreferHeartbeat bool            `json:"prefer_heartbeat,omitempty"`
	}{
		Type:            cmdType,
		Payload:         payload,
		Wait:            wait,
		TimeoutMs:       opts.TimeoutMs,
		QueueIfOffline:  opts.QueueIfOffline,
		PreferHeartbeat: opts.PreferHeartbeat,
	}

	var cmd Command
	path := fmt.Sprintf("/api/v1/devices/%s/commands", url.PathEscape(deviceID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// GetCommand fetches one command row by id.
func (c *Client) GetCommand(ctx context.Context, id string) (*Command, error) {
	var cmd Command
	path := "/api/v1/commands/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// ListCommands returns the newest-first command history for a device.
func (c *Client) ListCommands(ctx context.Context, deviceID string, filter CommandFilter) ([]Command, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Type != "" {
		query.Set("type", filter.Type)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := fmt.Sprintf("/api/v1/devices/%s/commands", url.PathEscape(deviceID))
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Commands []Command `json:"commands"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// CancelCommand recalls a still-pending command and returns the cancelled
// row. A command already sent or finished comes back as a 409 *APIError.
func (c *Client) CancelCommand(ctx context.Context, id string) (*Command, error) {
	var cmd Command
	path := "/api/v1/commands/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
