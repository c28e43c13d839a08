// ABOUTME: TOML identity file for the fake agent.
// ABOUTME: Stores the enrolled agent ID and auth token between runs.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// agentState is the identity the fake agent persists after enrollment so
// restarts reuse the same agent instead of enrolling a new one each time.
type agentState struct {
	ServerURL string `toml:"server_url"`
	AgentID   string `toml:"agent_id"`
	AuthToken string `toml:"auth_token"`
}

// loadState reads the state file at path. A missing file is not an error;
// it returns (nil, nil) so the caller falls through to enrollment.
func loadState(path string) (*agentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state agentState
	if _, err := toml.Decode(string(data), &state); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	if state.AgentID == "" || state.AuthToken == "" {
		return nil, fmt.Errorf("state file is missing agent_id or auth_token")
	}
	if state.ServerURL == "" {
		return nil, fmt.Errorf("state file is missing server_url")
	}
	return &state, nil
}

// saveState writes the state file with owner-only permissions; it carries
// the auth token.
func saveState(path string, state *agentState) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(state); err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}
	return nil
}
