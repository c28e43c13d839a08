// ABOUTME: Configuration loading and parsing for droverd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete droverd configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Agents    AgentsConfig    `yaml:"agents"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	CertFile  string `yaml:"cert_file"` // TLS cert file (generate via: tailscale cert <hostname>)
	KeyFile   string `yaml:"key_file"`  // TLS key file
	Funnel    bool   `yaml:"funnel"`    // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AgentsConfig holds agent-related timing configuration
type AgentsConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	OfflineAfter      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	OfflineAfterRaw      string `yaml:"offline_after"`
}

// DispatchConfig holds command dispatch timing and batching configuration.
// DefaultTimeout applies when a caller gives no per-command timeout;
// MinTimeout and MaxTimeout clamp whatever the caller asks for. QueueTTL
// bounds how long an undelivered queued command may wait before the sweep
// times it out. ClaimTTL is the pull-delivery lease.
type DispatchConfig struct {
	DefaultTimeout time.Duration `yaml:"-"`
	MinTimeout     time.Duration `yaml:"-"`
	MaxTimeout     time.Duration `yaml:"-"`
	QueueTTL       time.Duration `yaml:"-"`
	ClaimTTL       time.Duration `yaml:"-"`
	SweepInterval  time.Duration `yaml:"-"`

	PullBatch int `yaml:"pull_batch"`

	// Raw string values for YAML unmarshaling
	DefaultTimeoutRaw string `yaml:"default_timeout"`
	MinTimeoutRaw     string `yaml:"min_timeout"`
	MaxTimeoutRaw     string `yaml:"max_timeout"`
	QueueTTLRaw       string `yaml:"queue_ttl"`
	ClaimTTLRaw       string `yaml:"claim_ttl"`
	SweepIntervalRaw  string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset timing
// fields fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills timing and batching fields that the file left unset.
func (c *Config) applyDefaults() {
	if c.Agents.HeartbeatInterval == 0 {
		c.Agents.HeartbeatInterval = 30 * time.Second
	}
	if c.Agents.OfflineAfter == 0 {
		c.Agents.OfflineAfter = 90 * time.Second
	}

	if c.Dispatch.DefaultTimeout == 0 {
		c.Dispatch.DefaultTimeout = 30 * time.Second
	}
	if c.Dispatch.MinTimeout == 0 {
		c.Dispatch.MinTimeout = 5 * time.Second
	}
	if c.Dispatch.MaxTimeout == 0 {
		c.Dispatch.MaxTimeout = 10 * time.Minute
	}
	if c.Dispatch.QueueTTL == 0 {
		c.Dispatch.QueueTTL = time.Hour
	}
	if c.Dispatch.ClaimTTL == 0 {
		c.Dispatch.ClaimTTL = 30 * time.Second
	}
	if c.Dispatch.SweepInterval == 0 {
		c.Dispatch.SweepInterval = 15 * time.Second
	}
	if c.Dispatch.PullBatch == 0 {
		c.Dispatch.PullBatch = 16
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Dispatch.MinTimeout > c.Dispatch.MaxTimeout {
		return fmt.Errorf("dispatch.min_timeout %s exceeds dispatch.max_timeout %s",
			c.Dispatch.MinTimeout, c.Dispatch.MaxTimeout)
	}
	if c.Dispatch.DefaultTimeout < c.Dispatch.MinTimeout || c.Dispatch.DefaultTimeout > c.Dispatch.MaxTimeout {
		return fmt.Errorf("dispatch.default_timeout %s outside [%s, %s]",
			c.Dispatch.DefaultTimeout, c.Dispatch.MinTimeout, c.Dispatch.MaxTimeout)
	}
	if c.Dispatch.PullBatch < 0 {
		return fmt.Errorf("dispatch.pull_batch must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agents.heartbeat_interval", cfg.Agents.HeartbeatIntervalRaw, &cfg.Agents.HeartbeatInterval},
		{"agents.offline_after", cfg.Agents.OfflineAfterRaw, &cfg.Agents.OfflineAfter},
		{"dispatch.default_timeout", cfg.Dispatch.DefaultTimeoutRaw, &cfg.Dispatch.DefaultTimeout},
		{"dispatch.min_timeout", cfg.Dispatch.MinTimeoutRaw, &cfg.Dispatch.MinTimeout},
		{"dispatch.max_timeout", cfg.Dispatch.MaxTimeoutRaw, &cfg.Dispatch.MaxTimeout},
		{"dispatch.queue_ttl", cfg.Dispatch.QueueTTLRaw, &cfg.Dispatch.QueueTTL},
		{"dispatch.claim_ttl", cfg.Dispatch.ClaimTTLRaw, &cfg.Dispatch.ClaimTTL},
		{"dispatch.sweep_interval", cfg.Dispatch.SweepIntervalRaw, &cfg.Dispatch.SweepInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
