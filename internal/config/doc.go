// Package config handles configuration loading for droverd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DROVER_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/drover/droverd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DROVER_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  heartbeat_interval: "30s"
//	  offline_after: "90s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and agent sockets
//
// Database:
//
//	database:
//	  path: "/var/lib/drover/drover.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${DROVER_JWT_SECRET}"
//
// Agent timing:
//
//	agents:
//	  heartbeat_interval: "30s"
//	  offline_after: "90s"
//
// Dispatch timing:
//
//	dispatch:
//	  default_timeout: "30s"   # per-command when the caller gives none
//	  min_timeout: "5s"        # floor for caller-supplied timeouts
//	  max_timeout: "10m"       # ceiling for caller-supplied timeouts
//	  queue_ttl: "1h"          # undelivered queued commands expire
//	  claim_ttl: "30s"         # pull-delivery lease
//	  sweep_interval: "15s"
//	  pull_batch: 16
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "droverd"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/drover/droverd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
