// ABOUTME: Fake agent for exercising the control plane end to end.
// ABOUTME: Enrolls (or reuses a saved identity), connects the socket, heartbeats, simulates commands.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/droverhq/drover/internal/client"
	"github.com/droverhq/drover/internal/wire"
)

var version = "dev"

func main() {
	server := flag.String("server", "http://localhost:8080", "control plane base URL")
	statePath := flag.String("state", "", "TOML file holding the agent identity (written after enrollment)")
	enrollKey := flag.String("enroll-key", "", "enrollment key for first-run registration")
	enrollSecret := flag.String("enroll-secret", "", "enrollment secret for first-run registration")
	agentID := flag.String("id", "", "agent ID (skips enrollment, requires -token)")
	token := flag.String("token", "", "agent auth token (skips enrollment, requires -id)")
	hostname := flag.String("hostname", "", "reported hostname (default: OS hostname)")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "heartbeat poll interval")
	latency := flag.Duration("latency", 200*time.Millisecond, "simulated execution time per command")
	failTypes := flag.String("fail", "", "comma-separated command types the simulator reports as failed")
	noSocket := flag.Bool("no-socket", false, "skip the socket; receive commands over heartbeat pulls only")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := options{
		server:       *server,
		statePath:    *statePath,
		enrollKey:    *enrollKey,
		enrollSecret: *enrollSecret,
		agentID:      *agentID,
		token:        *token,
		hostname:     *hostname,
		heartbeat:    *heartbeat,
		latency:      *latency,
		failTypes:    *failTypes,
		noSocket:     *noSocket,
	}

	if err := run(opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server       string
	statePath    string
	enrollKey    string
	enrollSecret string
	agentID      string
	token        string
	hostname     string
	heartbeat    time.Duration
	latency      time.Duration
	failTypes    string
	noSocket     bool
}

func run(opts options, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hostname := opts.hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		} else {
			hostname = "fake-agent"
		}
	}

	identity, err := resolveIdentity(ctx, opts, hostname, logger)
	if err != nil {
		return err
	}
	logger = logger.With("agent_id", identity.AgentID)
	logger.Info("starting fake agent", "version", version, "server", identity.ServerURL, "hostname", hostname)

	api := client.New(identity.ServerURL, identity.AuthToken)

	sim := newSimulator(hostname, opts.latency, splitTypes(opts.failTypes), logger.With("component", "simulate"))

	// Heartbeat-claimed commands always report over the HTTP path; that is
	// the path a socketless agent has.
	submitHTTP := func(commandID string, env wire.ResultEnvelope) {
		subCtx, subCancel := context.WithTimeout(ctx, 10*time.Second)
		defer subCancel()
		if err := api.SubmitResult(subCtx, identity.AgentID, commandID, env); err != nil {
			logger.Error("result submission failed", "command_id", commandID, "error", err)
		}
	}

	if !opts.noSocket {
		sock := newSocket(socketConfig{
			ServerURL: identity.ServerURL,
			AgentID:   identity.AgentID,
			AuthToken: identity.AuthToken,
		}, logger.With("component", "socket"))

		// Socket-delivered commands report back on the socket. When the
		// socket drops mid-execution the HTTP path picks up the result.
		sock.handler = func(cmd wire.Command) {
			env := sim.Execute(cmd)
			frame := wire.ResultFrame{
				Type:           wire.FrameTypeResult,
				CommandID:      cmd.ID,
				ResultEnvelope: env,
			}
			if err := sock.SendResult(frame); err != nil {
				logger.Warn("socket result send failed, using HTTP path", "command_id", cmd.ID, "error", err)
				submitHTTP(cmd.ID, env)
			}
		}

		go sock.Run(ctx)
	}

	heartbeatLoop(ctx, api, identity.AgentID, hostname, opts.heartbeat, sim, submitHTTP, logger.With("component", "heartbeat"))

	logger.Info("fake agent stopped")
	return nil
}

// resolveIdentity decides who this agent is: explicit flags win, then the
// saved state file, then a fresh enrollment (persisted to the state file
// when one is configured).
func resolveIdentity(ctx context.Context, opts options, hostname string, logger *slog.Logger) (*agentState, error) {
	if opts.agentID != "" || opts.token != "" {
		if opts.agentID == "" || opts.token == "" {
			return nil, fmt.Errorf("-id and -token must be given together")
		}
		return &agentState{ServerURL: opts.server, AgentID: opts.agentID, AuthToken: opts.token}, nil
	}

	if opts.statePath != "" {
		state, err := loadState(opts.statePath)
		if err != nil {
			return nil, fmt.Errorf("loading state from %s: %w", opts.statePath, err)
		}
		if state != nil {
			logger.Info("reusing saved identity", "path", opts.statePath, "agent_id", state.AgentID)
			return state, nil
		}
	}

	if opts.enrollKey == "" || opts.enrollSecret == "" {
		return nil, fmt.Errorf("no identity: pass -enroll-key and -enroll-secret for a first run, or -id and -token")
	}

	enrollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	resp, err := client.New(opts.server, "").Enroll(enrollCtx, wire.EnrollRequest{
		EnrollmentKey:    opts.enrollKey,
		EnrollmentSecret: opts.enrollSecret,
		Hostname:         hostname,
		OSType:           osType(),
		OSVersion:        "simulated",
		Architecture:     osArch(),
		AgentVersion:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("enrolling: %w", err)
	}
	logger.Info("enrolled", "agent_id", resp.AgentID)

	state := &agentState{ServerURL: opts.server, AgentID: resp.AgentID, AuthToken: resp.AuthToken}
	if opts.statePath != "" {
		if err := saveState(opts.statePath, state); err != nil {
			return nil, fmt.Errorf("saving state to %s: %w", opts.statePath, err)
		}
		logger.Info("identity saved", "path", opts.statePath)
	}
	return state, nil
}

// heartbeatLoop polls for claimed commands until ctx is done. The first
// beat fires immediately so a freshly started agent picks up its backlog
// without waiting a full interval.
func heartbeatLoop(ctx context.Context, api *client.Client, agentID, hostname string, every time.Duration, sim *simulator, submit func(string, wire.ResultEnvelope), logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		beat(ctx, api, agentID, hostname, sim, submit, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func beat(ctx context.Context, api *client.Client, agentID, hostname string, sim *simulator, submit func(string, wire.ResultEnvelope), logger *slog.Logger) {
	beatCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := api.Heartbeat(beatCtx, agentID, wire.HeartbeatRequest{
		AgentVersion: version,
		Hostname:     hostname,
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("heartbeat failed", "error", err)
		}
		return
	}
	if len(resp.Commands) == 0 {
		logger.Debug("heartbeat ok", "commands", 0)
		return
	}

	logger.Info("heartbeat delivered commands", "count", len(resp.Commands))
	for _, cmd := range resp.Commands {
		submit(cmd.ID, sim.Execute(cmd))
	}
}

func splitTypes(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}
