// ABOUTME: Simulated command execution for the fake agent.
// ABOUTME: Produces typed JSON stdout matching what real agents report.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/wire"
)

// simulator fakes command execution. Each command takes latency to "run"
// and yields the JSON document a real agent would put on stdout, so the
// control plane's normalization sees realistic input. Types listed in
// failTypes report failure instead, which exercises the failure paths
// without a broken agent.
type simulator struct {
	hostname  string
	latency   time.Duration
	failTypes map[string]bool
	started   time.Time
	log       *slog.Logger
}

func newSimulator(hostname string, latency time.Duration, failTypes map[string]bool, logger *slog.Logger) *simulator {
	return &simulator{
		hostname:  hostname,
		latency:   latency,
		failTypes: failTypes,
		started:   time.Now(),
		log:       logger,
	}
}

// Execute runs one simulated command and returns its result envelope.
func (s *simulator) Execute(cmd wire.Command) wire.ResultEnvelope {
	start := time.Now()
	time.Sleep(s.latency)

	env := s.execute(cmd)
	env.DurationMs = time.Since(start).Milliseconds()
	s.log.Info("executed", "command_id", cmd.ID, "type", cmd.Type, "status", env.Status)
	return env
}

func (s *simulator) execute(cmd wire.Command) wire.ResultEnvelope {
	if s.failTypes[cmd.Type] {
		return wire.ResultEnvelope{
			Status:   wire.ResultStatusFailed,
			ExitCode: 1,
			Stderr:   fmt.Sprintf("simulated failure for %s", cmd.Type),
			Error:    "simulated failure",
		}
	}

	payload, err := command.ParsePayload(cmd.Payload)
	if err != nil {
		return wire.ResultEnvelope{
			Status:   wire.ResultStatusFailed,
			ExitCode: 1,
			Error:    fmt.Sprintf("invalid payload: %v", err),
		}
	}

	switch cmd.Type {
	case command.TypePing:
		return completed(command.PingResult{
			Message: "pong",
			Time:    time.Now().UTC().Format(time.RFC3339),
		})

	case command.TypeSystemInfo:
		return completed(command.SystemInfoResult{
			Hostname:     s.hostname,
			OSType:       osType(),
			OSVersion:    "simulated",
			Architecture: osArch(),
			UptimeSec:    int64(time.Since(s.started).Seconds()),
			CPUCount:     runtime.NumCPU(),
			MemoryMB:     8192,
		})

	case command.TypeListProcesses:
		procs := []command.ProcessInfo{
			{PID: 1, Name: "systemd", User: "root", Status: "running"},
			{PID: 412, Name: "sshd", User: "root", Status: "running"},
			{PID: os.Getpid(), Name: "fake-agent", User: "drover", CPUPercent: 0.3, MemoryMB: 24.5, Status: "running"},
		}
		return completed(command.ProcessListResult{Processes: procs, Total: len(procs)})

	case command.TypeKillProcess:
		return completed(command.KillProcessResult{
			PID:        payload.Int("pid", 0),
			Name:       payload.String("name", ""),
			Terminated: true,
			Force:      payload.Bool("force", false),
		})

	case command.TypeListServices:
		services := []command.ServiceInfo{
			{Name: "cron", DisplayName: "Scheduled Tasks", Status: "running", StartupType: "automatic"},
			{Name: "sshd", DisplayName: "OpenSSH Server", Status: "running", StartupType: "automatic"},
			{Name: "cups", DisplayName: "Printing", Status: "stopped", StartupType: "manual"},
		}
		return completed(command.ServiceListResult{Services: services, Total: len(services)})

	case command.TypeStartService, command.TypeRestartService:
		return completed(command.ServiceActionResult{
			Service: payload.String("name", "unknown"),
			Action:  cmd.Type,
			Status:  "running",
		})

	case command.TypeStopService:
		return completed(command.ServiceActionResult{
			Service: payload.String("name", "unknown"),
			Action:  cmd.Type,
			Status:  "stopped",
		})

	case command.TypeFileList:
		path := payload.String("path", "/")
		return completed(command.FileListResult{
			Path: path,
			Entries: []command.FileEntry{
				{Name: "etc", Type: "dir", Modified: time.Now().UTC().Format(time.RFC3339)},
				{Name: "agent.log", Type: "file", Size: 4096, Modified: time.Now().UTC().Format(time.RFC3339)},
			},
		})

	case command.TypeRunScript:
		script := payload.String("script", "")
		if len(script) > 60 {
			script = script[:60] + "..."
		}
		return completed(command.ScriptResult{
			ExitCode: 0,
			Output:   fmt.Sprintf("simulated run of: %s", script),
		})

	case command.TypePatchScan:
		return completed(command.PatchScanResult{
			Missing: []command.PatchInfo{
				{ID: "KB5034441", Title: "Security Update", Severity: "critical", KB: "KB5034441"},
			},
			Installed: 42,
			ScannedAt: time.Now().UTC().Format(time.RFC3339),
		})

	case command.TypeStartupItemsList:
		return completed(command.StartupItemsResult{
			Items: []command.StartupItem{
				{Name: "fake-agent", Path: "/usr/local/bin/fake-agent", Source: "systemd", Enabled: true},
			},
		})
	}

	// The rest of the catalog is real-agent territory.
	return wire.ResultEnvelope{
		Status:   wire.ResultStatusFailed,
		ExitCode: 1,
		Error:    fmt.Sprintf("command type %q not simulated", cmd.Type),
	}
}

// completed wraps a typed payload into a success envelope with the payload
// serialized on stdout, the way real agents report structured results.
func completed(data any) wire.ResultEnvelope {
	out, err := json.Marshal(data)
	if err != nil {
		return wire.ResultEnvelope{
			Status:   wire.ResultStatusFailed,
			ExitCode: 1,
			Error:    fmt.Sprintf("encoding result: %v", err),
		}
	}
	return wire.ResultEnvelope{
		Status:   wire.ResultStatusCompleted,
		ExitCode: 0,
		Stdout:   string(out),
	}
}

func osType() string {
	return runtime.GOOS
}

func osArch() string {
	return runtime.GOARCH
}
