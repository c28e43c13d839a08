// ABOUTME: Turns agent result envelopes into normalized Results.
// ABOUTME: One switch maps command types to typed stdout payloads.

package command

import (
	"encoding/json"

	"github.com/droverhq/drover/internal/wire"
)

// ProcessInfo describes one running process.
type ProcessInfo struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	User       string  `json:"user,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemoryMB   float64 `json:"memory_mb,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// ProcessListResult is the payload for list_processes.
type ProcessListResult struct {
	Processes []ProcessInfo `json:"processes"`
	Total     int           `json:"total"`
}

// KillProcessResult is the payload for kill_process.
type KillProcessResult struct {
	PID        int    `json:"pid,omitempty"`
	Name       string `json:"name,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

// ServiceInfo describes one system service.
type ServiceInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status"`
	StartupType string `json:"startup_type,omitempty"`
}

// ServiceListResult is the payload for list_services.
type ServiceListResult struct {
	Services []ServiceInfo `json:"services"`
	Total    int           `json:"total"`
}

// ServiceActionResult is the payload for start/stop/restart_service.
type ServiceActionResult struct {
	Service string `json:"service"`
	Action  string `json:"action,omitempty"`
	Status  string `json:"status,omitempty"`
}

// RegistryValue is one value under a registry key.
type RegistryValue struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Data string `json:"data,omitempty"`
}

// RegistryResult is the payload for the registry_* commands. Reads fill
// Values; mutations set Applied.
type RegistryResult struct {
	Hive    string          `json:"hive,omitempty"`
	Path    string          `json:"path,omitempty"`
	Values  []RegistryValue `json:"values,omitempty"`
	Applied bool            `json:"applied,omitempty"`
}

// EventLogEntry is one entry returned by an event log query.
type EventLogEntry struct {
	RecordID int64  `json:"record_id"`
	LogName  string `json:"log_name,omitempty"`
	Level    string `json:"level,omitempty"`
	Source   string `json:"source,omitempty"`
	EventID  int    `json:"event_id,omitempty"`
	Message  string `json:"message,omitempty"`
	Time     string `json:"time,omitempty"`
}

// EventLogQueryResult is the payload for event_logs_query.
type EventLogQueryResult struct {
	Events []EventLogEntry `json:"events"`
	Total  int             `json:"total"`
}

// TaskInfo describes one scheduled task.
type TaskInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Status  string `json:"status,omitempty"`
	LastRun string `json:"last_run,omitempty"`
	NextRun string `json:"next_run,omitempty"`
}

// TaskListResult is the payload for tasks_list.
type TaskListResult struct {
	Tasks []TaskInfo `json:"tasks"`
	Total int        `json:"total"`
}

// TaskActionResult is the payload for task_run/enable/disable.
type TaskActionResult struct {
	Task    string `json:"task"`
	Action  string `json:"action,omitempty"`
	Applied bool   `json:"applied,omitempty"`
}

// FileEntry is a file or directory in a listing.
type FileEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Type     string `json:"type"`
	Size     int64  `json:"size,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// FileListResult is the payload for file_list.
type FileListResult struct {
	Path    string      `json:"path"`
	Entries []FileEntry `json:"entries"`
}

// FileContentResult is the payload for file_read.
type FileContentResult struct {
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// FileActionResult is the payload for file_write/file_delete.
type FileActionResult struct {
	Path    string `json:"path"`
	Action  string `json:"action,omitempty"`
	Applied bool   `json:"applied,omitempty"`
}

// FilesystemSummary is the scan totals of a filesystem analysis.
type FilesystemSummary struct {
	FilesScanned int64 `json:"files_scanned"`
	DirsScanned  int64 `json:"dirs_scanned"`
	BytesScanned int64 `json:"bytes_scanned"`
}

// LargeFile is one large-file candidate from a filesystem analysis.
type LargeFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified,omitempty"`
}

// LargeDirectory is one large-directory candidate.
type LargeDirectory struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	FileCount int64  `json:"file_count,omitempty"`
}

// CleanupCandidate is a path the analysis judged safe to reclaim.
type CleanupCandidate struct {
	Path      string `json:"path"`
	Category  string `json:"category,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Safe      bool   `json:"safe,omitempty"`
}

// FilesystemAnalysisResult is the payload for filesystem_analysis. Partial
// results carry Reason; agents checkpoint long scans and report what they
// covered.
type FilesystemAnalysisResult struct {
	Path              string             `json:"path"`
	Partial           bool               `json:"partial,omitempty"`
	Reason            string             `json:"reason,omitempty"`
	Summary           FilesystemSummary  `json:"summary"`
	LargestFiles      []LargeFile        `json:"largest_files,omitempty"`
	LargestDirs       []LargeDirectory   `json:"largest_directories,omitempty"`
	CleanupCandidates []CleanupCandidate `json:"cleanup_candidates,omitempty"`
}

// PatchInfo describes one available or installed patch.
type PatchInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Severity string `json:"severity,omitempty"`
	KB       string `json:"kb,omitempty"`
}

// PatchScanResult is the payload for patch_scan.
type PatchScanResult struct {
	Missing   []PatchInfo `json:"missing"`
	Installed int         `json:"installed,omitempty"`
	ScannedAt string      `json:"scanned_at,omitempty"`
}

// PatchActionResult is the payload for install_patches/rollback_patches.
type PatchActionResult struct {
	Applied      []string `json:"applied,omitempty"`
	Failed       []string `json:"failed,omitempty"`
	RebootNeeded bool     `json:"reboot_needed,omitempty"`
}

// StartupItem describes one startup entry.
type StartupItem struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Source  string `json:"source,omitempty"`
	Enabled bool   `json:"enabled"`
}

// StartupItemsResult is the payload for startup_items_list.
type StartupItemsResult struct {
	Items []StartupItem `json:"items"`
}

// StartupActionResult is the payload for manage_startup_item.
type StartupActionResult struct {
	Item    string `json:"item"`
	Action  string `json:"action,omitempty"`
	Applied bool   `json:"applied,omitempty"`
}

// ScriptResult is the payload for run_script. The script's own exit code
// and combined output; the envelope's exit code tracks the runner.
type ScriptResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// SystemInfoResult is the payload for system_info.
type SystemInfoResult struct {
	Hostname     string `json:"hostname,omitempty"`
	OSType       string `json:"os_type,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	UptimeSec    int64  `json:"uptime_sec,omitempty"`
	CPUCount     int    `json:"cpu_count,omitempty"`
	MemoryMB     int64  `json:"memory_mb,omitempty"`
}

// PingResult is the payload for ping.
type PingResult struct {
	Message string `json:"message,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Normalize converts the envelope an agent reported for a command of the
// given type into a Result. Stdout is decoded into the type's payload
// struct where one exists; on unknown types or malformed stdout the text
// is kept opaque and Data stays nil. Normalize never fails: the worst
// input still yields a storable Result.
func Normalize(cmdType string, env wire.ResultEnvelope) Result {
	res := Result{
		Status:     deriveStatus(env),
		ExitCode:   env.ExitCode,
		Stdout:     env.Stdout,
		Stderr:     env.Stderr,
		Error:      env.Error,
		DurationMs: env.DurationMs,
	}
	if env.Stdout == "" {
		return res
	}

	var target any
	switch cmdType {
	case TypeListProcesses:
		target = &ProcessListResult{}
	case TypeKillProcess:
		target = &KillProcessResult{}
	case TypeListServices:
		target = &ServiceListResult{}
	case TypeStartService, TypeStopService, TypeRestartService:
		target = &ServiceActionResult{}
	case TypeRegistryGet, TypeRegistrySet, TypeRegistryDelete,
		TypeRegistryKeyCreate, TypeRegistryKeyDelete:
		target = &RegistryResult{}
	case TypeEventLogsQuery:
		target = &EventLogQueryResult{}
	case TypeTasksList:
		target = &TaskListResult{}
	case TypeTaskRun, TypeTaskEnable, TypeTaskDisable:
		target = &TaskActionResult{}
	case TypeFileList:
		target = &FileListResult{}
	case TypeFileRead:
		target = &FileContentResult{}
	case TypeFileWrite, TypeFileDelete:
		target = &FileActionResult{}
	case TypeFilesystemAnalysis:
		target = &FilesystemAnalysisResult{}
	case TypePatchScan:
		target = &PatchScanResult{}
	case TypeInstallPatches, TypeRollbackPatches:
		target = &PatchActionResult{}
	case TypeStartupItemsList:
		target = &StartupItemsResult{}
	case TypeManageStartupItem:
		target = &StartupActionResult{}
	case TypeRunScript:
		target = &ScriptResult{}
	case TypeSystemInfo:
		target = &SystemInfoResult{}
	case TypePing:
		target = &PingResult{}
	default:
		return res
	}

	if err := json.Unmarshal([]byte(env.Stdout), target); err != nil {
		// Not the shape we expected. Keep stdout as opaque text.
		return res
	}
	res.Data = target
	return res
}

// deriveStatus trusts an explicit envelope status; otherwise the exit
// code decides.
func deriveStatus(env wire.ResultEnvelope) string {
	switch env.Status {
	case wire.ResultStatusCompleted, wire.ResultStatusFailed, wire.ResultStatusTimeout:
		return env.Status
	}
	if env.ExitCode == 0 {
		return wire.ResultStatusCompleted
	}
	return wire.ResultStatusFailed
}
