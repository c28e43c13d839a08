// ABOUTME: Closed catalog of command types the control plane will dispatch.
// ABOUTME: Unknown types are rejected at the API edge, not at delivery time.

package command

// Command types, grouped by family. The set is closed: the dispatch API
// rejects types not listed here so that a typo fails fast instead of
// sitting in the queue until an agent shrugs at it.
const (
	// Processes
	TypeListProcesses = "list_processes"
	TypeKillProcess   = "kill_process"

	// Services
	TypeListServices   = "list_services"
	TypeStartService   = "start_service"
	TypeStopService    = "stop_service"
	TypeRestartService = "restart_service"

	// Registry
	TypeRegistryGet       = "registry_get"
	TypeRegistrySet       = "registry_set"
	TypeRegistryDelete    = "registry_delete"
	TypeRegistryKeyCreate = "registry_key_create"
	TypeRegistryKeyDelete = "registry_key_delete"

	// Event logs
	TypeEventLogsQuery = "event_logs_query"

	// Scheduled tasks
	TypeTasksList   = "tasks_list"
	TypeTaskRun     = "task_run"
	TypeTaskEnable  = "task_enable"
	TypeTaskDisable = "task_disable"

	// Files
	TypeFileList   = "file_list"
	TypeFileRead   = "file_read"
	TypeFileWrite  = "file_write"
	TypeFileDelete = "file_delete"

	// Filesystem analysis
	TypeFilesystemAnalysis = "filesystem_analysis"

	// Patching
	TypePatchScan       = "patch_scan"
	TypeInstallPatches  = "install_patches"
	TypeRollbackPatches = "rollback_patches"

	// Startup items
	TypeStartupItemsList  = "startup_items_list"
	TypeManageStartupItem = "manage_startup_item"

	// Scripts and diagnostics
	TypeRunScript  = "run_script"
	TypeSystemInfo = "system_info"
	TypePing       = "ping"
)

var catalog = map[string]struct{}{
	TypeListProcesses:     {},
	TypeKillProcess:       {},
	TypeListServices:      {},
	TypeStartService:      {},
	TypeStopService:       {},
	TypeRestartService:    {},
	TypeRegistryGet:       {},
	TypeRegistrySet:       {},
	TypeRegistryDelete:    {},
	TypeRegistryKeyCreate: {},
	TypeRegistryKeyDelete: {},
	TypeEventLogsQuery:    {},
	TypeTasksList:         {},
	TypeTaskRun:           {},
	TypeTaskEnable:        {},
	TypeTaskDisable:       {},
	TypeFileList:          {},
	TypeFileRead:          {},
	TypeFileWrite:         {},
	TypeFileDelete:        {},

	TypeFilesystemAnalysis: {},

	TypePatchScan:       {},
	TypeInstallPatches:  {},
	TypeRollbackPatches: {},

	TypeStartupItemsList:  {},
	TypeManageStartupItem: {},

	TypeRunScript:  {},
	TypeSystemInfo: {},
	TypePing:       {},
}

// Valid reports whether typ is a known command type.
func Valid(typ string) bool {
	_, ok := catalog[typ]
	return ok
}

// Types returns the full catalog in no particular order. Used by the admin
// CLI to print what the fleet understands.
func Types() []string {
	out := make([]string, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	return out
}
