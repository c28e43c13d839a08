// ABOUTME: Admin CLI for drover fleet and command management
// ABOUTME: Uses the HTTP API with JWT authentication to dispatch and inspect commands

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/droverhq/drover/internal/client"
	"github.com/droverhq/drover/internal/command"
)

const banner = `
                                            _           _
  __| |_ __ _____   _____ _ __         __ _| |_ __ ___ (_)_ __
 / _' | '__/ _ \ \ / / _ \ '__| _____ / _' | | '_ ' _ \| | '_ \
| (_| | | | (_) \ V /  __/ |   |_____| (_| | | | | | | | | | | |
 \__,_|_|  \___/ \_/ \___|_|          \__,_|_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("DROVER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "agents":
		err = cmdAgents(baseURL, token)
	case "commands":
		err = cmdCommands(baseURL, token, args)
	case "get":
		err = cmdGet(baseURL, token, args)
	case "exec":
		err = cmdDispatch(baseURL, token, args, true)
	case "enqueue":
		err = cmdDispatch(baseURL, token, args, false)
	case "cancel":
		err = cmdCancel(baseURL, token, args)
	case "enroll-key":
		err = cmdEnrollKey(baseURL, token, args)
	case "types":
		err = cmdTypes()
	case "status":
		err = cmdStatus(baseURL, token)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: drover-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  agents                            List enrolled agents")
	fmt.Println("  commands <device> [--status s]    Show command history for a device")
	fmt.Println("  get <id>                          Show one command with its result")
	fmt.Println("  exec <device> <type> [payload]    Dispatch a command and wait for the result")
	fmt.Println("  enqueue <device> <type> [payload] Queue a command without waiting")
	fmt.Println("  cancel <id>                       Cancel a still-pending command")
	fmt.Println("  enroll-key new --name <name>      Create an enrollment key")
	fmt.Println("  enroll-key list                   List enrollment keys")
	fmt.Println("  enroll-key revoke <id>            Revoke an enrollment key")
	fmt.Println("  types                             List known command types")
	fmt.Println("  status                            Show server status")
	fmt.Println()
	yellow.Println("Options for exec:")
	fmt.Println("  --timeout <dur>         Execution timeout (e.g. 30s, 2m)")
	fmt.Println("  --queue-if-offline      Queue instead of failing when the device is offline")
	fmt.Println()
	yellow.Println("Options for enqueue:")
	fmt.Println("  --prefer-heartbeat      Deliver on the next heartbeat even if connected")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  DROVER_URL              Control server URL (default: http://localhost:8080)")
	fmt.Println("  DROVER_TOKEN            JWT authentication token")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export DROVER_TOKEN=\"eyJhbG...\"")
	fmt.Println("  drover-admin agents")
	fmt.Println("  drover-admin exec dev-42 ping")
	fmt.Println("  drover-admin exec dev-42 kill_process '{\"pid\": 4242}' --timeout 30s")
	fmt.Println("  drover-admin enqueue dev-42 patch_scan --prefer-heartbeat")
	fmt.Println()
}

// getToken returns the JWT token from DROVER_TOKEN env var or ~/.config/drover/token file
func getToken() string {
	// Check env var first
	if token := os.Getenv("DROVER_TOKEN"); token != "" {
		return token
	}

	// Try to read from token file
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "drover", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

func newClient(baseURL, token string) (*client.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("no token: set DROVER_TOKEN or run droverd bootstrap")
	}
	return client.New(baseURL, token), nil
}

// cmdAgents lists all enrolled agents
func cmdAgents(baseURL, token string) error {
	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	agents, err := c.ListAgents(context.Background())
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(agents) == 0 {
		fmt.Println("  (no agents enrolled)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tHOSTNAME\tOS\tSTATUS\tONLINE\tLAST SEEN")
	fmt.Fprintln(w, "  --\t--------\t--\t------\t------\t---------")

	for _, a := range agents {
		online := "no"
		if a.Online {
			online = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(a.ID, 12), truncate(a.Hostname, 24), a.OSType,
			a.Status, online, formatTime(a.LastSeenAt))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdCommands shows command history for a device
func cmdCommands(baseURL, token string, args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: commands <device> [--status s] [--type t] [--limit n]")
	}
	deviceID := args[0]

	filter := client.CommandFilter{}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--status", "-s":
			if i+1 < len(args) {
				filter.Status = args[i+1]
				i++
			}
		case "--type", "-t":
			if i+1 < len(args) {
				filter.Type = args[i+1]
				i++
			}
		case "--limit", "-l":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil {
					return fmt.Errorf("parsing --limit: %w", err)
				}
				filter.Limit = n
				i++
			}
		}
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	cmds, err := c.ListCommands(context.Background(), deviceID, filter)
	if err != nil {
		return fmt.Errorf("listing commands: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Commands for %s\n", deviceID)
	cyan.Println("  --------------------------------")

	if len(cmds) == 0 {
		fmt.Println("  (no commands)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTYPE\tSTATUS\tDELIVERY\tCREATED\tCOMPLETED")
	fmt.Fprintln(w, "  --\t----\t------\t--------\t-------\t---------")

	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(cmd.ID, 12), truncate(cmd.Type, 20), colorStatus(cmd.Status),
			cmd.Delivery, formatTime(cmd.CreatedAt), formatTime(cmd.CompletedAt))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdGet shows one command in detail
func cmdGet(baseURL, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <command-id>")
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	cmd, err := c.GetCommand(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("fetching command: %w", err)
	}

	printCommand(cmd)
	return nil
}

// cmdDispatch dispatches a command; wait selects exec vs enqueue behavior
func cmdDispatch(baseURL, token string, args []string, wait bool) error {
	verb := "enqueue"
	if wait {
		verb = "exec"
	}

	var positional []string
	opts := client.DispatchOptions{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--timeout":
			if i+1 >= len(args) {
				return fmt.Errorf("--timeout requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --timeout: %w", err)
			}
			opts.TimeoutMs = d.Milliseconds()
			i++
		case "--queue-if-offline":
			opts.QueueIfOffline = true
		case "--prefer-heartbeat":
			opts.PreferHeartbeat = true
		default:
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			positional = append(positional, args[i])
		}
	}

	if len(positional) < 2 {
		return fmt.Errorf("usage: %s <device> <type> [payload-json]", verb)
	}
	deviceID, cmdType := positional[0], positional[1]

	var payload json.RawMessage
	if len(positional) > 2 {
		raw := positional[2]
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("payload is not valid JSON: %s", raw)
		}
		payload = json.RawMessage(raw)
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)

	if wait {
		cmd, err := c.Exec(context.Background(), deviceID, cmdType, payload, opts)
		if err != nil {
			return fmt.Errorf("dispatching command: %w", err)
		}
		printCommand(cmd)
		return nil
	}

	cmd, err := c.Enqueue(context.Background(), deviceID, cmdType, payload, opts)
	if err != nil {
		return fmt.Errorf("queueing command: %w", err)
	}

	green.Printf("✓ Queued command: %s\n", cmd.ID)
	fmt.Printf("  Device:   %s\n", cmd.DeviceID)
	fmt.Printf("  Type:     %s\n", cmd.Type)
	fmt.Printf("  Delivery: %s\n", cmd.Delivery)
	fmt.Printf("  Deadline: %s\n", formatTime(cmd.DeadlineAt))

	return nil
}

// cmdCancel recalls a pending command
func cmdCancel(baseURL, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cancel <command-id>")
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	cmd, err := c.CancelCommand(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("cancelling command: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Cancelled command: %s\n", cmd.ID)
	fmt.Printf("  Type:   %s\n", cmd.Type)
	fmt.Printf("  Device: %s\n", cmd.DeviceID)

	return nil
}

// cmdEnrollKey handles enroll-key subcommands
func cmdEnrollKey(baseURL, token string, args []string) error {
	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "new", "create":
		return cmdEnrollKeyNew(baseURL, token, args)
	case "list", "ls":
		return cmdEnrollKeyList(baseURL, token)
	case "revoke", "rm":
		return cmdEnrollKeyRevoke(baseURL, token, args)
	default:
		return fmt.Errorf("unknown enroll-key subcommand: %s (use new, list, revoke)", subcmd)
	}
}

func cmdEnrollKeyNew(baseURL, token string, args []string) error {
	var name string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		}
	}
	if name == "" {
		return fmt.Errorf("usage: enroll-key new --name <name>")
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	created, err := c.CreateEnrollmentKey(context.Background(), name)
	if err != nil {
		return fmt.Errorf("creating enrollment key: %w", err)
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	green.Printf("✓ Created enrollment key: %s\n", created.Name)
	fmt.Printf("  ID:     %s\n", created.ID)
	fmt.Printf("  Secret: %s\n", created.Secret)
	gray.Println("  (shown once; agents enroll with this name and secret)")

	return nil
}

func cmdEnrollKeyList(baseURL, token string) error {
	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	keys, err := c.ListEnrollmentKeys(context.Background())
	if err != nil {
		return fmt.Errorf("listing enrollment keys: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Enrollment Keys")
	cyan.Println("  ---------------")

	if len(keys) == 0 {
		fmt.Println("  (no enrollment keys)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tREVOKED\tCREATED")
	fmt.Fprintln(w, "  --\t----\t-------\t-------")

	for _, k := range keys {
		revoked := "no"
		if k.Revoked {
			revoked = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			truncate(k.ID, 12), truncate(k.Name, 24), revoked, formatTime(k.CreatedAt))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdEnrollKeyRevoke(baseURL, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: enroll-key revoke <id>")
	}

	c, err := newClient(baseURL, token)
	if err != nil {
		return err
	}

	if err := c.RevokeEnrollmentKey(context.Background(), args[0]); err != nil {
		return fmt.Errorf("revoking enrollment key: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Revoked enrollment key: %s\n", args[0])

	return nil
}

// cmdTypes lists the known command catalog
func cmdTypes() error {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Command Types")
	cyan.Println("  -------------")

	for _, t := range command.Types() {
		fmt.Printf("  %s\n", t)
	}
	fmt.Println()

	return nil
}

// cmdStatus shows server status and token presence
func cmdStatus(baseURL, token string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	c := client.New(baseURL, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Health(ctx); err != nil {
		yellow.Printf("  Server:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Server:  ")
	fmt.Printf("healthy at %s\n", baseURL)

	if token != "" {
		if _, err := c.ListAgents(ctx); err != nil {
			yellow.Printf("  Token:   ")
			color.Red("auth failed (%v)\n", err)
		} else {
			green.Printf("  Token:   ")
			fmt.Println("valid (admin)")
		}
	} else {
		yellow.Printf("  Token:   ")
		fmt.Println("(no token - set DROVER_TOKEN)")
	}

	fmt.Println()
	return nil
}

// printCommand renders one command row with its result
func printCommand(cmd *client.Command) {
	cyan := color.New(color.FgCyan)

	fmt.Println()
	cyan.Println("  Command")
	cyan.Println("  -------")
	fmt.Printf("  ID:        %s\n", cmd.ID)
	fmt.Printf("  Device:    %s\n", cmd.DeviceID)
	fmt.Printf("  Type:      %s\n", cmd.Type)
	fmt.Printf("  Status:    %s\n", colorStatus(cmd.Status))
	fmt.Printf("  Delivery:  %s\n", cmd.Delivery)
	if cmd.CreatedBy != "" {
		fmt.Printf("  Created by: %s\n", cmd.CreatedBy)
	}
	if len(cmd.Payload) > 0 {
		fmt.Printf("  Payload:   %s\n", truncate(string(cmd.Payload), 80))
	}
	fmt.Printf("  Created:   %s\n", formatTime(cmd.CreatedAt))
	if cmd.SentAt != "" {
		fmt.Printf("  Sent:      %s\n", formatTime(cmd.SentAt))
	}
	if cmd.CompletedAt != "" {
		fmt.Printf("  Completed: %s\n", formatTime(cmd.CompletedAt))
	}

	if cmd.Result != nil {
		fmt.Println()
		cyan.Println("  Result")
		cyan.Println("  ------")
		fmt.Printf("  Status:    %s\n", colorStatus(cmd.Result.Status))
		fmt.Printf("  Exit code: %d\n", cmd.Result.ExitCode)
		if cmd.Result.DurationMs > 0 {
			fmt.Printf("  Duration:  %dms\n", cmd.Result.DurationMs)
		}
		if cmd.Result.Error != "" {
			fmt.Printf("  Error:     %s\n", cmd.Result.Error)
		}
		if cmd.Result.Stdout != "" {
			fmt.Printf("  Stdout:    %s\n", truncate(strings.TrimSpace(cmd.Result.Stdout), 400))
		}
		if cmd.Result.Stderr != "" {
			fmt.Printf("  Stderr:    %s\n", truncate(strings.TrimSpace(cmd.Result.Stderr), 400))
		}
	}
	fmt.Println()
}

// colorStatus colorizes a command status for terminal output
func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed", "timeout":
		return color.RedString(status)
	case "cancelled":
		return color.YellowString(status)
	case "pending", "sent":
		return color.CyanString(status)
	default:
		return status
	}
}

func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Local().Format("Jan 02 15:04")
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
