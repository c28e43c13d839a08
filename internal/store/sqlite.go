// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides command/agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/droverhq/drover/internal/command"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			result TEXT,
			created_by TEXT NOT NULL DEFAULT '',
			delivery TEXT NOT NULL DEFAULT 'queue',
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			sent_at TEXT,
			completed_at TEXT,
			claimed_at TEXT,
			claim_token TEXT,
			deadline_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_commands_device_status
			ON commands(device_id, status);

		CREATE INDEX IF NOT EXISTS idx_commands_status_deadline
			ON commands(status, deadline_at);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			hostname TEXT NOT NULL DEFAULT '',
			os_type TEXT NOT NULL DEFAULT '',
			os_version TEXT NOT NULL DEFAULT '',
			architecture TEXT NOT NULL DEFAULT '',
			agent_version TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'approved',
			enrolled_at TEXT NOT NULL,
			last_seen_at TEXT
		);

		CREATE TABLE IF NOT EXISTS enrollment_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			secret_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			revoked_at TEXT
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			// claim_token arrived with heartbeat pull delivery
			check:  `SELECT 1 FROM pragma_table_info('commands') WHERE name = 'claim_token'`,
			apply:  `ALTER TABLE commands ADD COLUMN claim_token TEXT`,
			column: "claim_token",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'agent_version'`,
			apply:  `ALTER TABLE agents ADD COLUMN agent_version TEXT NOT NULL DEFAULT ''`,
			column: "agent_version",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		// Column doesn't exist, apply migration
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// terminalSet is the SQL fragment guarding every terminal transition.
const terminalSet = `('completed', 'failed', 'timeout', 'cancelled')`

// CreateCommand inserts a new command row in status pending.
// Returns ErrDuplicateCommand if the id already exists.
func (s *SQLiteStore) CreateCommand(ctx context.Context, cmd *Command) error {
	var payload any
	if len(cmd.Payload) > 0 {
		payload = string(cmd.Payload)
	}

	status := cmd.Status
	if status == "" {
		status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (id, device_id, type, payload, status, created_by, delivery, timeout_ms, created_at, deadline_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cmd.ID,
		cmd.DeviceID,
		cmd.Type,
		payload,
		status,
		cmd.CreatedBy,
		cmd.Delivery,
		cmd.TimeoutMs,
		cmd.CreatedAt.UTC().Format(time.RFC3339),
		cmd.DeadlineAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateCommand
		}
		return fmt.Errorf("inserting command: %w", err)
	}

	s.logger.Debug("created command", "id", cmd.ID, "device", cmd.DeviceID, "type", cmd.Type)
	return nil
}

const commandColumns = `id, device_id, type, payload, status, result, created_by, delivery, timeout_ms, created_at, sent_at, completed_at, claimed_at, deadline_at`

// rowScanner lets scanCommand serve both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*Command, error) {
	var cmd Command
	var payload, result, sentAt, completedAt, claimedAt sql.NullString
	var createdAtStr, deadlineAtStr string
	var status string

	err := row.Scan(
		&cmd.ID,
		&cmd.DeviceID,
		&cmd.Type,
		&payload,
		&status,
		&result,
		&cmd.CreatedBy,
		&cmd.Delivery,
		&cmd.TimeoutMs,
		&createdAtStr,
		&sentAt,
		&completedAt,
		&claimedAt,
		&deadlineAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning command: %w", err)
	}

	cmd.Status = CommandStatus(status)

	if payload.Valid && payload.String != "" {
		cmd.Payload = json.RawMessage(payload.String)
	}

	if result.Valid && result.String != "" {
		var res command.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("decoding result for command %s: %w", cmd.ID, err)
		}
		cmd.Result = &res
	}

	cmd.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	cmd.DeadlineAt, err = time.Parse(time.RFC3339, deadlineAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing deadline_at: %w", err)
	}

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{sentAt, &cmd.SentAt},
		{completedAt, &cmd.CompletedAt},
		{claimedAt, &cmd.ClaimedAt},
	} {
		if !f.src.Valid {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.src.String)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		*f.dst = &t
	}

	return &cmd, nil
}

// GetCommand retrieves a command by id.
// Returns ErrNotFound if the command doesn't exist.
func (s *SQLiteStore) GetCommand(ctx context.Context, id string) (*Command, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	return scanCommand(row)
}

// MarkSent conditionally moves a pending command to sent, recording which
// path delivered it.
func (s *SQLiteStore) MarkSent(ctx context.Context, id, delivery string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET status = ?, delivery = ?, sent_at = ?
		WHERE id = ? AND status = ?
	`, StatusSent, delivery, at.UTC().Format(time.RFC3339), id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("marking command sent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if err := s.commandExists(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	s.logger.Debug("marked command sent", "id", id, "delivery", delivery)
	return true, nil
}

// Complete conditionally moves a non-terminal command into a terminal
// status. The WHERE clause is the whole at-most-once story: the first
// writer wins and every later attempt observes rows == 0.
func (s *SQLiteStore) Complete(ctx context.Context, id string, status CommandStatus, res command.Result) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("complete requires a terminal status, got %q", status)
	}

	blob, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("encoding result: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET status = ?, result = ?, completed_at = ?
		WHERE id = ? AND status NOT IN `+terminalSet+`
	`, status, string(blob), now, id)
	if err != nil {
		return false, fmt.Errorf("completing command: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if err := s.commandExists(ctx, id); err != nil {
			return false, err
		}
		// Already terminal: duplicate or late result, absorbed silently.
		return false, nil
	}

	s.logger.Debug("completed command", "id", id, "status", status)
	return true, nil
}

// Cancel conditionally moves a pending command to cancelled. A command
// already handed to an agent cannot be recalled.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, StatusCancelled, now, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("cancelling command: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if err := s.commandExists(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	s.logger.Debug("cancelled command", "id", id)
	return true, nil
}

// commandExists distinguishes "row missing" from "condition not met" after
// a conditional update touched zero rows.
func (s *SQLiteStore) commandExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM commands WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking command: %w", err)
	}
	return nil
}

// ClaimPending leases up to limit pending commands for a device. The
// claim itself is one conditional UPDATE tagging rows with a fresh token,
// so two concurrent heartbeats cannot claim the same row; the follow-up
// SELECT only reads back what this call tagged.
func (s *SQLiteStore) ClaimPending(ctx context.Context, deviceID string, limit int, leaseTTL time.Duration) ([]*Command, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	token := uuid.NewString()
	cutoff := now.Add(-leaseTTL).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET claimed_at = ?, claim_token = ?
		WHERE id IN (
			SELECT id FROM commands
			WHERE device_id = ? AND status = ?
			  AND (claimed_at IS NULL OR claimed_at <= ?)
			ORDER BY created_at
			LIMIT ?
		)
	`, now.Format(time.RFC3339), token, deviceID, StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming commands: %w", err)
	}

	claimed, _ := result.RowsAffected()
	if claimed == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE claim_token = ? ORDER BY created_at`, token)
	if err != nil {
		return nil, fmt.Errorf("reading claimed commands: %w", err)
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed commands: %w", err)
	}

	s.logger.Debug("claimed commands", "device", deviceID, "count", len(cmds))
	return cmds, nil
}

// ListExpired returns non-terminal commands whose deadline passed.
// Timestamps are stored as UTC RFC3339 text, so string comparison is
// chronological.
func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Command, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commandColumns+` FROM commands
		WHERE status IN (?, ?) AND deadline_at <= ?
		ORDER BY deadline_at
		LIMIT ?
	`, StatusPending, StatusSent, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("querying expired commands: %w", err)
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired commands: %w", err)
	}

	return cmds, nil
}

// ListCommands returns commands matching the filter, newest first.
func (s *SQLiteStore) ListCommands(ctx context.Context, filter CommandFilter) ([]*Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands`

	var conds []string
	var args []any
	if filter.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}

	return cmds, nil
}

// CreateAgent inserts a new agent row.
// Returns ErrDuplicateAgent if the id already exists.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	status := agent.Status
	if status == "" {
		status = AgentStatusApproved
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, hostname, os_type, os_version, architecture, agent_version, status, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		agent.ID,
		agent.Hostname,
		agent.OSType,
		agent.OSVersion,
		agent.Architecture,
		agent.AgentVersion,
		status,
		agent.EnrolledAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "hostname", agent.Hostname)
	return nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var status, enrolledAtStr string
	var lastSeen sql.NullString

	err := row.Scan(
		&agent.ID,
		&agent.Hostname,
		&agent.OSType,
		&agent.OSVersion,
		&agent.Architecture,
		&agent.AgentVersion,
		&status,
		&enrolledAtStr,
		&lastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	agent.Status = AgentStatus(status)

	agent.EnrolledAt, err = time.Parse(time.RFC3339, enrolledAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing enrolled_at: %w", err)
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen_at: %w", err)
		}
		agent.LastSeenAt = &t
	}

	return &agent, nil
}

const agentColumns = `id, hostname, os_type, os_version, architecture, agent_version, status, enrolled_at, last_seen_at`

// GetAgent retrieves an agent by id.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents returns all enrolled agents ordered by enrollment time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY enrolled_at`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}

	return agents, nil
}

// TouchAgent updates the agent's last-seen timestamp.
func (s *SQLiteStore) TouchAgent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching agent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAgentStatus updates the agent's enrollment status.
func (s *SQLiteStore) SetAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated agent status", "id", id, "status", status)
	return nil
}

// CreateEnrollmentKey inserts a new enrollment key.
// Returns ErrDuplicateKey if the name is taken.
func (s *SQLiteStore) CreateEnrollmentKey(ctx context.Context, key *EnrollmentKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollment_keys (id, name, secret_hash, created_at)
		VALUES (?, ?, ?, ?)
	`,
		key.ID,
		key.Name,
		key.SecretHash,
		key.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting enrollment key: %w", err)
	}

	s.logger.Info("created enrollment key", "id", key.ID, "name", key.Name)
	return nil
}

func scanEnrollmentKey(row rowScanner) (*EnrollmentKey, error) {
	var key EnrollmentKey
	var createdAtStr string
	var revokedAt sql.NullString

	err := row.Scan(&key.ID, &key.Name, &key.SecretHash, &createdAtStr, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning enrollment key: %w", err)
	}

	key.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if revokedAt.Valid {
		t, err := time.Parse(time.RFC3339, revokedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing revoked_at: %w", err)
		}
		key.RevokedAt = &t
	}

	return &key, nil
}

const enrollmentKeyColumns = `id, name, secret_hash, created_at, revoked_at`

// GetEnrollmentKey retrieves an enrollment key by id.
func (s *SQLiteStore) GetEnrollmentKey(ctx context.Context, id string) (*EnrollmentKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentKeyColumns+` FROM enrollment_keys WHERE id = ?`, id)
	return scanEnrollmentKey(row)
}

// GetEnrollmentKeyByName retrieves an enrollment key by its unique name.
func (s *SQLiteStore) GetEnrollmentKeyByName(ctx context.Context, name string) (*EnrollmentKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentKeyColumns+` FROM enrollment_keys WHERE name = ?`, name)
	return scanEnrollmentKey(row)
}

// ListEnrollmentKeys returns all enrollment keys ordered by creation time.
func (s *SQLiteStore) ListEnrollmentKeys(ctx context.Context) ([]*EnrollmentKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+enrollmentKeyColumns+` FROM enrollment_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying enrollment keys: %w", err)
	}
	defer rows.Close()

	var keys []*EnrollmentKey
	for rows.Next() {
		key, err := scanEnrollmentKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating enrollment keys: %w", err)
	}

	return keys, nil
}

// RevokeEnrollmentKey marks the key revoked. Revoking an already revoked
// key is a no-op.
func (s *SQLiteStore) RevokeEnrollmentKey(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrollment_keys
		SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("revoking enrollment key: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM enrollment_keys WHERE id = ?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking enrollment key: %w", err)
		}
		return nil
	}

	s.logger.Info("revoked enrollment key", "id", id)
	return nil
}
