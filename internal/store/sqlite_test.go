// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers command, agent, and enrollment key CRUD plus persistence across reopen

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/command"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return s
}

func testCommand(id, deviceID string) *Command {
	now := time.Now().UTC().Truncate(time.Second)
	return &Command{
		ID:         id,
		DeviceID:   deviceID,
		Type:       command.TypePing,
		Payload:    json.RawMessage(`{"message":"hello"}`),
		CreatedBy:  "admin",
		Delivery:   DeliveryQueue,
		TimeoutMs:  30000,
		CreatedAt:  now,
		DeadlineAt: now.Add(30 * time.Second),
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetCommand(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cmd := testCommand("cmd-123", "device-001")

	if err := store.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	got, err := store.GetCommand(ctx, "cmd-123")
	if err != nil {
		t.Fatalf("GetCommand failed: %v", err)
	}

	if got.ID != cmd.ID {
		t.Errorf("ID = %q, want %q", got.ID, cmd.ID)
	}
	if got.DeviceID != cmd.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, cmd.DeviceID)
	}
	if got.Type != cmd.Type {
		t.Errorf("Type = %q, want %q", got.Type, cmd.Type)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if string(got.Payload) != `{"message":"hello"}` {
		t.Errorf("Payload = %s, want original payload", got.Payload)
	}
	if got.Result != nil {
		t.Errorf("Result = %+v, want nil before completion", got.Result)
	}
	if !got.CreatedAt.Equal(cmd.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, cmd.CreatedAt)
	}
	if !got.DeadlineAt.Equal(cmd.DeadlineAt) {
		t.Errorf("DeadlineAt = %v, want %v", got.DeadlineAt, cmd.DeadlineAt)
	}
	if got.SentAt != nil || got.CompletedAt != nil || got.ClaimedAt != nil {
		t.Error("timestamps for later lifecycle stages should be nil")
	}
}

func TestCreateCommand_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateCommand(ctx, testCommand("cmd-dup", "device-001")); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	err := store.CreateCommand(ctx, testCommand("cmd-dup", "device-002"))
	if err != ErrDuplicateCommand {
		t.Errorf("CreateCommand duplicate = %v, want ErrDuplicateCommand", err)
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetCommand(context.Background(), "nope")
	if err != ErrNotFound {
		t.Errorf("GetCommand = %v, want ErrNotFound", err)
	}
}

func TestMarkSent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateCommand(ctx, testCommand("cmd-1", "device-001")); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	applied, err := store.MarkSent(ctx, "cmd-1", DeliveryPush, time.Now())
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if !applied {
		t.Fatal("MarkSent should apply to a pending command")
	}

	// Second attempt is a no-op
	applied, err = store.MarkSent(ctx, "cmd-1", DeliveryQueue, time.Now())
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if applied {
		t.Error("MarkSent should not apply twice")
	}

	got, err := store.GetCommand(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("GetCommand failed: %v", err)
	}
	if got.Status != StatusSent {
		t.Errorf("Status = %q, want sent", got.Status)
	}
	if got.Delivery != DeliveryPush {
		t.Errorf("Delivery = %q, want push", got.Delivery)
	}
	if got.SentAt == nil {
		t.Error("SentAt should be set")
	}

	if _, err := store.MarkSent(ctx, "missing", DeliveryPush, time.Now()); err != ErrNotFound {
		t.Errorf("MarkSent missing = %v, want ErrNotFound", err)
	}
}

func TestCancel(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateCommand(ctx, testCommand("cmd-1", "device-001")); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	applied, err := store.Cancel(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !applied {
		t.Fatal("Cancel should apply to a pending command")
	}

	got, _ := store.GetCommand(ctx, "cmd-1")
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on cancel")
	}
}

func TestCancel_SentCommand(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateCommand(ctx, testCommand("cmd-1", "device-001")); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}
	if _, err := store.MarkSent(ctx, "cmd-1", DeliveryPush, time.Now()); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}

	applied, err := store.Cancel(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if applied {
		t.Error("Cancel should not recall a command already handed to an agent")
	}
}

func TestListExpired(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	overdue := testCommand("cmd-overdue", "device-001")
	overdue.DeadlineAt = now.Add(-time.Minute)
	if err := store.CreateCommand(ctx, overdue); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	fresh := testCommand("cmd-fresh", "device-001")
	fresh.DeadlineAt = now.Add(time.Hour)
	if err := store.CreateCommand(ctx, fresh); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	done := testCommand("cmd-done", "device-001")
	done.DeadlineAt = now.Add(-time.Minute)
	if err := store.CreateCommand(ctx, done); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}
	if _, err := store.Complete(ctx, "cmd-done", StatusCompleted, command.Result{Status: "completed"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	expired, err := store.ListExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("ListExpired returned %d commands, want 1", len(expired))
	}
	if expired[0].ID != "cmd-overdue" {
		t.Errorf("expired command = %q, want cmd-overdue", expired[0].ID)
	}
}

func TestListCommands_Filters(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)

	for i, spec := range []struct {
		id     string
		device string
		typ    string
	}{
		{"cmd-a", "device-1", command.TypePing},
		{"cmd-b", "device-1", command.TypeKillProcess},
		{"cmd-c", "device-2", command.TypePing},
	} {
		cmd := testCommand(spec.id, spec.device)
		cmd.Type = spec.typ
		cmd.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.CreateCommand(ctx, cmd); err != nil {
			t.Fatalf("CreateCommand failed: %v", err)
		}
	}
	if _, err := store.Complete(ctx, "cmd-c", StatusFailed, command.Result{Status: "failed"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	byDevice, err := store.ListCommands(ctx, CommandFilter{DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if len(byDevice) != 2 {
		t.Errorf("by device returned %d, want 2", len(byDevice))
	}
	// Newest first
	if len(byDevice) == 2 && byDevice[0].ID != "cmd-b" {
		t.Errorf("first command = %q, want cmd-b (newest)", byDevice[0].ID)
	}

	byStatus, err := store.ListCommands(ctx, CommandFilter{Status: StatusFailed})
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != "cmd-c" {
		t.Errorf("by status = %v, want [cmd-c]", byStatus)
	}

	byType, err := store.ListCommands(ctx, CommandFilter{Type: command.TypePing, DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != "cmd-a" {
		t.Errorf("by type+device = %v, want [cmd-a]", byType)
	}

	limited, err := store.ListCommands(ctx, CommandFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited returned %d, want 1", len(limited))
	}
}

func TestResultSurvivesReopen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	ctx := context.Background()
	cmd := testCommand("cmd-1", "device-001")
	cmd.Type = command.TypeKillProcess
	if err := store.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand failed: %v", err)
	}

	res := command.Result{
		Status:     "completed",
		ExitCode:   0,
		Stdout:     `{"name":"notepad"}`,
		DurationMs: 120,
		Data:       &command.KillProcessResult{Name: "notepad"},
	}
	if _, err := store.Complete(ctx, "cmd-1", StatusCompleted, res); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetCommand(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("GetCommand failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Result == nil {
		t.Fatal("Result should survive reopen")
	}
	if got.Result.Stdout != `{"name":"notepad"}` {
		t.Errorf("Result.Stdout = %q, want raw stdout", got.Result.Stdout)
	}
	// Typed payloads come back as generic maps after a storage round trip
	data, ok := got.Result.Data.(map[string]any)
	if !ok {
		t.Fatalf("Result.Data = %T, want map[string]any", got.Result.Data)
	}
	if data["name"] != "notepad" {
		t.Errorf("Result.Data[name] = %v, want notepad", data["name"])
	}
}

func TestAgentCRUD(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	agent := &Agent{
		ID:           "agent-1",
		Hostname:     "workstation-7",
		OSType:       "windows",
		OSVersion:    "11",
		Architecture: "amd64",
		AgentVersion: "1.4.2",
		EnrolledAt:   time.Now().UTC().Truncate(time.Second),
	}

	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	if err := store.CreateAgent(ctx, agent); err != ErrDuplicateAgent {
		t.Errorf("duplicate CreateAgent = %v, want ErrDuplicateAgent", err)
	}

	got, err := store.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Hostname != "workstation-7" {
		t.Errorf("Hostname = %q, want workstation-7", got.Hostname)
	}
	if got.Status != AgentStatusApproved {
		t.Errorf("Status = %q, want approved by default", got.Status)
	}
	if got.LastSeenAt != nil {
		t.Error("LastSeenAt should be nil before first heartbeat")
	}

	seen := time.Now().UTC().Truncate(time.Second)
	if err := store.TouchAgent(ctx, "agent-1", seen); err != nil {
		t.Fatalf("TouchAgent failed: %v", err)
	}
	got, _ = store.GetAgent(ctx, "agent-1")
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(seen) {
		t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, seen)
	}

	if err := store.SetAgentStatus(ctx, "agent-1", AgentStatusRevoked); err != nil {
		t.Fatalf("SetAgentStatus failed: %v", err)
	}
	got, _ = store.GetAgent(ctx, "agent-1")
	if got.Status != AgentStatusRevoked {
		t.Errorf("Status = %q, want revoked", got.Status)
	}

	if err := store.TouchAgent(ctx, "missing", seen); err != ErrNotFound {
		t.Errorf("TouchAgent missing = %v, want ErrNotFound", err)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Errorf("ListAgents returned %d, want 1", len(agents))
	}
}

func TestEnrollmentKeys(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	key := &EnrollmentKey{
		ID:         "key-1",
		Name:       "warehouse-fleet",
		SecretHash: "$2a$10$fakehashfakehashfakehash",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}

	if err := store.CreateEnrollmentKey(ctx, key); err != nil {
		t.Fatalf("CreateEnrollmentKey failed: %v", err)
	}

	dup := &EnrollmentKey{ID: "key-2", Name: "warehouse-fleet", SecretHash: "x", CreatedAt: time.Now()}
	if err := store.CreateEnrollmentKey(ctx, dup); err != ErrDuplicateKey {
		t.Errorf("duplicate name = %v, want ErrDuplicateKey", err)
	}

	got, err := store.GetEnrollmentKeyByName(ctx, "warehouse-fleet")
	if err != nil {
		t.Fatalf("GetEnrollmentKeyByName failed: %v", err)
	}
	if got.ID != "key-1" {
		t.Errorf("ID = %q, want key-1", got.ID)
	}
	if got.Revoked() {
		t.Error("fresh key should not be revoked")
	}

	if err := store.RevokeEnrollmentKey(ctx, "key-1"); err != nil {
		t.Fatalf("RevokeEnrollmentKey failed: %v", err)
	}
	// Idempotent
	if err := store.RevokeEnrollmentKey(ctx, "key-1"); err != nil {
		t.Errorf("second revoke = %v, want nil", err)
	}
	got, _ = store.GetEnrollmentKey(ctx, "key-1")
	if !got.Revoked() {
		t.Error("key should be revoked")
	}

	if err := store.RevokeEnrollmentKey(ctx, "missing"); err != ErrNotFound {
		t.Errorf("revoke missing = %v, want ErrNotFound", err)
	}

	keys, err := store.ListEnrollmentKeys(ctx)
	if err != nil {
		t.Fatalf("ListEnrollmentKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("ListEnrollmentKeys returned %d, want 1", len(keys))
	}
}
