package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"vaultpilot/agent"
)

func newMemoryService(t *testing.T) *SQLiteService {
	t.Helper()
	service, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

func decisionAt(session string, seq uint64, action int) agent.DecisionRecord {
	return agent.DecisionRecord{
		Session: session,
		Agent:   "debt-rules",
		Seq:     seq,
		Obs:     []float64{0.5, 0.25, 1},
		Action:  action,
		Elapsed: 1500 * time.Microsecond,
		At:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSQLiteRecordAndQuery(t *testing.T) {
	service := newMemoryService(t)

	if err := service.RecordDecision(decisionAt("s-1", 1, 1)); err != nil {
		t.Fatalf("record decision: %v", err)
	}
	second := decisionAt("s-1", 2, 2)
	if err := service.RecordDecision(second); err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if err := service.RecordReset(agent.ResetRecord{Session: "s-1", Agent: "debt-rules", Seq: 3, At: time.Now()}); err != nil {
		t.Fatalf("record reset: %v", err)
	}
	failed := decisionAt("s-1", 4, -1)
	failed.Err = "non-finite action scores"
	if err := service.RecordDecision(failed); err != nil {
		t.Fatalf("record failed decision: %v", err)
	}

	records, err := service.RecentDecisions(context.Background(), "s-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// 最新在前
	if records[0].Seq != 4 || records[1].Seq != 2 {
		t.Fatalf("unexpected order: seq %d, %d", records[0].Seq, records[1].Seq)
	}
	if records[0].Err != "non-finite action scores" || records[0].Action != -1 {
		t.Fatalf("failure record mangled: %+v", records[0])
	}

	got := records[1]
	if got.Agent != "debt-rules" || got.Action != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.Obs) != 3 || got.Obs[1] != 0.25 {
		t.Fatalf("obs mangled: %+v", got.Obs)
	}
	if got.Elapsed != 1500*time.Microsecond {
		t.Fatalf("elapsed mangled: %v", got.Elapsed)
	}
	if !got.At.Equal(second.At) {
		t.Fatalf("timestamp mangled: %v vs %v", got.At, second.At)
	}
}

func TestSQLiteDuplicateSeqKeepsFirst(t *testing.T) {
	service := newMemoryService(t)

	if err := service.RecordDecision(decisionAt("s-1", 7, 1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	// 重复 (session, seq) 静默忽略，重放不改历史
	if err := service.RecordDecision(decisionAt("s-1", 7, 3)); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	records, err := service.RecentDecisions(context.Background(), "s-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Action != 1 {
		t.Fatalf("expected first write to win, got %+v", records)
	}
}

func TestSQLiteTrimKeepsMostRecent(t *testing.T) {
	t.Setenv("AUDIT_RECENT_LIMIT", "2")
	t.Setenv("AUDIT_LOCAL_DATABASE_PATH", filepath.Join(t.TempDir(), "audit.db"))

	service, err := NewSQLiteServiceFromEnv()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer service.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		if err := service.RecordDecision(decisionAt("s-1", seq, int(seq%4))); err != nil {
			t.Fatalf("record %d: %v", seq, err)
		}
	}

	records, err := service.RecentDecisions(context.Background(), "s-1", 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected trim to keep 2 records, got %d", len(records))
	}
	if records[0].Seq != 5 || records[1].Seq != 4 {
		t.Fatalf("trim kept wrong rows: seq %d, %d", records[0].Seq, records[1].Seq)
	}
}

func TestSQLiteSessionIsolation(t *testing.T) {
	service := newMemoryService(t)

	if err := service.RecordDecision(decisionAt("s-a", 1, 1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := service.RecordDecision(decisionAt("s-b", 1, 2)); err != nil {
		t.Fatalf("record: %v", err)
	}

	records, err := service.RecentDecisions(context.Background(), "s-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Session != "s-a" {
		t.Fatalf("expected only s-a records, got %+v", records)
	}
}

func TestSQLiteRejectsEmptySession(t *testing.T) {
	service := newMemoryService(t)
	if err := service.RecordDecision(agent.DecisionRecord{}); err == nil {
		t.Fatalf("expected error for empty session")
	}
	if _, err := service.RecentDecisions(context.Background(), "  ", 5); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type explodingService struct {
	noopService
}

func (e *explodingService) RecordDecision(_ agent.DecisionRecord) error {
	return fmt.Errorf("disk full")
}

func (e *explodingService) RecordReset(_ agent.ResetRecord) error {
	return fmt.Errorf("disk full")
}

func TestRecorderSwallowsStorageFailures(t *testing.T) {
	rec := NewRecorder(&explodingService{})
	// 只要不 panic、不向上冒错误就算过
	rec.Decision(agent.DecisionRecord{Session: "s-1", Seq: 1})
	rec.Reset(agent.ResetRecord{Session: "s-1", Seq: 2})
}

func TestNewServiceFromEnvModes(t *testing.T) {
	t.Setenv("AGENTD_AUDIT_MODE", "")
	service, mode, err := NewServiceFromEnv()
	if err != nil {
		t.Fatalf("default mode: %v", err)
	}
	if mode != ModeOff {
		t.Fatalf("expected off, got %s", mode)
	}
	if _, ok := service.(*noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}

	t.Setenv("AGENTD_AUDIT_MODE", "sqlite")
	t.Setenv("AUDIT_LOCAL_DATABASE_PATH", filepath.Join(t.TempDir(), "audit.db"))
	service, mode, err = NewServiceFromEnv()
	if err != nil {
		t.Fatalf("sqlite mode: %v", err)
	}
	defer service.Close()
	if mode != ModeSQLite {
		t.Fatalf("expected sqlite, got %s", mode)
	}

	t.Setenv("AGENTD_AUDIT_MODE", "cassandra")
	if _, _, err := NewServiceFromEnv(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
