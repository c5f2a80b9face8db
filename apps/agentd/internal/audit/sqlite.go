package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vaultpilot/agent"
)

const defaultLocalDBName = "vaultpilot_audit.db"

// SQLiteService 单机部署的默认落盘后端
type SQLiteService struct {
	db          *sql.DB
	recentLimit int
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath, err := auditLocalDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// modernc/sqlite 走单连接，避免写锁互踩
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteAuditSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{
		db:          db,
		recentLimit: envIntOrDefault("AUDIT_RECENT_LIMIT", defaultRecentLimit),
	}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) RecordDecision(rec agent.DecisionRecord) error {
	if strings.TrimSpace(rec.Session) == "" {
		return fmt.Errorf("empty session id")
	}
	obsRaw, err := json.Marshal(rec.Obs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO agent_decisions (
    session_id, agent, seq, obs_json, action, error, elapsed_us, at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, seq) DO NOTHING
`, rec.Session, rec.Agent, int64(rec.Seq), string(obsRaw), rec.Action, rec.Err,
		rec.Elapsed.Microseconds(), rec.At.UTC().UnixMilli())
	if err != nil {
		return err
	}

	// 每个会话只留最近 recentLimit 条，老记录滚动淘汰
	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM agent_decisions
WHERE session_id = ?
  AND id IN (
      SELECT id
      FROM agent_decisions
      WHERE session_id = ?
      ORDER BY seq DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, rec.Session, rec.Session, s.recentLimit)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteService) RecordReset(rec agent.ResetRecord) error {
	if strings.TrimSpace(rec.Session) == "" {
		return fmt.Errorf("empty session id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agent_resets (session_id, agent, seq, at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id, seq) DO NOTHING
`, rec.Session, rec.Agent, int64(rec.Seq), rec.At.UTC().UnixMilli())
	return err
}

func (s *SQLiteService) RecentDecisions(ctx context.Context, sessionID string, limit int) ([]agent.DecisionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, agent, seq, obs_json, action, error, elapsed_us, at_ms
FROM agent_decisions
WHERE session_id = ?
ORDER BY seq DESC, id DESC
LIMIT ?
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]agent.DecisionRecord, error) {
	out := []agent.DecisionRecord{}
	for rows.Next() {
		var (
			rec       agent.DecisionRecord
			seq       int64
			obsJSON   string
			elapsedUs int64
			atMs      int64
		)
		if err := rows.Scan(&rec.Session, &rec.Agent, &seq, &obsJSON, &rec.Action, &rec.Err, &elapsedUs, &atMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(obsJSON), &rec.Obs); err != nil {
			return nil, fmt.Errorf("decode obs for session=%s seq=%d: %w", rec.Session, seq, err)
		}
		rec.Seq = uint64(seq)
		rec.Elapsed = time.Duration(elapsedUs) * time.Microsecond
		rec.At = time.UnixMilli(atMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func ensureSQLiteAuditSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS agent_decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    agent TEXT NOT NULL,
    seq INTEGER NOT NULL,
    obs_json TEXT NOT NULL DEFAULT '[]',
    action INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    elapsed_us INTEGER NOT NULL DEFAULT 0,
    at_ms INTEGER NOT NULL,
    UNIQUE (session_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_decisions_recent ON agent_decisions(session_id, seq DESC)`,
		`
CREATE TABLE IF NOT EXISTS agent_resets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    agent TEXT NOT NULL,
    seq INTEGER NOT NULL,
    at_ms INTEGER NOT NULL,
    UNIQUE (session_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_resets_session ON agent_resets(session_id, seq DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func auditLocalDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("AUDIT_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return filepath.Clean(candidate), nil
		}
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "vaultpilot", defaultLocalDBName), nil
}
