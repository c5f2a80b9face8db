package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"vaultpilot/agent"
)

// PostgresService 多实例部署的共享后端。schema 由运维脚本建好，
// 这里只校验存在，绝不自动建表。
type PostgresService struct {
	db          *sql.DB
	recentLimit int
}

func NewPostgresServiceFromEnv() (*PostgresService, error) {
	dsn := auditDSNFromEnv()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	var schemaReady bool
	if err := db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM information_schema.tables
    WHERE table_schema = 'public'
      AND table_name = 'agent_decisions'
)`).Scan(&schemaReady); err != nil {
		_ = db.Close()
		return nil, err
	}
	if !schemaReady {
		_ = db.Close()
		return nil, fmt.Errorf("audit schema not initialized: missing table agent_decisions")
	}

	return &PostgresService{
		db:          db,
		recentLimit: envIntOrDefault("AUDIT_RECENT_LIMIT", defaultRecentLimit),
	}, nil
}

func (s *PostgresService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresService) RecordDecision(rec agent.DecisionRecord) error {
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, seq) DO NOTHING
`, rec.Session, rec.Agent, int64(rec.Seq), string(obsRaw), rec.Action, rec.Err,
		rec.Elapsed.Microseconds(), rec.At.UTC().UnixMilli())
	if err != nil {
		return err
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM agent_decisions
WHERE session_id = $1
  AND id IN (
      SELECT id
      FROM agent_decisions
      WHERE session_id = $1
      ORDER BY seq DESC, id DESC
      OFFSET $2
  )
`, rec.Session, s.recentLimit)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresService) RecordReset(rec agent.ResetRecord) error {
	if strings.TrimSpace(rec.Session) == "" {
		return fmt.Errorf("empty session id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agent_resets (session_id, agent, seq, at_ms)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, seq) DO NOTHING
`, rec.Session, rec.Agent, int64(rec.Seq), rec.At.UTC().UnixMilli())
	return err
}

func (s *PostgresService) RecentDecisions(ctx context.Context, sessionID string, limit int) ([]agent.DecisionRecord, error) {
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
WHERE session_id = $1
ORDER BY seq DESC, id DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisions(rows)
}
