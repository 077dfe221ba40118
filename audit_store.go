package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"Aide/pkg/dialer"
	"Aide/pkg/engine"
	"Aide/pkg/executor"
	"Aide/pkg/types"
)

// ========================================
// AuditStore - 动作尝试审计日志 (SQLite)
// ========================================

// 只记录元数据, 不落盘消息正文和联系人名
const auditSchemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    outcome TEXT NOT NULL,
    winner TEXT,
    tried TEXT,
    rule_id TEXT,
    source TEXT,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);
CREATE INDEX IF NOT EXISTS idx_attempts_kind ON attempts(kind, started_at);
`

// AuditStore 持久化每次动作尝试的结果, 实现 engine.Recorder
type AuditStore struct {
	db     *sql.DB
	dbPath string

	stmtInsert *sql.Stmt

	// 定期清理
	cron      *cron.Cron
	retention func() int

	mu     sync.Mutex
	closed bool
}

// NewAuditStore 打开 (或创建) dbPath 处的审计库
func NewAuditStore(dbPath string) (*AuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite 单写入
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(auditSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO attempts (
			id, kind, outcome, winner, tried, rule_id, source, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return &AuditStore{db: db, dbPath: dbPath, stmtInsert: stmt}, nil
}

// Path 数据库文件路径
func (s *AuditStore) Path() string { return s.dbPath }

func (s *AuditStore) insert(r types.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	tried, err := json.Marshal(r.Tried)
	if err != nil {
		return err
	}
	_, err = s.stmtInsert.Exec(
		r.ID, r.Kind, r.Outcome,
		nullString(r.Winner), string(tried),
		nullString(r.RuleID), nullString(r.Source),
		r.StartedAt, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", r.ID, err)
	}
	return nil
}

// RecordAttempt 记录引擎完成的一次尝试
func (s *AuditStore) RecordAttempt(a *executor.Attempt, meta engine.AttemptMeta) error {
	rec := types.AttemptRecord{
		ID:         a.ID,
		Kind:       string(a.Kind),
		Outcome:    string(a.Outcome),
		Winner:     a.Winner,
		Tried:      a.TriedNames(),
		RuleID:     meta.RuleID,
		Source:     meta.Source,
		StartedAt:  a.StartedAt.UnixMilli(),
		DurationMs: a.Duration().Milliseconds(),
	}
	AuditLog().
		Str("kind", rec.Kind).
		Str("outcome", rec.Outcome).
		Str("winner", rec.Winner).
		Msg("Attempt finished")
	return s.insert(rec)
}

// RecordDial 把一次拨号汇总为一条记录, 每个步骤的胜出策略按顺序写入 tried
func (s *AuditStore) RecordDial(res *dialer.Result, started time.Time, elapsed time.Duration) error {
	if res == nil {
		return nil
	}
	rec := types.AttemptRecord{
		Kind:       string(dialer.KindDial),
		Outcome:    string(executor.OutcomeExhausted),
		Source:     "manual",
		StartedAt:  started.UnixMilli(),
		DurationMs: elapsed.Milliseconds(),
	}
	if res.Placed {
		rec.Outcome = string(executor.OutcomeSucceeded)
	}
	for _, st := range res.Steps {
		name := st.Step
		if st.Winner != "" {
			name += ":" + st.Winner
		}
		rec.Tried = append(rec.Tried, name)
		if st.Winner != "" {
			rec.Winner = st.Winner
		}
	}
	return s.insert(rec)
}

// ========================================
// 查询
// ========================================

func inClause(column string, values []string, args *[]interface{}) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// QueryAttempts 按条件查询, 最新的在前
func (s *AuditStore) QueryAttempts(q types.AttemptQuery) (*types.AttemptQueryResult, error) {
	var conditions []string
	var args []interface{}

	if len(q.Kinds) > 0 {
		conditions = append(conditions, inClause("kind", q.Kinds, &args))
	}
	if len(q.Outcomes) > 0 {
		conditions = append(conditions, inClause("outcome", q.Outcomes, &args))
	}
	if q.StartTime > 0 {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, q.StartTime)
	}
	if q.EndTime > 0 {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, q.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM attempts"+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, kind, outcome, winner, tried, rule_id, source, started_at, duration_ms
		FROM attempts` + whereClause + ` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	result := &types.AttemptQueryResult{Attempts: []types.AttemptRecord{}}
	for rows.Next() {
		var rec types.AttemptRecord
		var winner, tried, ruleID, source sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Outcome, &winner, &tried, &ruleID, &source, &rec.StartedAt, &rec.DurationMs); err != nil {
			return nil, err
		}
		rec.Winner = winner.String
		rec.RuleID = ruleID.String
		rec.Source = source.String
		if tried.Valid && tried.String != "" {
			json.Unmarshal([]byte(tried.String), &rec.Tried)
		}
		result.Attempts = append(result.Attempts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.Total = total
	result.HasMore = offset+len(result.Attempts) < total
	return result, nil
}

// ========================================
// 清理
// ========================================

// Purge 删除早于 cutoff 的记录
func (s *AuditStore) Purge(cutoff time.Time) (int, error) {
	result, err := s.db.Exec("DELETE FROM attempts WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (s *AuditStore) purgeExpired() {
	days := s.retention()
	if days <= 0 {
		return
	}
	n, err := s.Purge(time.Now().AddDate(0, 0, -days))
	if err != nil {
		LogWarn("audit").Err(err).Msg("Purge failed")
		return
	}
	if n > 0 {
		LogInfo("audit").Int("removed", n).Int("retention_days", days).Msg("Expired attempts purged")
	}
}

// StartRetention 启动时清理一次, 之后每天清理; retention 返回保留天数, <=0 表示永久保留
func (s *AuditStore) StartRetention(retention func() int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	s.retention = retention

	c := cron.New()
	if _, err := c.AddFunc("@daily", s.purgeExpired); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}
	c.Start()
	s.cron = c

	go s.purgeExpired()
	return nil
}

// Close 停止定时任务并关闭数据库
func (s *AuditStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if s.stmtInsert != nil {
		s.stmtInsert.Close()
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
