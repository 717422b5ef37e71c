package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dualstore/internal/domain/coordinator"
	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Journal PostgreSQL 实现的对账日志
type Journal struct {
	db *sql.DB
}

var _ coordinator.Journal = (*Journal)(nil)

// NewJournal 创建对账日志
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// EnsureTable 确保 dual_write_reconciliations 表存在
func (j *Journal) EnsureTable(ctx context.Context) error {
	applog.Info("[Journal/PG] Ensuring dual_write_reconciliations table exists...")
	ddl := `
	CREATE TABLE IF NOT EXISTS dual_write_reconciliations (
		id          UUID PRIMARY KEY,
		op          VARCHAR(32) NOT NULL,
		succeeded   VARCHAR(32) NOT NULL,
		failed      VARCHAR(32) NOT NULL,
		payload     JSONB,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_created ON dual_write_reconciliations(created_at DESC);
	`
	_, err := j.db.ExecContext(ctx, ddl)
	if err != nil {
		applog.Error("[Journal/PG] ❌ Failed to create table", "error", err)
	} else {
		applog.Info("[Journal/PG] ✅ Table ready")
	}
	return err
}

// Record 写入一条对账记录，ID 与时间为空时自动补齐
func (j *Journal) Record(ctx context.Context, entry *coordinator.Reconciliation) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO dual_write_reconciliations (id, op, succeeded, failed, payload, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Op, string(entry.Succeeded), string(entry.Failed),
		payloadArg(entry.Payload), entry.Error, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record reconciliation %s: %w", entry.ID, err)
	}
	return nil
}

// List 按时间倒序返回最近的对账记录
func (j *Journal) List(ctx context.Context, limit int) ([]*coordinator.Reconciliation, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, op, succeeded, failed, payload, error, created_at
		 FROM dual_write_reconciliations
		 ORDER BY created_at DESC
		 LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*coordinator.Reconciliation{}
	for rows.Next() {
		e := &coordinator.Reconciliation{}
		var succeeded, failed string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Op, &succeeded, &failed, &payload, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Succeeded = record.Store(succeeded)
		e.Failed = record.Store(failed)
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// JSONB 列不接受空字节串
func payloadArg(p json.RawMessage) interface{} {
	if len(p) == 0 {
		return nil
	}
	return []byte(p)
}
