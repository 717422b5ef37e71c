package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"dualstore/internal/domain/record"
)

// Reconciliation 一次只落到单个存储的写操作，供人工或脚本补齐另一侧
type Reconciliation struct {
	ID        string          `json:"id"`
	Op        string          `json:"op"`
	Succeeded record.Store    `json:"succeeded"`
	Failed    record.Store    `json:"failed"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
}

// Journal 部分写入的对账日志
type Journal interface {
	Record(ctx context.Context, entry *Reconciliation) error
	List(ctx context.Context, limit int) ([]*Reconciliation, error)
}

// IdentifierLock 按 Athlete_ID 加锁，覆盖唯一性检查到写入完成的窗口
type IdentifierLock interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// SearchCache 搜索结果缓存，任何写操作之后整体失效
type SearchCache interface {
	Get(ctx context.Context, store record.Store, filter record.FilterSpec) (*record.Result, bool)
	Set(ctx context.Context, store record.Store, filter record.FilterSpec, result *record.Result)
	InvalidateAll(ctx context.Context)
}
