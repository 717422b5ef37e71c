package record

import "context"

// Operator 单个后端的统一操作契约。Coordinator 只依赖这个接口。
type Operator interface {
	Store() Store
	CommonInsert(ctx context.Context, docs []Document) (*Result, error)
	CommonSearch(ctx context.Context) (*Result, error)
	// QuerySearch 大小写不敏感的子串匹配
	QuerySearch(ctx context.Context, filter FilterSpec) (*Result, error)
	// MatchSearch 精确匹配（唯一性检查使用）
	MatchSearch(ctx context.Context, filter FilterSpec) (*Result, error)
	CommonUpdate(ctx context.Context, filter FilterSpec, update UpdateSpec, how Cardinality) (*Result, error)
	CommonDelete(ctx context.Context, filter FilterSpec, how Cardinality) (*Result, error)
	Count(ctx context.Context, filter FilterSpec) (int64, error)
	Drop(ctx context.Context) (*Result, error)
}
