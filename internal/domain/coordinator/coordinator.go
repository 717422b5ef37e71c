package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

// ErrJournalDisabled 未配置对账日志时查询返回
var ErrJournalDisabled = errors.New("reconciliation journal disabled")

const sideEffectTimeout = 5 * time.Second

// Config 协调器配置
type Config struct {
	// OpTimeout 单次后端调用超时，0 表示只受调用方 ctx 约束
	OpTimeout time.Duration
	// Parallel 为 true 时 update / delete / drop 并行写两个存储
	Parallel     bool
	DefaultStore record.Store
}

// Coordinator 双存储协调器：先写文档库再写搜索引擎，不回滚、不重试
type Coordinator struct {
	document record.Operator
	search   record.Operator
	cfg      Config

	lock    IdentifierLock // 可为 nil
	journal Journal        // 可为 nil
	cache   SearchCache    // 可为 nil
}

// New 创建协调器
func New(document, search record.Operator, cfg Config) *Coordinator {
	if cfg.DefaultStore == "" {
		cfg.DefaultStore = record.StoreDocument
	}
	return &Coordinator{document: document, search: search, cfg: cfg}
}

// WithLock 设置标识锁（链式调用）
func (c *Coordinator) WithLock(lock IdentifierLock) *Coordinator {
	c.lock = lock
	applog.Info("[Coordinator] Identifier lock configured", "has_lock", lock != nil)
	return c
}

// WithJournal 设置对账日志（链式调用）
func (c *Coordinator) WithJournal(j Journal) *Coordinator {
	c.journal = j
	applog.Info("[Coordinator] Reconciliation journal configured", "has_journal", j != nil)
	return c
}

// WithCache 设置搜索缓存（链式调用）
func (c *Coordinator) WithCache(cache SearchCache) *Coordinator {
	c.cache = cache
	applog.Info("[Coordinator] Search cache configured", "has_cache", cache != nil)
	return c
}

// DefaultStore 未指定存储时的搜索目标
func (c *Coordinator) DefaultStore() record.Store { return c.cfg.DefaultStore }

func (c *Coordinator) operator(s record.Store) record.Operator {
	if s == record.StoreSearch {
		return c.search
	}
	return c.document
}

// Insert 写入一条或一批记录。所有 Athlete_ID 必须在批内和两个存储中都唯一。
func (c *Coordinator) Insert(ctx context.Context, docs []record.Document) (*record.DualResult, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents to insert", record.ErrInvalidArgument)
	}

	ids, err := identifiers(docs)
	if err != nil {
		return nil, err
	}

	release, err := c.lockAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, id := range ids {
		unique, err := c.IsUnique(ctx, id)
		if err != nil {
			return nil, err
		}
		if !unique {
			applog.Warn("[Coordinator] Duplicate Athlete_ID rejected", "athlete_id", id.Text())
			return nil, &record.DuplicateError{ID: id}
		}
	}

	dual := &record.DualResult{}
	docRes, err := c.call(ctx, func(ctx context.Context) (*record.Result, error) {
		return c.document.CommonInsert(ctx, docs)
	})
	if err != nil {
		// 文档库拒绝（含唯一索引冲突）时搜索引擎不写
		return nil, err
	}
	dual.DocumentStore = docRes

	searchRes, err := c.call(ctx, func(ctx context.Context) (*record.Result, error) {
		return c.search.CommonInsert(ctx, docs)
	})
	if err != nil {
		return dual, c.partial(ctx, "insert", record.StoreDocument, record.StoreSearch, err, insertPayload(ids))
	}
	dual.SearchEngine = searchRes

	c.invalidate(ctx)
	applog.Info("[Coordinator] Inserted", "count", len(docs),
		"document_store_ms", docRes.ElapsedMs, "search_engine_ms", searchRes.ElapsedMs)
	return dual, nil
}

// Update 在两个存储中部分更新匹配记录
func (c *Coordinator) Update(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.DualResult, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	// 改写 Athlete_ID：新值唯一，且最多落到一条记录上
	if id, ok := update.Get(record.IdentifierField); ok {
		if err := record.CheckIdentifier(id); err != nil {
			return nil, err
		}
		if how != record.One {
			return nil, fmt.Errorf("%w: updating %s requires how=%s", record.ErrInvalidArgument, record.IdentifierField, record.One)
		}

		release, err := c.lockAll(ctx, []record.Value{id})
		if err != nil {
			return nil, err
		}
		defer release()

		if err := c.requireSingleMatch(ctx, filter); err != nil {
			return nil, err
		}

		unique, err := c.IsUnique(ctx, id)
		if err != nil {
			return nil, err
		}
		if !unique {
			return nil, &record.DuplicateError{ID: id}
		}
	}

	payload := map[string]any{"query": filter.Fields, "update": update.Fields, "how": how}
	return c.dualWrite(ctx, "update", payload, func(ctx context.Context, op record.Operator) (*record.Result, error) {
		return op.CommonUpdate(ctx, filter, update, how)
	})
}

// Delete 在两个存储中删除匹配记录
func (c *Coordinator) Delete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.DualResult, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}

	payload := map[string]any{"query": filter.Fields, "how": how}
	return c.dualWrite(ctx, "delete", payload, func(ctx context.Context, op record.Operator) (*record.Result, error) {
		return op.CommonDelete(ctx, filter, how)
	})
}

// Drop 清空两个存储
func (c *Coordinator) Drop(ctx context.Context) (*record.DualResult, error) {
	return c.dualWrite(ctx, "drop", nil, func(ctx context.Context, op record.Operator) (*record.Result, error) {
		return op.Drop(ctx)
	})
}

// Search 在指定存储上搜索；空过滤条件返回全部记录，否则做子串匹配
func (c *Coordinator) Search(ctx context.Context, filter record.FilterSpec, store record.Store) (*record.Result, error) {
	if store == "" {
		store = c.cfg.DefaultStore
	}
	if store != record.StoreDocument && store != record.StoreSearch {
		return nil, fmt.Errorf("%w: unknown store %q", record.ErrInvalidArgument, store)
	}

	if c.cache != nil {
		if res, ok := c.cache.Get(ctx, store, filter); ok {
			return res, nil
		}
	}

	op := c.operator(store)
	res, err := c.call(ctx, func(ctx context.Context) (*record.Result, error) {
		if filter.IsEmpty() {
			return op.CommonSearch(ctx)
		}
		return op.QuerySearch(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, store, filter, res)
	}
	applog.Debug("[Coordinator] Search", "store", store, "fields", filter.Names(), "hits", len(res.Documents))
	return res, nil
}

// Count 两个存储中精确匹配的记录数
func (c *Coordinator) Count(ctx context.Context, filter record.FilterSpec) (*record.Counts, error) {
	counts := &record.Counts{}
	for _, s := range []record.Store{record.StoreDocument, record.StoreSearch} {
		op := c.operator(s)
		n, err := c.count(ctx, op, filter)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", s, err)
		}
		if s == record.StoreSearch {
			counts.SearchEngine = n
		} else {
			counts.DocumentStore = n
		}
	}
	return counts, nil
}

// IsUnique 两个存储中都不存在该 Athlete_ID 时返回 true
func (c *Coordinator) IsUnique(ctx context.Context, id record.Value) (bool, error) {
	if err := record.CheckIdentifier(id); err != nil {
		return false, err
	}
	filter := record.MustFilter(record.F(record.IdentifierField, id))

	total := 0
	for _, op := range []record.Operator{c.document, c.search} {
		res, err := c.call(ctx, func(ctx context.Context) (*record.Result, error) {
			return op.MatchSearch(ctx, filter)
		})
		if err != nil {
			return false, fmt.Errorf("uniqueness check on %s: %w", op.Store(), err)
		}
		total += len(res.Documents)
	}
	return total == 0, nil
}

// requireSingleMatch 过滤条件在任一存储中命中多条时拒绝
func (c *Coordinator) requireSingleMatch(ctx context.Context, filter record.FilterSpec) error {
	counts, err := c.Count(ctx, filter)
	if err != nil {
		return err
	}
	if counts.DocumentStore > 1 || counts.SearchEngine > 1 {
		return fmt.Errorf("%w: filter matches %d records in %s and %d in %s, %s must stay unique",
			record.ErrInvalidArgument,
			counts.DocumentStore, record.StoreDocument,
			counts.SearchEngine, record.StoreSearch,
			record.IdentifierField)
	}
	return nil
}

// Reconciliations 最近的部分写入记录
func (c *Coordinator) Reconciliations(ctx context.Context, limit int) ([]*Reconciliation, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.List(ctx, limit)
}

// dualWrite 顺序模式下文档库失败即返回，不再写搜索引擎；并行模式两侧都执行
func (c *Coordinator) dualWrite(ctx context.Context, op string, payload any, fn func(context.Context, record.Operator) (*record.Result, error)) (*record.DualResult, error) {
	var docRes, searchRes *record.Result
	var docErr, searchErr error

	if c.cfg.Parallel {
		var g errgroup.Group
		g.Go(func() error {
			docRes, docErr = c.call(ctx, func(ctx context.Context) (*record.Result, error) { return fn(ctx, c.document) })
			return docErr
		})
		g.Go(func() error {
			searchRes, searchErr = c.call(ctx, func(ctx context.Context) (*record.Result, error) { return fn(ctx, c.search) })
			return searchErr
		})
		_ = g.Wait()
	} else {
		docRes, docErr = c.call(ctx, func(ctx context.Context) (*record.Result, error) { return fn(ctx, c.document) })
		if docErr != nil {
			return nil, docErr
		}
		searchRes, searchErr = c.call(ctx, func(ctx context.Context) (*record.Result, error) { return fn(ctx, c.search) })
	}

	switch {
	case docErr != nil && searchErr != nil:
		return nil, errors.Join(
			fmt.Errorf("%s on %s: %w", op, record.StoreDocument, docErr),
			fmt.Errorf("%s on %s: %w", op, record.StoreSearch, searchErr),
		)
	case docErr != nil:
		c.invalidate(ctx)
		return &record.DualResult{SearchEngine: searchRes},
			c.partial(ctx, op, record.StoreSearch, record.StoreDocument, docErr, payload)
	case searchErr != nil:
		c.invalidate(ctx)
		return &record.DualResult{DocumentStore: docRes},
			c.partial(ctx, op, record.StoreDocument, record.StoreSearch, searchErr, payload)
	}

	c.invalidate(ctx)
	applog.Info("[Coordinator] Dual write applied", "op", op,
		"document_store_ms", docRes.ElapsedMs, "search_engine_ms", searchRes.ElapsedMs)
	return &record.DualResult{DocumentStore: docRes, SearchEngine: searchRes}, nil
}

// call 单次后端调用，带 OpTimeout
func (c *Coordinator) call(ctx context.Context, fn func(context.Context) (*record.Result, error)) (*record.Result, error) {
	if c.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (c *Coordinator) count(ctx context.Context, op record.Operator, filter record.FilterSpec) (int64, error) {
	if c.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
	}
	return op.Count(ctx, filter)
}

// partial 构造部分写入错误并写对账日志
func (c *Coordinator) partial(ctx context.Context, op string, succeeded, failed record.Store, cause error, payload any) error {
	perr := &record.PartialWriteError{Op: op, Succeeded: succeeded, Failed: failed, Err: cause}
	applog.Error("[Coordinator] ❌ Partial write", "op", op, "succeeded", succeeded, "failed", failed, "error", cause)

	if c.journal == nil {
		return perr
	}

	entry := &Reconciliation{Op: op, Succeeded: succeeded, Failed: failed, Error: cause.Error()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.Payload = raw
		}
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := c.journal.Record(jctx, entry); err != nil {
		applog.Warn("[Coordinator] ⚠️ Failed to record reconciliation", "op", op, "error", err)
	}
	return perr
}

func (c *Coordinator) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	c.cache.InvalidateAll(cctx)
}

// lockAll 依次获取所有标识锁，任一失败则释放已获取的锁
func (c *Coordinator) lockAll(ctx context.Context, ids []record.Value) (func(), error) {
	if c.lock == nil {
		return func() {}, nil
	}

	var held []string
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		for _, key := range held {
			_ = c.lock.Release(rctx, key)
		}
	}

	for _, id := range ids {
		key := id.Text()
		ok, err := c.lock.Acquire(ctx, key)
		if err != nil {
			release()
			return nil, record.Unavailable("identifier_lock", err)
		}
		if !ok {
			release()
			// 其他写入者正在处理同一个 Athlete_ID
			return nil, &record.DuplicateError{ID: id}
		}
		held = append(held, key)
	}
	return release, nil
}

// identifiers 读取每条记录的 Athlete_ID，拒绝批内重复
func identifiers(docs []record.Document) ([]record.Value, error) {
	seen := make(map[string]struct{}, len(docs))
	ids := make([]record.Value, 0, len(docs))
	for i, doc := range docs {
		id, err := doc.Identifier()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		key := id.Text()
		if _, dup := seen[key]; dup {
			return nil, &record.DuplicateError{ID: id}
		}
		seen[key] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func insertPayload(ids []record.Value) map[string]any {
	texts := make([]string, len(ids))
	for i, id := range ids {
		texts[i] = id.Text()
	}
	sort.Strings(texts)
	return map[string]any{"athlete_ids": texts}
}
