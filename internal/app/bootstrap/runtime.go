package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	mongodb "dualstore/internal/db/mongo"
	"dualstore/internal/db/opensearch"
	"dualstore/internal/db/postgres"
	redisdb "dualstore/internal/db/redis"
	"dualstore/internal/domain/coordinator"
	"dualstore/internal/domain/record"
	"dualstore/internal/platform/config"
	applog "dualstore/internal/platform/log"
)

// Runtime 装配好的协调器及其底层连接，server 与 athletectl 共用
type Runtime struct {
	Coordinator *coordinator.Coordinator

	closers []func(context.Context)
}

// Build 连接两个必需存储和可选的 Redis / PostgreSQL，组装协调器。
// 必需存储不可用时返回错误；可选组件失败只降级并告警。
func Build(ctx context.Context, cfg *config.AppConfig) (*Runtime, error) {
	rt := &Runtime{}
	pingTimeout := config.Seconds(cfg.Runtime.PingTimeoutSeconds, 5*time.Second)
	ensureTimeout := config.Seconds(cfg.Runtime.EnsureTimeoutSeconds, 15*time.Second)

	defaultStore, err := record.ParseStore(cfg.Coordinator.DefaultStore, record.StoreDocument)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_STORE: %w", err)
	}

	// 文档库
	mc, err := mongodb.Connect(ctx, mongodb.Config{
		URI:        cfg.Mongo.URI,
		Database:   cfg.Mongo.Database,
		Collection: cfg.Mongo.Collection,
		Timeout:    config.Seconds(cfg.Mongo.ConnectTimeoutSec, 10*time.Second),
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func(ctx context.Context) { _ = mc.Disconnect(ctx) })

	if err := withTimeout(ctx, pingTimeout, mc.Ping); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}
	applog.Info("✅ Connected to MongoDB", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	if err := withTimeout(ctx, ensureTimeout, mc.EnsureIndexes); err != nil {
		applog.Warnf("⚠️  Failed to ensure unique index on %s: %v", record.IdentifierField, err)
	}

	// 搜索引擎
	sc := opensearch.NewClient(opensearch.Config{
		URL:                cfg.Search.URL,
		Username:           cfg.Search.Username,
		Password:           cfg.Search.Password,
		Index:              cfg.Search.Index,
		InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
		Timeout:            config.Seconds(cfg.Search.TimeoutSeconds, 30*time.Second),
		SearchSize:         cfg.Search.Size,
	})
	if err := withTimeout(ctx, pingTimeout, sc.Ping); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("search engine ping failed: %w", err)
	}
	applog.Info("✅ Connected to search engine", "url", cfg.Search.URL, "index", sc.IndexName())
	if err := withTimeout(ctx, ensureTimeout, sc.EnsureIndex); err != nil {
		applog.Warnf("⚠️  Failed to ensure search index: %v", err)
	}

	coord := coordinator.New(mongodb.NewOperator(mc), opensearch.NewOperator(sc), coordinator.Config{
		OpTimeout:    cfg.Coordinator.OpTimeout(),
		Parallel:     cfg.Coordinator.Parallel,
		DefaultStore: defaultStore,
	})

	rt.initRedis(ctx, cfg, coord, pingTimeout)
	rt.initJournal(ctx, cfg, coord, pingTimeout, ensureTimeout)

	rt.Coordinator = coord
	return rt, nil
}

// Close 按创建的逆序关闭连接
func (r *Runtime) Close(ctx context.Context) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i](ctx)
	}
	r.closers = nil
}

func (r *Runtime) initRedis(ctx context.Context, cfg *config.AppConfig, coord *coordinator.Coordinator, pingTimeout time.Duration) {
	if cfg.Redis.URL == "" {
		applog.Info("ℹ️  No REDIS_URL set, identifier lock and search cache disabled")
		return
	}

	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Invalid REDIS_URL, identifier lock disabled: %v", err)
		return
	}
	rdb := goredis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		applog.Warnf("⚠️  Redis ping failed, identifier lock disabled: %v", err)
		_ = rdb.Close()
		return
	}
	r.closers = append(r.closers, func(context.Context) { _ = rdb.Close() })

	coord.WithLock(redisdb.NewIdentifierLock(rdb, config.Seconds(cfg.Redis.LockTTLSeconds, 10*time.Second)))
	applog.Info("✅ Connected to Redis for identifier lock")

	if cfg.Redis.SearchCacheTTLSeconds > 0 {
		coord.WithCache(redisdb.NewSearchCache(rdb, time.Duration(cfg.Redis.SearchCacheTTLSeconds)*time.Second))
		applog.Infof("✅ Search cache initialized (TTL: %ds)", cfg.Redis.SearchCacheTTLSeconds)
	}
}

func (r *Runtime) initJournal(ctx context.Context, cfg *config.AppConfig, coord *coordinator.Coordinator, pingTimeout, ensureTimeout time.Duration) {
	if cfg.Database.URL == "" {
		applog.Info("ℹ️  No DATABASE_URL set, reconciliation journal disabled")
		return
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Warnf("⚠️  Invalid DATABASE_URL, reconciliation journal disabled: %v", err)
		return
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		applog.Warnf("⚠️  PostgreSQL ping failed, reconciliation journal disabled: %v", err)
		_ = db.Close()
		return
	}

	journal := postgres.NewJournal(db)
	if err := withTimeout(ctx, ensureTimeout, journal.EnsureTable); err != nil {
		applog.Warnf("⚠️  Failed to ensure reconciliation table, journal disabled: %v", err)
		_ = db.Close()
		return
	}
	r.closers = append(r.closers, func(context.Context) { _ = db.Close() })

	coord.WithJournal(journal)
	applog.Info("✅ Connected to PostgreSQL for reconciliation journal")
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
