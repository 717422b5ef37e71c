package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel    string            `json:"log_level"`
	LogFormat   string            `json:"log_format"`
	Server      ServerConfig      `json:"server"`
	Mongo       MongoConfig       `json:"mongo"`
	Search      SearchConfig      `json:"search"`
	Redis       RedisConfig       `json:"redis"`
	Database    DatabaseConfig    `json:"database"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Runtime     RuntimeConfig     `json:"runtime"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// MongoConfig 文档库连接
type MongoConfig struct {
	URI               string `json:"uri"`
	Database          string `json:"database"`
	Collection        string `json:"collection"`
	ConnectTimeoutSec int    `json:"connect_timeout_seconds"`
}

// SearchConfig 搜索引擎（OpenSearch / Elasticsearch）连接
type SearchConfig struct {
	URL                string `json:"url"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Index              string `json:"index"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	Size               int    `json:"size"`
}

// RedisConfig URL 为空时不启用标识锁和搜索缓存；SearchCacheTTLSeconds 为 0 时不启用搜索缓存
type RedisConfig struct {
	URL                   string `json:"url"`
	LockTTLSeconds        int    `json:"lock_ttl_seconds"`
	SearchCacheTTLSeconds int    `json:"search_cache_ttl_seconds"`
}

// DatabaseConfig 为空时不启用对账日志
type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type CoordinatorConfig struct {
	OpTimeoutSeconds int    `json:"op_timeout_seconds"`
	Parallel         bool   `json:"parallel"`
	DefaultStore     string `json:"default_store"`
}

// RuntimeConfig 启动探活与停机相关的超时（秒）
type RuntimeConfig struct {
	PingTimeoutSeconds     int `json:"ping_timeout_seconds"`
	EnsureTimeoutSeconds   int `json:"ensure_timeout_seconds"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds"`
}

// OpTimeout 单次后端调用的超时
func (c CoordinatorConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSeconds) * time.Second
}

// Seconds 把秒数配置转换为 Duration，非正数返回 fallback
func Seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
		},
		Mongo: MongoConfig{
			Database:          "athletes",
			Collection:        "athlete",
			ConnectTimeoutSec: 10,
		},
		Search: SearchConfig{
			Index:          "athlete",
			TimeoutSeconds: 30,
			Size:           500,
		},
		Redis: RedisConfig{
			LockTTLSeconds: 10,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           2,
			ConnMaxLifetimeSeconds: 300,
		},
		Coordinator: CoordinatorConfig{
			OpTimeoutSeconds: 30,
			DefaultStore:     "document_store",
		},
		Runtime: RuntimeConfig{
			PingTimeoutSeconds:     5,
			EnsureTimeoutSeconds:   15,
			ShutdownTimeoutSeconds: 15,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	// .env 非必需
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("MONGO_URI", &c.Mongo.URI)
	applyString("MONGO_DATABASE", &c.Mongo.Database)
	applyString("MONGO_COLLECTION", &c.Mongo.Collection)
	applyInt("MONGO_CONNECT_TIMEOUT", &c.Mongo.ConnectTimeoutSec)

	applyString("SEARCH_URL", &c.Search.URL)
	applyString("SEARCH_USERNAME", &c.Search.Username)
	applyString("SEARCH_PASSWORD", &c.Search.Password)
	applyString("SEARCH_INDEX", &c.Search.Index)
	applyBool("SEARCH_INSECURE_SKIP_VERIFY", &c.Search.InsecureSkipVerify)
	applyInt("SEARCH_TIMEOUT", &c.Search.TimeoutSeconds)
	applyInt("SEARCH_SIZE", &c.Search.Size)

	applyString("REDIS_URL", &c.Redis.URL)
	applyInt("REDIS_LOCK_TTL", &c.Redis.LockTTLSeconds)
	applyInt("REDIS_SEARCH_CACHE_TTL", &c.Redis.SearchCacheTTLSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyInt("COORDINATOR_OP_TIMEOUT", &c.Coordinator.OpTimeoutSeconds)
	applyBool("COORDINATOR_PARALLEL", &c.Coordinator.Parallel)
	applyString("DEFAULT_STORE", &c.Coordinator.DefaultStore)

	applyInt("RUNTIME_PING_TIMEOUT", &c.Runtime.PingTimeoutSeconds)
	applyInt("RUNTIME_ENSURE_TIMEOUT", &c.Runtime.EnsureTimeoutSeconds)
	applyInt("RUNTIME_SHUTDOWN_TIMEOUT", &c.Runtime.ShutdownTimeoutSeconds)
}

func (c *AppConfig) normalize() {
	c.Search.URL = strings.TrimRight(strings.TrimSpace(c.Search.URL), "/")
	c.Mongo.URI = strings.TrimSpace(c.Mongo.URI)
	if c.Search.Size <= 0 {
		c.Search.Size = 500
	}
	if c.Coordinator.OpTimeoutSeconds <= 0 {
		c.Coordinator.OpTimeoutSeconds = 30
	}
	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 10
	}
	c.Coordinator.DefaultStore = strings.ToLower(strings.TrimSpace(c.Coordinator.DefaultStore))
}

func (c *AppConfig) validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Search.URL == "" {
		return fmt.Errorf("SEARCH_URL is required")
	}
	if strings.TrimSpace(c.Search.Index) == "" {
		return fmt.Errorf("SEARCH_INDEX must not be empty")
	}
	if strings.TrimSpace(c.Mongo.Database) == "" || strings.TrimSpace(c.Mongo.Collection) == "" {
		return fmt.Errorf("MONGO_DATABASE and MONGO_COLLECTION must not be empty")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
