package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置。Format 取 text 或 json。
type Config struct {
	Level     string
	Format    string
	AddSource bool
	Output    io.Writer
	// Component 非空时作为固定字段附加在每条日志上（server / athletectl）
	Component string
}

var (
	zapLogger *zap.Logger
	mu        sync.RWMutex
)

// Init 初始化全局日志（zap 作为输出核心，slog 作为调用入口）。
func Init(cfg Config) {
	logger := newZap(cfg)
	if cfg.Component != "" {
		logger = logger.With(zap.String("component", cfg.Component))
	}

	mu.Lock()
	zapLogger = logger
	mu.Unlock()
	zap.ReplaceGlobals(logger)

	handler := slogzap.Option{
		Level:     Level(cfg.Level),
		Logger:    logger,
		AddSource: cfg.AddSource,
	}.NewZapHandler()
	slog.SetDefault(slog.New(handler))

	// 第三方库经标准 log 打出的内容也落到同一输出
	log.SetOutput(output(cfg))
	log.SetFlags(0)
}

// Sync 刷新缓冲，进程退出前调用。
func Sync() {
	mu.RLock()
	l := zapLogger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// With 返回带固定字段的 slog logger。
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

func Infof(format string, args ...any) { slog.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any) { slog.Warn(fmt.Sprintf(format, args...)) }

func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	Sync()
	os.Exit(1)
}

// Level 把配置中的级别名解析为 slog 级别，未知值按 info 处理。
func Level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newZap(cfg Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(output(cfg)), zapLevel(Level(cfg.Level)))

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...)
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func output(cfg Config) io.Writer {
	if cfg.Output == nil {
		return os.Stdout
	}
	return cfg.Output
}
