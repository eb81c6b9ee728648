package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Config 日志配置
type Config struct {
	// 日志级别: debug, info, warn, error
	Level string `mapstructure:"level"`
	// 是否输出到控制台
	Console bool `mapstructure:"console"`
	// 日志文件路径，为空时只输出到控制台
	FilePath string `mapstructure:"file_path"`
	// 单个日志文件最大大小，单位MB
	MaxSize int `mapstructure:"max_size"`
	// 最多保留的旧日志文件数量
	MaxBackups int `mapstructure:"max_backups"`
	// 保留日志文件的最大天数
	MaxAge int `mapstructure:"max_age"`
	// 是否压缩旧日志文件
	Compress bool `mapstructure:"compress"`
}

// Init 初始化日志系统
func Init(config Config) error {
	if config.Level == "" {
		config.Level = "info"
	}
	if config.MaxSize == 0 {
		config.MaxSize = 100
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.MaxAge == 0 {
		config.MaxAge = 28
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core

	// 文件输出，由lumberjack负责滚动
	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return fmt.Errorf("创建日志目录失败: %w", err)
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	if config.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	set(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2)))

	Info("日志系统初始化成功", "level", config.Level, "file", config.FilePath)
	return nil
}

// Replace 替换全局日志实例，传nil关闭日志
func Replace(l *zap.Logger) {
	set(l)
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
	if l != nil {
		sugar = l.Sugar()
	} else {
		sugar = nil
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync 同步日志缓冲区到输出
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log.Sync()
	}
	return nil
}

// Debug 记录调试级别日志
func Debug(msg string, keysAndValues ...interface{}) {
	write(zapcore.DebugLevel, msg, keysAndValues)
}

// Info 记录信息级别日志
func Info(msg string, keysAndValues ...interface{}) {
	write(zapcore.InfoLevel, msg, keysAndValues)
}

// Warn 记录警告级别日志
func Warn(msg string, keysAndValues ...interface{}) {
	write(zapcore.WarnLevel, msg, keysAndValues)
}

// Error 记录错误级别日志
func Error(msg string, keysAndValues ...interface{}) {
	write(zapcore.ErrorLevel, msg, keysAndValues)
}

func write(level zapcore.Level, msg string, keysAndValues []interface{}) {
	s := current()
	if s == nil {
		return
	}
	switch level {
	case zapcore.DebugLevel:
		s.Debugw(msg, keysAndValues...)
	case zapcore.InfoLevel:
		s.Infow(msg, keysAndValues...)
	case zapcore.WarnLevel:
		s.Warnw(msg, keysAndValues...)
	default:
		s.Errorw(msg, keysAndValues...)
	}
}

// WithContext 创建带有组件信息的日志记录器
func WithContext(component string) *ContextLogger {
	return &ContextLogger{component: component}
}

// ContextLogger 带有组件信息的日志记录器
type ContextLogger struct {
	component string
	fields    []interface{}
}

// With 追加固定字段
func (c *ContextLogger) With(keysAndValues ...interface{}) *ContextLogger {
	fields := make([]interface{}, 0, len(c.fields)+len(keysAndValues))
	fields = append(fields, c.fields...)
	fields = append(fields, keysAndValues...)
	return &ContextLogger{component: c.component, fields: fields}
}

func (c *ContextLogger) kvs(keysAndValues []interface{}) []interface{} {
	kvs := make([]interface{}, 0, 2+len(c.fields)+len(keysAndValues))
	kvs = append(kvs, "component", c.component)
	kvs = append(kvs, c.fields...)
	return append(kvs, keysAndValues...)
}

// Debug 记录带组件信息的调试级别日志
func (c *ContextLogger) Debug(msg string, keysAndValues ...interface{}) {
	write(zapcore.DebugLevel, msg, c.kvs(keysAndValues))
}

// Info 记录带组件信息的信息级别日志
func (c *ContextLogger) Info(msg string, keysAndValues ...interface{}) {
	write(zapcore.InfoLevel, msg, c.kvs(keysAndValues))
}

// Warn 记录带组件信息的警告级别日志
func (c *ContextLogger) Warn(msg string, keysAndValues ...interface{}) {
	write(zapcore.WarnLevel, msg, c.kvs(keysAndValues))
}

// Error 记录带组件信息的错误级别日志
func (c *ContextLogger) Error(msg string, keysAndValues ...interface{}) {
	write(zapcore.ErrorLevel, msg, c.kvs(keysAndValues))
}

// TimeTrack 记录函数执行时间
func TimeTrack(name string) func() {
	start := time.Now()
	return func() {
		Info("函数执行时间统计", "function", name, "duration", time.Since(start))
	}
}
