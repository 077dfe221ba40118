package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ========================================
// Structured Logger - 结构化日志系统
// ========================================

// Logger 全局日志实例
var Logger zerolog.Logger

// persistentLogger 持久化日志管理器
var persistentLogger *PersistentLogger

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel 解析 AIDE_LOG_LEVEL / --verbose, 未知值返回 Info
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogConfig 日志配置
type LogConfig struct {
	Level      LogLevel
	Console    bool   // 是否输出到控制台 (stderr, stdout 留给 MCP)
	File       bool   // 是否输出到文件
	FilePath   string // 日志文件路径
	MaxSizeMB  int    // 单个日志文件最大大小 (MB)
	MaxAgeDays int    // 日志保留天数
	MaxBackups int    // 最大备份数量
	Compress   bool   // 是否压缩旧日志
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig 返回持久化日志配置
func PersistentLogConfig(configDir string) LogConfig {
	c := DefaultLogConfig()
	c.File = true
	c.FilePath = filepath.Join(configDir, "logs", "aide.log")
	return c
}

// ========================================
// PersistentLogger - 持久化日志管理器
// ========================================

// PersistentLogger 管理日志文件轮转和清理
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
	done        chan struct{}
}

// NewPersistentLogger 创建持久化日志管理器
func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: config,
		logDir: logDir,
		done:   make(chan struct{}),
	}
	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()
	return pl, nil
}

// Write 实现 io.Writer 接口
func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile == nil {
		return 0, os.ErrClosed
	}

	// 检查是否需要轮转
	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

// rotate 轮转日志文件: aide.log -> aide_<时间>.log(.gz)
func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05.000")
	rotatedPath := filepath.Join(pl.logDir, fmt.Sprintf("aide_%s.log", timestamp))

	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		return pl.openFile()
	}

	if pl.config.Compress {
		go compressFile(rotatedPath)
	}
	return pl.openFile()
}

func compressFile(filePath string) {
	src, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return
	}

	gz := gzip.NewWriter(dst)
	_, err = io.Copy(gz, src)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	dst.Close()
	if err != nil {
		os.Remove(filePath + ".gz")
		return
	}

	os.Remove(filePath)
}

// cleanupRoutine 定期清理旧日志
func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()
	for {
		select {
		case <-ticker.C:
			pl.cleanup()
		case <-pl.done:
			return
		}
	}
}

// rotatedFiles 返回已轮转的日志, 最新在前
func (pl *PersistentLogger) rotatedFiles() []string {
	files, err := filepath.Glob(filepath.Join(pl.logDir, "aide_*.log*"))
	if err != nil {
		return nil
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var infos []fileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: f, modTime: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.After(infos[j].modTime)
	})

	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.path
	}
	return out
}

// cleanup 按保留天数和备份数量删除旧日志
func (pl *PersistentLogger) cleanup() {
	now := time.Now()
	for i, path := range pl.rotatedFiles() {
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(path)
			continue
		}
		if pl.config.MaxAgeDays <= 0 {
			continue
		}
		if info, err := os.Stat(path); err == nil &&
			now.Sub(info.ModTime()) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(path)
		}
	}
}

// Close 关闭日志文件
func (pl *PersistentLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile == nil {
		return nil
	}
	close(pl.done)
	err := pl.currentFile.Close()
	pl.currentFile = nil
	return err
}

// ========================================
// 日志初始化
// ========================================

// InitLogger 初始化日志系统
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		CloseLogger()
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(config.Level.zerolog()).
		With().
		Timestamp().
		Logger()

	return nil
}

// CloseLogger 关闭日志系统
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
		persistentLogger = nil
	}
}

// ModuleLogger 返回带 module 字段的子 logger, 传给 pkg/ 下的构造函数
func ModuleLogger(module string) zerolog.Logger {
	return Logger.With().Str("module", module).Logger()
}

// ========================================
// 便捷日志函数
// ========================================

// LogDebug 输出 Debug 级别日志
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo 输出 Info 级别日志
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn 输出 Warn 级别日志
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError 输出 Error 级别日志
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// ========================================
// 模块特定日志
// ========================================

// DeviceLog 设备 / ADB 日志
func DeviceLog() *zerolog.Event {
	return Logger.Info().Str("module", "device")
}

// PollerLog 界面轮询日志
func PollerLog() *zerolog.Event {
	return Logger.Debug().Str("module", "poller")
}

// EngineLog 自动化引擎日志
func EngineLog() *zerolog.Event {
	return Logger.Info().Str("module", "engine")
}

// AuditLog 操作审计日志
func AuditLog() *zerolog.Event {
	return Logger.Info().Str("module", "audit")
}

// LogPanic 记录 panic 信息
func LogPanic(module string, recovered interface{}, stack string) {
	Logger.Error().
		Str("module", module).
		Str("category", "panic").
		Interface("recovered", recovered).
		Str("stack", stack).
		Msg("Panic recovered")
}

// ========================================
// 性能日志
// ========================================

// OperationTimer 操作计时器
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	details   map[string]interface{}
}

// StartOperation 开始计时
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		details:   make(map[string]interface{}),
	}
}

// AddDetail 添加详细信息
func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.details[key] = value
	return t
}

func (t *OperationTimer) event(e *zerolog.Event) *zerolog.Event {
	duration := time.Since(t.startTime)
	e = e.Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Int64("duration_ms", duration.Milliseconds())
	for k, v := range t.details {
		e = e.Interface(k, v)
	}
	return e
}

// End 结束计时并记录日志
func (t *OperationTimer) End() {
	t.event(Logger.Debug()).Msg("Operation completed")
}

// EndWithError 结束计时并记录错误
func (t *OperationTimer) EndWithError(err error) {
	t.event(Logger.Warn()).Err(err).Msg("Operation failed")
}

// ========================================
// 初始化
// ========================================

func init() {
	_ = InitLogger(DefaultLogConfig())
}
