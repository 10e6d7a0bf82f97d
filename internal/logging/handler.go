package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level       string
	FileEnabled bool
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
	// BufferSize 内存中保留的最近日志条数
	BufferSize int
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup 构建根日志器：SimpleHandler（控制台 + 轮转文件）外面包一层 BroadcastHandler
func Setup(cfg Config) (*slog.Logger, *BroadcastHandler, error) {
	var file io.WriteCloser
	if cfg.FileEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	simple := NewSimpleHandler(ParseLevel(cfg.Level), os.Stdout, file)
	size := cfg.BufferSize
	if size <= 0 {
		size = 1000
	}
	broadcast := NewBroadcastHandler(simple, size)

	if cfg.FileEnabled {
		fmt.Printf("🔧 文件日志已启用: 路径=%s\n", cfg.FilePath)
	}
	return slog.New(broadcast), broadcast, nil
}

// SimpleHandler 输出 [时间] [PID] [GID] [级别] 消息 k=v 格式的日志行
type SimpleHandler struct {
	level   slog.Leveler
	console io.Writer
	file    io.WriteCloser
	attrs   []slog.Attr
	group   string

	mu *sync.Mutex
}

// NewSimpleHandler 创建处理器；file 为 nil 时只输出到控制台
func NewSimpleHandler(level slog.Leveler, console io.Writer, file io.WriteCloser) *SimpleHandler {
	return &SimpleHandler{
		level:   level,
		console: console,
		file:    file,
		mu:      &sync.Mutex{},
	}
}

func (h *SimpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SimpleHandler) Handle(_ context.Context, r slog.Record) error {
	message := formatMessage(r, h.attrs, h.group)

	timestamp := r.Time.Format("2006-01-02 15:04:05.000")
	if r.Time.IsZero() {
		timestamp = time.Now().Format("2006-01-02 15:04:05.000")
	}
	line := fmt.Sprintf("[%s] [PID:%d] [GID:%d] [%s] %s\n", timestamp, os.Getpid(), GoroutineID(), levelName(r.Level), message)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		if _, err := io.WriteString(h.file, line); err != nil {
			return err
		}
	}
	if h.console != nil {
		if _, err := io.WriteString(h.console, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *SimpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.group, attrs)...)
	return &clone
}

func (h *SimpleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// Close 关闭日志文件
func (h *SimpleHandler) Close() error {
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func qualify(group string, attrs []slog.Attr) []slog.Attr {
	if group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: group + "." + a.Key, Value: a.Value}
	}
	return out
}

// formatMessage 把消息和属性拼成 "msg k=v k=v"
func formatMessage(r slog.Record, pre []slog.Attr, group string) string {
	var parts []string
	for _, a := range pre {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if group != "" {
			key = group + "." + key
		}
		parts = append(parts, fmt.Sprintf("%s=%v", key, a.Value))
		return true
	})
	if len(parts) == 0 {
		return r.Message
	}
	return r.Message + " " + strings.Join(parts, " ")
}
