package logging

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry 一条可供查询与推送的日志
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ring 固定容量的最近日志缓冲
type ring struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

func (r *ring) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) last(n int) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]LogEntry, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// BroadcastHandler 在转交下游处理器的同时保留最近日志，并推送给订阅方
type BroadcastHandler struct {
	next  slog.Handler
	buf   *ring
	attrs []slog.Attr
	group string

	Fanout *Fanout
}

// NewBroadcastHandler 创建处理器，size 为保留的最近日志条数
func NewBroadcastHandler(next slog.Handler, size int) *BroadcastHandler {
	if size <= 0 {
		size = 1000
	}
	return &BroadcastHandler{
		next:   next,
		buf:    &ring{entries: make([]LogEntry, size)},
		Fanout: NewFanout(nil),
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)

	entry := LogEntry{
		Time:    r.Time.Format("2006-01-02 15:04:05.000"),
		Level:   levelName(r.Level),
		Message: formatMessage(r, h.attrs, h.group),
	}
	h.buf.add(entry)
	h.Fanout.Offer(entry)
	return err
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.group, attrs)...)
	return &clone
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// Recent 返回最近 n 条日志（n <= 0 表示全部），按时间先后排列
func (h *BroadcastHandler) Recent(n int) []LogEntry {
	return h.buf.last(n)
}

// Subscribe 订阅批量推送的日志，需先启动 Fanout
func (h *BroadcastHandler) Subscribe(buffer int) (<-chan []LogEntry, func()) {
	return h.Fanout.Subscribe(buffer)
}
