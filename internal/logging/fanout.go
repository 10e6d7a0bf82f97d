package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultMaxBatch      = 10
	defaultFlushInterval = 100 * time.Millisecond
	defaultQueueCap      = 2000
)

// Fanout 把日志攒批后分发给订阅方（控制接口的日志流）。
// 写日志的一方永远不会被阻塞：队列满时丢弃，订阅方跟不上时丢弃整批。
type Fanout struct {
	clk      clock.Clock
	maxBatch int
	interval time.Duration

	subs   *xsync.MapOf[uint64, chan []LogEntry]
	nextID atomic.Uint64
	// sendMu 防止向已取消订阅的通道发送
	sendMu sync.RWMutex

	// mu 保护运行状态；入队本身不持锁
	mu      sync.Mutex
	running bool
	in      chan LogEntry
	stop    chan struct{}
	done    chan struct{}
}

// NewFanout 创建分发器，clk 为 nil 时使用真实时钟
func NewFanout(clk clock.Clock) *Fanout {
	if clk == nil {
		clk = clock.New()
	}
	return &Fanout{
		clk:      clk,
		maxBatch: defaultMaxBatch,
		interval: defaultFlushInterval,
		subs:     xsync.NewMapOf[uint64, chan []LogEntry](),
	}
}

// Subscribe 订阅日志批次，返回的函数取消订阅并关闭通道
func (f *Fanout) Subscribe(buffer int) (<-chan []LogEntry, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := f.nextID.Add(1)
	ch := make(chan []LogEntry, buffer)
	f.subs.Store(id, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.sendMu.Lock()
			defer f.sendMu.Unlock()
			if _, ok := f.subs.LoadAndDelete(id); ok {
				close(ch)
			}
		})
	}
}

// Start 启动分发 goroutine，重复调用无效
func (f *Fanout) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.in = make(chan LogEntry, defaultQueueCap)
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(ctx, f.in, f.stop, f.done)
}

// Stop 刷出已排队的条目后停止，未启动时直接返回
func (f *Fanout) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	stop, done := f.stop, f.done
	f.in = nil
	f.mu.Unlock()

	close(stop)
	<-done
}

// Running 是否已启动
func (f *Fanout) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Offer 提交一条日志；未启动时丢弃。
// 队列满时 WARN/ERROR 挤掉最旧的一条，其余级别直接丢弃。
func (f *Fanout) Offer(entry LogEntry) {
	f.mu.Lock()
	in := f.in
	f.mu.Unlock()
	if in == nil {
		return
	}

	select {
	case in <- entry:
		return
	default:
	}
	if entry.Level != "WARN" && entry.Level != "ERROR" {
		return
	}
	select {
	case <-in:
	default:
	}
	select {
	case in <- entry:
	default:
	}
}

func (f *Fanout) run(ctx context.Context, in <-chan LogEntry, stop, done chan struct{}) {
	defer close(done)

	ticker := f.clk.Ticker(f.interval)
	defer ticker.Stop()

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}

	pending := make([]LogEntry, 0, f.maxBatch)
	add := func(e LogEntry) {
		pending = append(pending, e)
		if len(pending) >= f.maxBatch {
			f.broadcast(pending)
			pending = pending[:0]
		}
	}
	flush := func() {
		if len(pending) > 0 {
			f.broadcast(pending)
			pending = pending[:0]
		}
	}

	for {
		select {
		case e := <-in:
			add(e)
		case <-ticker.C:
			flush()
		case <-ctxDone:
			flush()
			return
		case <-stop:
			for {
				select {
				case e := <-in:
					add(e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// broadcast 每个订阅方拿到独立的副本
func (f *Fanout) broadcast(batch []LogEntry) {
	f.sendMu.RLock()
	defer f.sendMu.RUnlock()
	f.subs.Range(func(_ uint64, ch chan []LogEntry) bool {
		select {
		case ch <- append([]LogEntry(nil), batch...):
		default:
		}
		return true
	})
}
