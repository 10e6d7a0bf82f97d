package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.design/x/mainthread"

	"traykit/internal/logging"
)

// Run 把 run 放到独立 goroutine 中执行，并让进程主线程负责处理 UI 任务，
// run 返回后 Run 才返回。必须在 main 中调用。
func Run(run func()) {
	mainthread.Init(run)
}

// MainThread 把任务投递到进程主线程（mainthread.Init 驱动的循环）。
// BeginInvoke 经由一个转发 goroutine 依次调用 mainthread.Call，保持投递顺序。
type MainThread struct {
	logger *slog.Logger
	queue  chan func()
	done   chan struct{}
	gid    atomic.Int64

	closeOnce sync.Once
	exited    chan struct{}
}

// NewMainThread 创建调度器，只能在 Run 启动的函数内调用
func NewMainThread(logger *slog.Logger) *MainThread {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MainThread{
		logger: logger,
		queue:  make(chan func(), 256),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	mainthread.Call(func() { m.gid.Store(int64(logging.GoroutineID())) })
	go m.forward()
	return m
}

func (m *MainThread) forward() {
	defer close(m.exited)
	for {
		select {
		case fn := <-m.queue:
			mainthread.Call(func() { m.call(fn) })
		case <-m.done:
			return
		}
	}
}

func (m *MainThread) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("💥 [调度] 主线程任务 panic", "panic", r)
		}
	}()
	fn()
}

// CheckAccess 当前 goroutine 是否运行在主线程上
func (m *MainThread) CheckAccess() bool {
	return int64(logging.GoroutineID()) == m.gid.Load()
}

// Invoke 阻塞直到 fn 在主线程执行完成
func (m *MainThread) Invoke(fn func()) {
	if m.CheckAccess() {
		fn()
		return
	}
	mainthread.Call(func() { m.call(fn) })
}

// BeginInvoke 异步投递，保持投递顺序
func (m *MainThread) BeginInvoke(fn func()) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.queue <- fn:
	case <-m.done:
	}
}

// Close 停止转发；之后的 BeginInvoke 被丢弃
func (m *MainThread) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	<-m.exited
}
