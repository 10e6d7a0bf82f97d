package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"traykit/internal/logging"
)

// Loop 由一个专用 goroutine 充当 UI 线程的调度器。
// 所有投递按顺序执行；Close 之后的投递被丢弃。
type Loop struct {
	logger *slog.Logger
	queue  chan func()
	done   chan struct{}
	gid    atomic.Int64

	closeOnce sync.Once
	exited    chan struct{}
}

// NewLoop 启动调度 goroutine
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		logger: logger,
		queue:  make(chan func(), 256),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	ready := make(chan struct{})
	go l.run(ready)
	<-ready
	return l
}

func (l *Loop) run(ready chan<- struct{}) {
	defer close(l.exited)
	l.gid.Store(int64(logging.GoroutineID()))
	close(ready)

	for {
		select {
		case fn := <-l.queue:
			l.call(fn)
		case <-l.done:
			// 把已排队的任务执行完
			for {
				select {
				case fn := <-l.queue:
					l.call(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("💥 [调度] UI 任务 panic", "panic", r)
		}
	}()
	fn()
}

// CheckAccess 当前 goroutine 是否是调度 goroutine
func (l *Loop) CheckAccess() bool {
	return int64(logging.GoroutineID()) == l.gid.Load()
}

// Invoke 阻塞直到 fn 执行完成；调度器已关闭时直接返回
func (l *Loop) Invoke(fn func()) {
	if l.CheckAccess() {
		fn()
		return
	}
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.queue <- wrapped:
	case <-l.done:
		return
	}
	select {
	case <-finished:
	case <-l.exited:
	}
}

// BeginInvoke 异步投递
func (l *Loop) BeginInvoke(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Close 停止调度 goroutine，等待已排队任务执行完
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	<-l.exited
}
