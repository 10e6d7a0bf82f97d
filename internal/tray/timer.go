package tray

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// oneShot 可重复布置的单次定时器。
// 重新布置会原子地取消上一次；每次布置最多触发一次。
type oneShot struct {
	clk clock.Clock
	fn  func()

	mu      sync.Mutex
	timer   *clock.Timer
	seq     uint64
	stopped bool
}

func newOneShot(clk clock.Clock, fn func()) *oneShot {
	return &oneShot{clk: clk, fn: fn}
}

// arm 取消已有布置并在 d 之后触发
func (o *oneShot) arm(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	o.seq++
	seq := o.seq
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = o.clk.AfterFunc(d, func() { o.fire(seq) })
}

// disarm 取消待触发的回调，没有副作用
func (o *oneShot) disarm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// stop 永久停止，之后的 arm 都被忽略
func (o *oneShot) stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.disarm()
}

func (o *oneShot) armed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timer != nil
}

func (o *oneShot) fire(seq uint64) {
	o.mu.Lock()
	// 已被重新布置、取消或停止：这是过期的回调
	if o.stopped || seq != o.seq {
		o.mu.Unlock()
		return
	}
	o.seq++
	o.timer = nil
	o.mu.Unlock()

	o.fn()
}
