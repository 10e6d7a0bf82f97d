package tray

import (
	"fmt"
	"time"
)

// MinBalloonTimeout 自定义气泡自动关闭的最小时长
const MinBalloonTimeout = 500 * time.Millisecond

// ShowBalloonTip 通过 shell 显示标准气泡
func (i *Icon) ShowBalloonTip(title, message string, symbol BalloonIcon) {
	i.t.showBalloonTip(title, message, symbol.Flags(), 0)
}

// ShowBalloonTipWithIcon 使用自定义图标显示标准气泡
func (i *Icon) ShowBalloonTipWithIcon(title, message string, icon Handle) error {
	if icon == 0 {
		return fmt.Errorf("balloon icon: %w", ErrNilContent)
	}
	i.t.showBalloonTip(title, message, BalloonFlagUser, icon)
	return nil
}

func (t *taskbar) showBalloonTip(title, message string, flags BalloonFlags, icon Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return
	}
	t.data.BalloonTitle = title
	t.data.BalloonText = message
	t.data.BalloonFlags = flags
	t.data.BalloonIcon = icon
	t.modifyLocked(FieldInfo | FieldIcon)
	t.logger.Debug("💬 [托盘] 显示标准气泡", "title", title)
}

// HideBalloonTip 清空气泡文本以隐藏标准气泡
func (i *Icon) HideBalloonTip() {
	t := i.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return
	}
	t.data.BalloonTitle = ""
	t.data.BalloonText = ""
	t.modifyLocked(FieldInfo)
}

// onBalloonToolTipChanged shell 通知标准气泡显示或关闭
func (t *taskbar) onBalloonToolTipChanged(visible bool) {
	if t.disposed.Load() {
		return
	}
	if visible {
		t.raise(&Event{Type: EventBalloonTipShown, Overlay: OverlayBalloon})
	} else {
		t.raise(&Event{Type: EventBalloonTipClosed, Overlay: OverlayBalloon})
	}
}

// ShowCustomBalloon 在托盘位置显示自定义气泡。
// timeout 为 0 表示一直显示，直到被关闭或被新气泡替换；
// 非零时不得小于 MinBalloonTimeout。
func (i *Icon) ShowCustomBalloon(content Surface, animation Animation, timeout time.Duration) error {
	if content == nil {
		return fmt.Errorf("custom balloon: %w", ErrNilContent)
	}
	if timeout < 0 || (timeout > 0 && timeout < MinBalloonTimeout) {
		return fmt.Errorf("%w: %s, must be at least %s", ErrInvalidTimeout, timeout, MinBalloonTimeout)
	}

	t := i.t
	if t.disposed.Load() {
		return nil
	}
	t.onUI(func() { t.showCustomBalloon(content, animation, timeout) })
	return nil
}

func (t *taskbar) showCustomBalloon(content Surface, animation Animation, timeout time.Duration) {
	if t.disposed.Load() {
		return
	}

	// 同一气泡再次显示时只按新的超时重新计时
	if t.isShowing(OverlayBalloon, content) {
		t.balloonTimer.disarm()
		if timeout > 0 {
			t.balloonTimer.arm(timeout)
		}
		return
	}

	loc := t.desktop.TrayLocation()
	p := Placement{
		Anchor:    Point{X: loc.X - 1, Y: loc.Y - 1},
		Animation: animation,
	}

	attach(content, t.owner())
	if !t.open(OverlayBalloon, content, p) {
		detach(content, t.owner())
		return
	}

	if timeout > 0 {
		t.balloonTimer.arm(timeout)
	}
}

// CustomBalloon 当前跟踪的自定义气泡
func (i *Icon) CustomBalloon() (Surface, bool) {
	t := i.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return nil, false
	}
	o := t.overlays[OverlayBalloon]
	if !o.isOpenLocked() {
		return nil, false
	}
	return o.current, true
}

// ResetBalloonCloseTimer 取消自动关闭，气泡保持显示直到被关闭或替换
func (i *Icon) ResetBalloonCloseTimer() {
	if i.t.disposed.Load() {
		return
	}
	i.t.balloonTimer.disarm()
}

// CloseBalloon 通过可取消的关闭协议关闭自定义气泡
func (i *Icon) CloseBalloon() {
	t := i.t
	if t.disposed.Load() {
		return
	}
	t.onUI(func() { t.close(OverlayBalloon, true) })
}

// fireBalloonTimeout 定时器回调（后台 goroutine），投递到 UI 线程关闭气泡
func (t *taskbar) fireBalloonTimeout() {
	if t.disposed.Load() {
		return
	}
	metricBalloonTimeouts.Inc()
	t.dispatcher.BeginInvoke(func() {
		if t.disposed.Load() {
			return
		}
		t.logger.Debug("⏰ [托盘] 自定义气泡超时")
		t.close(OverlayBalloon, true)
	})
}
