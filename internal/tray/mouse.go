package tray

import "time"

// sinkHandler 把消息窗口的通知转交给控制器。
// 通知可能来自任意 goroutine，这里只做释放检查与投递。
type sinkHandler struct {
	t *taskbar
}

func (h sinkHandler) MouseEvent(me MouseEvent) {
	t := h.t
	if t.disposed.Load() {
		return
	}
	at := t.desktop.CursorPosition()
	t.dispatcher.BeginInvoke(func() { t.onMouseEvent(me, at) })
}

func (h sinkHandler) ShellRestarted() {
	h.t.onShellRestarted()
}

func (h sinkHandler) ToolTipVisibilityRequested(visible bool) {
	t := h.t
	if t.disposed.Load() {
		return
	}
	t.dispatcher.BeginInvoke(func() { t.onToolTipChange(visible) })
}

func (h sinkHandler) BalloonVisibilityChanged(visible bool) {
	t := h.t
	if t.disposed.Load() {
		return
	}
	t.dispatcher.BeginInvoke(func() { t.onBalloonToolTipChanged(visible) })
}

// onMouseEvent 在 UI 线程上处理一次鼠标通知。
// 只有左键抬起会被延迟到双击间隔之后，以便区分单击与双击。
func (t *taskbar) onMouseEvent(me MouseEvent, at Point) {
	if t.disposed.Load() {
		return
	}

	switch me {
	case MouseMove:
		t.moveLog.Do(func() { t.logger.Debug("🖱️ [托盘] 鼠标移动", "x", at.X, "y", at.Y) })
		t.raise(&Event{Type: EventMouse, Mouse: me})
		return
	case BalloonClicked:
		t.raise(&Event{Type: EventBalloonTipClicked, Overlay: OverlayBalloon, Mouse: me})
	case DoubleClick:
		// 双击到达：取消待执行的单击动作
		t.cancelSingleClick()
		t.mu.Lock()
		dbl := t.doubleClick
		t.mu.Unlock()
		t.executeBinding(dbl)
		t.raise(&Event{Type: EventMouse, Mouse: me})
	default:
		t.raise(&Event{Type: EventMouse, Mouse: me})
	}

	t.mu.Lock()
	popup := t.popupActivation.Matches(me)
	menu := t.menuActivation.Matches(me)
	t.mu.Unlock()

	if me == LeftMouseUp {
		t.deferSingleClick(popup, menu, at)
		return
	}
	if popup {
		t.showTrayPopup(at)
	}
	if menu {
		t.showContextMenu(at)
	}
}

// deferSingleClick 保存左键单击动作并在双击间隔后执行。
// 动作总是执行单击命令，再按激活方式打开弹窗和/或菜单。
func (t *taskbar) deferSingleClick(popup, menu bool, at Point) {
	t.mu.Lock()
	if t.disposed.Load() {
		t.mu.Unlock()
		return
	}
	left := t.leftClick
	if t.pendingClick != nil {
		metricClickActions.WithLabelValues("superseded").Inc()
	}
	t.pendingClick = func() {
		t.executeBinding(left)
		if popup {
			t.showTrayPopup(at)
		}
		if menu {
			t.showContextMenu(at)
		}
	}
	wait := t.doubleClickWaitLocked()
	t.clickTimer.arm(wait)
	t.mu.Unlock()
}

func (t *taskbar) doubleClickWaitLocked() time.Duration {
	if t.doubleClickTime > 0 {
		return t.doubleClickTime
	}
	return t.desktop.DoubleClickTime()
}

func (t *taskbar) cancelSingleClick() {
	t.mu.Lock()
	t.pendingClick = nil
	t.clickTimer.disarm()
	t.mu.Unlock()
}

// fireSingleClick 定时器回调（后台 goroutine）：取走待执行动作并投递到 UI 线程，
// 同一次布置最多执行一次
func (t *taskbar) fireSingleClick() {
	if t.disposed.Load() {
		return
	}
	t.mu.Lock()
	action := t.pendingClick
	t.pendingClick = nil
	t.mu.Unlock()
	if action == nil {
		return
	}

	metricClickActions.WithLabelValues("executed").Inc()
	t.dispatcher.BeginInvoke(func() {
		if t.disposed.Load() {
			return
		}
		action()
	})
}

// executeBinding 执行点击绑定的命令；未指定目标时以所属 Icon 为目标
func (t *taskbar) executeBinding(b ClickBinding) {
	if b.Command == nil {
		return
	}
	var target any = b.Target
	if target == nil {
		if owner := t.owner(); owner != nil {
			target = owner
		}
	}
	ExecuteIfEnabled(b.Command, b.Parameter, target)
}
