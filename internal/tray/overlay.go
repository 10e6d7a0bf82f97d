package tray

// Overlay 托盘图标可显示的覆盖层种类。
type Overlay int

const (
	OverlayMenu Overlay = iota
	OverlayToolTip
	OverlayPopup
	OverlayBalloon

	overlayCount
)

// String 返回覆盖层名称（同时用作指标标签）
func (o Overlay) String() string {
	switch o {
	case OverlayMenu:
		return "menu"
	case OverlayToolTip:
		return "tooltip"
	case OverlayPopup:
		return "popup"
	case OverlayBalloon:
		return "balloon"
	default:
		return "unknown"
	}
}

// State 覆盖层状态：Closed -> Opening -> Open -> Closing -> Closed
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

type overlay struct {
	kind  Overlay
	state State
	// content 配置的内容；气泡每次由调用方传入，不使用该字段
	content Surface
	// current 控制器当前认为处于打开状态的内容
	current Surface
	anchor  Point
}

// stateLocked 与内容自身的打开状态对齐：内容已自行关闭时视为 Closed
func (o *overlay) stateLocked() State {
	if o.state == StateOpen && (o.current == nil || !o.current.IsOpen()) {
		o.state = StateClosed
		o.current = nil
	}
	return o.state
}

func (o *overlay) isOpenLocked() bool {
	return o.stateLocked() == StateOpen
}

// setContent 只允许在覆盖层关闭时替换内容
func (t *taskbar) setContent(kind Overlay, s Surface) error {
	t.mu.Lock()
	if t.disposed.Load() {
		t.mu.Unlock()
		return nil
	}
	o := t.overlays[kind]
	if o.stateLocked() != StateClosed {
		t.mu.Unlock()
		return ErrSurfaceOpen
	}
	prev := o.content
	o.content = s
	t.mu.Unlock()

	owner := t.owner()
	if prev != nil && !sameSurface(prev, s) {
		detach(prev, owner)
	}
	attach(s, owner)
	return nil
}

// isPopupOpen 弹窗、菜单或自定义气泡是否有任一处于打开状态
func (t *taskbar) isPopupOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlays[OverlayPopup].isOpenLocked() ||
		t.overlays[OverlayMenu].isOpenLocked() ||
		t.overlays[OverlayBalloon].isOpenLocked()
}

// open 执行打开协议，必须在 UI 线程上调用。
// 预览被取消时不做任何状态或界面变更；同一内容已经打开时什么也不做。
func (t *taskbar) open(kind Overlay, content Surface, p Placement) bool {
	if t.disposed.Load() || content == nil || t.isShowing(kind, content) {
		return false
	}
	if t.previewOpen(kind, content) {
		return false
	}
	return t.openPreviewed(kind, content, p)
}

// isShowing content 是否就是 kind 当前打开的内容
func (t *taskbar) isShowing(kind Overlay, content Surface) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.overlays[kind]
	return o.isOpenLocked() && sameSurface(o.current, content)
}

// previewOpen 发出可取消的打开预览，返回 true 表示被取消。
// content 可能为 nil：监听方可以在预览中才设置内容。
func (t *taskbar) previewOpen(kind Overlay, content Surface) bool {
	if !t.raise(&Event{Type: EventPreviewOpen, Overlay: kind, Content: content}).Handled {
		return false
	}
	metricOverlayCanceled.WithLabelValues(kind.String(), "open").Inc()
	t.logger.Debug("🚫 [托盘] 打开被预览监听取消", "overlay", kind)
	return true
}

// openPreviewed 预览通过之后的打开步骤
func (t *taskbar) openPreviewed(kind Overlay, content Surface, p Placement) bool {
	if t.disposed.Load() {
		return false
	}

	// 同类覆盖层上的旧内容不经预览直接关闭，保证 Closed 先于新的 Opened
	t.mu.Lock()
	replacing := t.overlays[kind].isOpenLocked()
	t.mu.Unlock()
	if replacing {
		t.close(kind, false)
	}

	// 弹窗与自定义气泡独占：先强制关闭其它非提示覆盖层
	if kind == OverlayPopup || kind == OverlayBalloon {
		t.closeOthers(kind)
	}

	t.mu.Lock()
	if t.disposed.Load() {
		t.mu.Unlock()
		return false
	}
	o := t.overlays[kind]
	o.state = StateOpening
	o.anchor = p.Anchor
	t.mu.Unlock()

	content.Show(p)

	t.mu.Lock()
	o.current = content
	o.state = StateOpen
	t.mu.Unlock()

	if kind == OverlayPopup || kind == OverlayMenu {
		t.focus(content)
	}

	metricOverlayOpens.WithLabelValues(kind.String()).Inc()
	t.logger.Debug("📤 [托盘] 覆盖层已打开", "overlay", kind, "x", p.Anchor.X, "y", p.Anchor.Y)

	t.raise(&Event{Type: EventOpened, Overlay: kind, Content: content})
	t.raise(&Event{Type: EventOpen, Overlay: kind, Content: content})
	return true
}

// close 执行关闭协议，必须在 UI 线程上调用。
// preview 为 false 时跳过可取消的预览（独占关闭）。
// 预览被取消时只释放跟踪引用，内容由取消方负责关闭。
func (t *taskbar) close(kind Overlay, preview bool) bool {
	if kind == OverlayBalloon {
		t.balloonTimer.disarm()
	}

	t.mu.Lock()
	o := t.overlays[kind]
	if !o.isOpenLocked() {
		t.mu.Unlock()
		return false
	}
	content := o.current
	o.state = StateClosing
	t.mu.Unlock()

	handled := false
	if preview {
		handled = t.raise(&Event{Type: EventPreviewClose, Overlay: kind, Content: content}).Handled
	}
	if !handled {
		content.Hide()
		if kind == OverlayBalloon {
			detach(content, t.owner())
		}
	}

	t.mu.Lock()
	o.current = nil
	o.state = StateClosed
	t.mu.Unlock()

	if handled {
		metricOverlayCanceled.WithLabelValues(kind.String(), "close").Inc()
		t.logger.Debug("🚫 [托盘] 关闭被预览监听接管", "overlay", kind)
		return false
	}

	t.logger.Debug("📥 [托盘] 覆盖层已关闭", "overlay", kind)
	t.raise(&Event{Type: EventClosed, Overlay: kind, Content: content})
	return true
}

// closeOthers 强制关闭 kind 以外的弹窗、菜单与自定义气泡
func (t *taskbar) closeOthers(kind Overlay) {
	for _, other := range [...]Overlay{OverlayMenu, OverlayPopup, OverlayBalloon} {
		if other == kind {
			continue
		}
		t.mu.Lock()
		open := t.overlays[other].isOpenLocked()
		t.mu.Unlock()
		if open {
			t.close(other, false)
		}
	}
}

// focus 把前台焦点交给覆盖层自己的窗口，没有则交给消息窗口，
// 否则在外部点击时菜单/弹窗无法自行关闭
func (t *taskbar) focus(s Surface) {
	if h := s.Handle(); h != 0 && t.desktop.SetForegroundWindow(h) {
		return
	}
	if !t.desktop.SetForegroundWindow(t.sink.WindowHandle()) {
		t.logger.Debug("⚠️ [托盘] 设置前台窗口失败")
	}
}

// showTrayPopup 在 at 处打开弹窗
func (t *taskbar) showTrayPopup(at Point) {
	t.mu.Lock()
	anim := t.popupAnimation
	t.mu.Unlock()
	t.showConfigured(OverlayPopup, Placement{Anchor: at, Animation: anim})
}

// showContextMenu 在 at 处打开上下文菜单
func (t *taskbar) showContextMenu(at Point) {
	t.showConfigured(OverlayMenu, Placement{Anchor: at})
}

// showConfigured 打开弹窗或菜单的已配置内容。
// 没有内容时预览照常发出，预览之后重新读取内容，仍为空则放弃。
func (t *taskbar) showConfigured(kind Overlay, p Placement) {
	if t.disposed.Load() {
		return
	}
	t.mu.Lock()
	content := t.overlays[kind].content
	t.mu.Unlock()
	if content != nil && t.isShowing(kind, content) {
		return
	}

	if t.previewOpen(kind, content) {
		return
	}

	t.mu.Lock()
	content = t.overlays[kind].content
	t.mu.Unlock()
	if content == nil {
		return
	}
	t.openPreviewed(kind, content, p)
}

// ShowTrayPopup 在光标位置打开弹窗
func (i *Icon) ShowTrayPopup() {
	t := i.t
	if t.disposed.Load() {
		return
	}
	t.onUI(func() { t.showTrayPopup(t.desktop.CursorPosition()) })
}

// ShowContextMenu 在光标位置打开上下文菜单
func (i *Icon) ShowContextMenu() {
	t := i.t
	if t.disposed.Load() {
		return
	}
	t.onUI(func() { t.showContextMenu(t.desktop.CursorPosition()) })
}

// ClosePopup 通过可取消的关闭协议关闭弹窗
func (i *Icon) ClosePopup() {
	t := i.t
	if t.disposed.Load() {
		return
	}
	t.onUI(func() { t.close(OverlayPopup, true) })
}

// SurfaceClosed 内容自行关闭（如菜单在外部点击后收起）时由内容拥有方通知，
// 释放跟踪引用并发出 Closed 通知
func (i *Icon) SurfaceClosed(s Surface) {
	t := i.t
	if t.disposed.Load() || s == nil {
		return
	}
	t.onUI(func() {
		t.mu.Lock()
		var kind Overlay = -1
		for _, o := range t.overlays {
			if sameSurface(o.current, s) {
				kind = o.kind
				o.current = nil
				o.state = StateClosed
				break
			}
		}
		t.mu.Unlock()
		if kind < 0 {
			return
		}
		if kind == OverlayBalloon {
			t.balloonTimer.disarm()
			detach(s, t.owner())
		}
		t.raise(&Event{Type: EventClosed, Overlay: kind, Content: s})
	})
}

// IsPopupOpen 弹窗、菜单或自定义气泡是否处于打开状态
func (i *Icon) IsPopupOpen() bool {
	if i.t.disposed.Load() {
		return false
	}
	return i.t.isPopupOpen()
}
