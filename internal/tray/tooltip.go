package tray

// 没有提示文本但有自定义提示时发送的占位文本，
// 否则 Vista 协议下 shell 不会发送提示显示/隐藏通知
const dummyToolTipText = "ToolTip"

// SetToolTipText 更新悬浮提示文本
func (i *Icon) SetToolTipText(text string) {
	t := i.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return
	}
	t.data.ToolTipText = text
	t.writeToolTipLocked()
}

// ToolTipText 当前提示文本
func (i *Icon) ToolTipText() string {
	i.t.mu.Lock()
	defer i.t.mu.Unlock()
	return i.t.data.ToolTipText
}

// SetToolTip 设置自定义提示内容；nil 表示使用 shell 绘制的文本提示
func (i *Icon) SetToolTip(s Surface) error {
	t := i.t
	if err := t.setContent(OverlayToolTip, s); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeToolTipLocked()
	return nil
}

// writeToolTipLocked 根据协议版本与是否有自定义提示写入提示设置
func (t *taskbar) writeToolTipLocked() {
	fields := FieldTip
	d := t.data
	if t.sink.Version() == VersionVista {
		custom := t.overlays[OverlayToolTip].content != nil
		switch {
		case custom && d.ToolTipText == "":
			d.ToolTipText = dummyToolTipText
		case !custom:
			fields |= FieldShowTip
		}
	}

	if t.disposed.Load() || !t.created.Load() {
		return
	}
	d.Fields = fields
	if !t.shell.Modify(d) {
		t.logger.Debug("⚠️ [托盘] 更新提示文本失败")
	}
}

// onToolTipChange shell 请求显示/隐藏提示。只处理自定义提示，
// 弹窗、菜单或气泡打开期间不显示提示
func (t *taskbar) onToolTipChange(visible bool) {
	if t.disposed.Load() {
		return
	}
	t.mu.Lock()
	content := t.overlays[OverlayToolTip].content
	t.mu.Unlock()
	if content == nil {
		return
	}

	if !visible {
		t.close(OverlayToolTip, true)
		return
	}
	if t.isPopupOpen() {
		t.logger.Debug("🙈 [托盘] 已有覆盖层打开，忽略提示显示请求")
		return
	}
	t.open(OverlayToolTip, content, Placement{Anchor: t.desktop.CursorPosition()})
}
