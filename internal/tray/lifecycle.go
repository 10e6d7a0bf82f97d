package tray

import "fmt"

// 版本协商按能力从高到低依次尝试
var versionCandidates = [...]Version{VersionVista, VersionWin2000, VersionWin95}

// createTaskbarIcon 向 shell 注册图标并协商协议版本；已注册时什么也不做
func (t *taskbar) createTaskbarIcon() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createLocked()
}

func (t *taskbar) createLocked() error {
	if t.disposed.Load() || t.created.Load() {
		return nil
	}

	d := t.data
	d.Fields = FieldMessage | FieldIcon | FieldTip
	if !t.shell.Add(d) {
		t.logger.Error("❌ [托盘] shell 拒绝注册图标", "window", d.Window, "id", d.ID)
		return fmt.Errorf("%w: window=%#x id=%d", ErrIconRegistration, uintptr(d.Window), d.ID)
	}

	t.setVersionLocked()
	t.created.Store(true)
	if t.data.Version == VersionVista {
		t.writeToolTipLocked()
	}
	metricIconCreates.Inc()
	t.logger.Info("🖼️ [托盘] 图标已注册", "version", t.data.Version)
	return nil
}

// setVersionLocked 依次尝试 Vista、Win2000、Win95，接受第一个成功的版本。
// 全部失败时只记录断言日志，图标保持最低能力模式继续可用。
func (t *taskbar) setVersionLocked() {
	for _, v := range versionCandidates {
		t.data.Version = v
		d := t.data
		d.Fields = 0
		if t.shell.SetVersion(d) {
			t.sink.SetVersion(v)
			return
		}
		t.logger.Debug("🔁 [托盘] 协议版本被拒绝，尝试更低版本", "version", v)
	}

	metricVersionFailures.Inc()
	t.data.Version = VersionWin95
	t.sink.SetVersion(VersionWin95)
	t.logger.Error("❌ [托盘] 断言失败：没有可用的通知协议版本")
}

// removeTaskbarIcon 从 shell 删除图标；未注册时什么也不做
func (t *taskbar) removeTaskbarIcon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked()
}

func (t *taskbar) removeLocked() {
	if !t.created.Load() {
		return
	}
	d := t.data
	d.Fields = FieldMessage
	t.shell.Delete(d)
	t.created.Store(false)
	t.logger.Info("🗑️ [托盘] 图标已移除")
}

// onShellRestarted shell 重建后旧图标已经不存在，强制重新注册
func (t *taskbar) onShellRestarted() {
	if t.disposed.Load() {
		return
	}
	metricShellRestarts.Inc()
	t.logger.Warn("🔄 [托盘] 检测到 shell 重启，重新注册图标")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.created.Store(false)
	if err := t.createLocked(); err != nil {
		t.logger.Error("❌ [托盘] shell 重启后重新注册图标失败", "error", err)
	}
}

// modifyLocked 发送描述符变更；失败只记录，不上报
func (t *taskbar) modifyLocked(fields IconFields) bool {
	if t.disposed.Load() || !t.created.Load() {
		return false
	}
	d := t.data
	d.Fields = fields
	if !t.shell.Modify(d) {
		t.logger.Debug("⚠️ [托盘] 更新图标描述符失败", "fields", fmt.Sprintf("%#x", uint32(fields)))
		return false
	}
	return true
}
