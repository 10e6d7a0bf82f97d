// app_events.go - 托盘通知处理
// 记录托盘控制器发出的通知，并响应点击命令

package main

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"traykit/internal/tray"
)

// 订阅的托盘通知
var trayEventTypes = []tray.EventType{
	tray.EventOpened,
	tray.EventClosed,
	tray.EventMouse,
	tray.EventBalloonTipShown,
	tray.EventBalloonTipClosed,
	tray.EventBalloonTipClicked,
}

// registerTrayListeners 订阅托盘通知
func (a *App) registerTrayListeners(icon *tray.Icon) {
	for _, typ := range trayEventTypes {
		icon.On(typ, a.handleTrayEvent)
	}
}

// handleTrayEvent 计数并记录一次托盘通知
func (a *App) handleTrayEvent(e *tray.Event) {
	// 鼠标移动过于频繁，不计数
	if e.Type == tray.EventMouse && e.Mouse == tray.MouseMove {
		return
	}
	a.countEvent(eventKey(e))

	switch e.Type {
	case tray.EventOpened:
		a.logger.Debug("📂 [托盘] 覆盖层已打开", "overlay", e.Overlay.String())
	case tray.EventClosed:
		a.logger.Debug("📁 [托盘] 覆盖层已关闭", "overlay", e.Overlay.String())
	case tray.EventMouse:
		a.logger.Debug("🖱️ [托盘] 鼠标事件", "event", e.Mouse.String())
	case tray.EventBalloonTipShown:
		a.logger.Debug("💬 [托盘] 标准气泡已显示")
	case tray.EventBalloonTipClosed:
		a.logger.Debug("💬 [托盘] 标准气泡已关闭")
	case tray.EventBalloonTipClicked:
		// 点击气泡打开状态弹窗
		a.logger.Info("💬 [托盘] 标准气泡被点击")
		a.showStatusPopup()
	}
}

// eventKey 通知计数键
func eventKey(e *tray.Event) string {
	if e.Type == tray.EventMouse {
		return fmt.Sprintf("%s:%s", e.Type, e.Mouse)
	}
	return fmt.Sprintf("%s:%s", e.Type, e.Overlay)
}

func (a *App) countEvent(key string) {
	counter, _ := a.eventCounts.LoadOrCompute(key, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	counter.Inc()
}

// EventCounts 返回各类托盘通知的累计次数
func (a *App) EventCounts() map[string]int64 {
	counts := make(map[string]int64, a.eventCounts.Size())
	a.eventCounts.Range(func(key string, counter *xsync.Counter) bool {
		counts[key] = counter.Value()
		return true
	})
	return counts
}

// onLeftClick 单击命令：双击间隔过后才执行
func (a *App) onLeftClick(_, _ any) {
	a.countEvent("command:left_click")
	a.logger.Debug("👆 [托盘] 单击命令")
}

// onDoubleClick 双击命令：以标准气泡显示运行状态
func (a *App) onDoubleClick(_, _ any) {
	a.countEvent("command:double_click")
	a.logger.Info("👆 [托盘] 双击命令")
	a.notify("traykit", a.statusSummary(), tray.BalloonInfo)
}

// showStatusPopup 打开状态弹窗（菜单项与气泡点击共用）
func (a *App) showStatusPopup() {
	icon := a.trayIcon()
	if icon == nil {
		return
	}
	// 通知发出后无法撤回，已打开时先关闭以便重新发送最新状态
	if icon.State().Popup == tray.StateOpen.String() {
		icon.ClosePopup()
	}
	icon.ShowTrayPopup()
}

// hideBalloons 关闭标准气泡与自定义气泡
func (a *App) hideBalloons() {
	if icon := a.trayIcon(); icon != nil {
		icon.HideBalloonTip()
		icon.CloseBalloon()
	}
}
