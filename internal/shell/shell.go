// Package shell 提供通知区域后端：Windows Shell_NotifyIcon、跨平台 systray
// 以及供 stub 构建和测试使用的内存实现。
package shell

import (
	"context"
	"log/slog"

	"traykit/internal/tray"
)

// Options 后端参数
type Options struct {
	Logger *slog.Logger

	// Title 托盘菜单中显示的应用名称
	Title string

	// Menu 原生菜单项，末尾固定追加“退出”
	Menu []MenuItem

	// OnQuit 用户从托盘菜单选择退出时触发
	OnQuit func()

	// OnMenuClosed 原生菜单自行关闭（选中菜单项或点击别处）后触发
	OnMenuClosed func(menu tray.Surface)
}

// MenuItem 原生菜单项
type MenuItem struct {
	Title   string
	Tooltip string
	Action  func()
}

// Backend 一组实现托盘交互接口的宿主服务。
type Backend struct {
	Name    string
	Shell   tray.Shell
	Sink    tray.MessageSink
	Desktop tray.Desktop

	// Menu 原生上下文菜单；为 nil 时菜单由系统托盘自己弹出
	Menu tray.Surface

	loadIcon func(data []byte) (tray.Handle, error)
	stop     func()
}

// LoadIcon 把图标数据（Windows 为 .ico）注册为宿主句柄
func (b *Backend) LoadIcon(data []byte) (tray.Handle, error) {
	if b.loadIcon == nil || len(data) == 0 {
		return 0, nil
	}
	return b.loadIcon(data)
}

// Stop 停止后端（消息循环、systray 等）
func (b *Backend) Stop() {
	if b.stop != nil {
		b.stop()
	}
}

// Open 按平台与构建标签打开后端
func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return open(ctx, opts)
}
