package shell

import (
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"

	"traykit/internal/tray"
)

// NotificationSurface 以系统通知的形式呈现的覆盖层内容。
// 通知一旦发出无法撤回，Hide 只更新状态。
type NotificationSurface struct {
	Title string
	// Body 在每次显示时生成正文
	Body func() string

	logger *slog.Logger
	notify func(title, message, appIcon string) error

	mu     sync.Mutex
	open   bool
	shown  int
	anchor tray.Point
}

// NewNotificationSurface 创建通知覆盖层
func NewNotificationSurface(logger *slog.Logger, title string, body func() string) *NotificationSurface {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationSurface{
		Title:  title,
		Body:   body,
		logger: logger,
		notify: beeep.Notify,
	}
}

func (n *NotificationSurface) Show(p tray.Placement) {
	n.mu.Lock()
	n.open = true
	n.shown++
	n.anchor = p.Anchor
	n.mu.Unlock()

	body := ""
	if n.Body != nil {
		body = n.Body()
	}
	// 部分平台的通知调用会阻塞（dbus、powershell）
	go func() {
		if err := n.notify(n.Title, body, ""); err != nil {
			n.logger.Warn("⚠️ [托盘] 发送系统通知失败", "title", n.Title, "error", err)
		}
	}()
}

func (n *NotificationSurface) Hide() {
	n.mu.Lock()
	n.open = false
	n.mu.Unlock()
}

func (n *NotificationSurface) IsOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.open
}

func (n *NotificationSurface) Handle() tray.Handle { return 0 }

// Shown 累计显示次数
func (n *NotificationSurface) Shown() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown
}
