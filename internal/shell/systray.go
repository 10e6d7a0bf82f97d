//go:build !windows && !stub

package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/getlantern/systray"
	"github.com/puzpuzpuz/xsync/v3"

	"traykit/internal/tray"
)

// systray 只支持旧版协议：没有自定义提示，也不上报图标上的鼠标事件，
// 菜单由系统托盘自己弹出。
type systrayController struct {
	logger *slog.Logger
	opts   Options
	ready  chan struct{}
	quitCh chan struct{}
	once   sync.Once

	icons    *xsync.MapOf[tray.Handle, []byte]
	nextIcon atomic.Uintptr

	mu    sync.Mutex
	added bool

	sink *systraySink
}

func (c *systrayController) Stop() {
	c.once.Do(func() {
		systray.Quit()
		close(c.quitCh)
	})
}

func open(ctx context.Context, opts Options) (*Backend, error) {
	c := &systrayController{
		logger: opts.Logger,
		opts:   opts,
		ready:  make(chan struct{}),
		quitCh: make(chan struct{}),
		icons:  xsync.NewMapOf[tray.Handle, []byte](),
		sink:   &systraySink{notify: beeep.Notify, logger: opts.Logger},
	}
	c.nextIcon.Store(0x100)

	// systray.Run 会阻塞，在单独的 goroutine 中运行
	go systray.Run(c.onReady, c.onExit)

	select {
	case <-c.ready:
	case <-ctx.Done():
		c.Stop()
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		c.Stop()
		return nil, errors.New("systray did not become ready")
	}
	opts.Logger.Info("✅ [托盘] systray 后端已就绪")

	return &Backend{
		Name:     "systray",
		Shell:    &systrayShell{c: c},
		Sink:     c.sink,
		Desktop:  systrayDesktop{},
		loadIcon: c.loadIcon,
		stop:     c.Stop,
	}, nil
}

func (c *systrayController) onReady() {
	title := c.opts.Title
	if title == "" {
		title = "traykit"
	}
	systray.SetTitle(title)
	systray.SetTooltip(title)

	type entry struct {
		item   *systray.MenuItem
		action func()
	}
	var entries []entry
	for _, mi := range c.opts.Menu {
		entries = append(entries, entry{systray.AddMenuItem(mi.Title, mi.Tooltip), mi.Action})
	}
	if len(entries) > 0 {
		systray.AddSeparator()
	}
	mQuit := systray.AddMenuItem("退出", "退出应用")
	entries = append(entries, entry{mQuit, c.opts.OnQuit})

	// 每个菜单项一个监听 goroutine
	for _, e := range entries {
		go func(e entry) {
			for {
				select {
				case <-c.quitCh:
					return
				case <-e.item.ClickedCh:
					if e.action != nil {
						e.action()
					}
				}
			}
		}(e)
	}
	close(c.ready)
}

func (c *systrayController) onExit() {
	c.logger.Debug("🛑 [托盘] systray 已退出")
}

func (c *systrayController) loadIcon(data []byte) (tray.Handle, error) {
	h := tray.Handle(c.nextIcon.Add(1))
	c.icons.Store(h, append([]byte(nil), data...))
	return h, nil
}

// systrayShell 把描述符映射到 systray 调用
type systrayShell struct {
	c *systrayController
}

func (s *systrayShell) Add(d tray.IconDescriptor) bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.added {
		return false
	}
	s.c.added = true
	s.applyLocked(d)
	return true
}

func (s *systrayShell) Modify(d tray.IconDescriptor) bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if !s.c.added {
		return false
	}
	s.applyLocked(d)
	return true
}

// SetVersion 只接受旧版协议
func (s *systrayShell) SetVersion(d tray.IconDescriptor) bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.added && d.Version == tray.VersionWin95
}

func (s *systrayShell) Delete(_ tray.IconDescriptor) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	// systray 不支持隐藏图标，只清空提示
	s.c.added = false
	systray.SetTooltip("")
}

func (s *systrayShell) applyLocked(d tray.IconDescriptor) {
	if d.Fields.Has(tray.FieldIcon) {
		if data, ok := s.c.icons.Load(d.Icon); ok {
			systray.SetIcon(data)
		}
	}
	if d.Fields.Has(tray.FieldTip) {
		systray.SetTooltip(d.ToolTipText)
	}
	if d.Fields.Has(tray.FieldInfo) {
		s.c.sink.balloon(d.BalloonTitle, d.BalloonText)
	}
}

// systraySink 没有真实窗口，只转发标准气泡的显示状态
type systraySink struct {
	logger  *slog.Logger
	notify  func(title, message, appIcon string) error
	version atomic.Uint32
	handler atomic.Pointer[tray.SinkHandler]
}

func (s *systraySink) WindowHandle() tray.Handle { return 0 }

func (s *systraySink) Version() tray.Version { return tray.Version(s.version.Load()) }

func (s *systraySink) SetVersion(v tray.Version) { s.version.Store(uint32(v)) }

func (s *systraySink) Listen(h tray.SinkHandler) {
	if h == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&h)
}

func (s *systraySink) Close() error {
	s.handler.Store(nil)
	return nil
}

// balloon 用系统通知代替标准气泡；正文为空表示隐藏
func (s *systraySink) balloon(title, text string) {
	visible := text != ""
	go func() {
		if visible {
			if err := s.notify(title, text, ""); err != nil {
				s.logger.Warn("⚠️ [托盘] 发送系统通知失败", "error", fmt.Errorf("beeep: %w", err))
				return
			}
		}
		if h := s.handler.Load(); h != nil {
			(*h).BalloonVisibilityChanged(visible)
		}
	}()
}

type systrayDesktop struct{}

func (systrayDesktop) CursorPosition() tray.Point { return tray.Point{} }

func (systrayDesktop) TrayLocation() tray.Point { return tray.Point{} }

func (systrayDesktop) DoubleClickTime() time.Duration { return 500 * time.Millisecond }

func (systrayDesktop) SetForegroundWindow(tray.Handle) bool { return false }
