package shell

import (
	"sync"
	"time"

	"traykit/internal/tray"
)

// Call 内存 shell 记录的一次调用
type Call struct {
	Op         string
	Descriptor tray.IconDescriptor
}

// MemoryShell 在内存中模拟图标注册表，记录所有调用
type MemoryShell struct {
	mu       sync.Mutex
	calls    []Call
	current  *tray.IconDescriptor
	versions map[tray.Version]bool
}

// NewMemoryShell 创建内存 shell；accept 为空时接受所有协议版本
func NewMemoryShell(accept ...tray.Version) *MemoryShell {
	s := &MemoryShell{}
	if len(accept) > 0 {
		s.versions = make(map[tray.Version]bool, len(accept))
		for _, v := range accept {
			s.versions[v] = true
		}
	}
	return s
}

func (s *MemoryShell) Add(d tray.IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "add", Descriptor: d})
	if s.current != nil {
		return false
	}
	cp := d
	s.current = &cp
	return true
}

func (s *MemoryShell) Modify(d tray.IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "modify", Descriptor: d})
	if s.current == nil {
		return false
	}
	apply(s.current, d)
	return true
}

func (s *MemoryShell) SetVersion(d tray.IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "set_version", Descriptor: d})
	if s.current == nil {
		return false
	}
	if s.versions != nil && !s.versions[d.Version] {
		return false
	}
	s.current.Version = d.Version
	return true
}

func (s *MemoryShell) Delete(d tray.IconDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "delete", Descriptor: d})
	s.current = nil
}

// Restart 模拟 shell 重启：已注册的图标全部丢失
func (s *MemoryShell) Restart() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current 当前注册的图标
func (s *MemoryShell) Current() (tray.IconDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return tray.IconDescriptor{}, false
	}
	return *s.current, true
}

// Calls 返回调用记录的副本
func (s *MemoryShell) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// apply 按字段掩码把 d 合并到 cur
func apply(cur *tray.IconDescriptor, d tray.IconDescriptor) {
	if d.Fields.Has(tray.FieldIcon) {
		cur.Icon = d.Icon
	}
	if d.Fields.Has(tray.FieldTip) {
		cur.ToolTipText = d.ToolTipText
	}
	if d.Fields.Has(tray.FieldInfo) {
		cur.BalloonTitle = d.BalloonTitle
		cur.BalloonText = d.BalloonText
		cur.BalloonFlags = d.BalloonFlags
		cur.BalloonIcon = d.BalloonIcon
	}
}

// MemorySink 手动投递通知的消息窗口
type MemorySink struct {
	mu      sync.Mutex
	handle  tray.Handle
	version tray.Version
	handler tray.SinkHandler
	closed  bool
}

// NewMemorySink 创建消息窗口
func NewMemorySink(handle tray.Handle) *MemorySink {
	return &MemorySink{handle: handle}
}

func (s *MemorySink) WindowHandle() tray.Handle { return s.handle }

func (s *MemorySink) Version() tray.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *MemorySink) SetVersion(v tray.Version) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *MemorySink) Listen(h tray.SinkHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.handler = nil
	s.mu.Unlock()
	return nil
}

// Closed 是否已关闭
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemorySink) listener() tray.SinkHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// Mouse 投递鼠标事件；关闭后丢弃
func (s *MemorySink) Mouse(me tray.MouseEvent) {
	if h := s.listener(); h != nil {
		h.MouseEvent(me)
	}
}

// ShellRestarted 投递 shell 重启通知
func (s *MemorySink) ShellRestarted() {
	if h := s.listener(); h != nil {
		h.ShellRestarted()
	}
}

// ToolTip 投递提示显示/隐藏请求
func (s *MemorySink) ToolTip(visible bool) {
	if h := s.listener(); h != nil {
		h.ToolTipVisibilityRequested(visible)
	}
}

// Balloon 投递标准气泡显示/关闭通知
func (s *MemorySink) Balloon(visible bool) {
	if h := s.listener(); h != nil {
		h.BalloonVisibilityChanged(visible)
	}
}

// StaticDesktop 固定坐标的桌面服务
type StaticDesktop struct {
	Cursor   tray.Point
	Tray     tray.Point
	DblClick time.Duration

	mu      sync.Mutex
	focused []tray.Handle
}

func (d *StaticDesktop) CursorPosition() tray.Point { return d.Cursor }

func (d *StaticDesktop) TrayLocation() tray.Point { return d.Tray }

func (d *StaticDesktop) DoubleClickTime() time.Duration {
	if d.DblClick <= 0 {
		return 500 * time.Millisecond
	}
	return d.DblClick
}

func (d *StaticDesktop) SetForegroundWindow(h tray.Handle) bool {
	d.mu.Lock()
	d.focused = append(d.focused, h)
	d.mu.Unlock()
	return true
}

// Focused 返回所有设置过前台的窗口
func (d *StaticDesktop) Focused() []tray.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tray.Handle(nil), d.focused...)
}

// NewMemory 组装一个完全在内存中运行的后端
func NewMemory() (*Backend, *MemoryShell, *MemorySink) {
	sh := NewMemoryShell()
	sink := NewMemorySink(0x1)
	var mu sync.Mutex
	next := tray.Handle(0x100)
	return &Backend{
		Name:    "memory",
		Shell:   sh,
		Sink:    sink,
		Desktop: &StaticDesktop{},
		Menu:    &MemorySurface{Name: "menu"},
		loadIcon: func(_ []byte) (tray.Handle, error) {
			mu.Lock()
			defer mu.Unlock()
			next++
			return next, nil
		},
	}, sh, sink
}

// MemorySurface 只记录状态的覆盖层内容
type MemorySurface struct {
	Name string

	mu         sync.Mutex
	open       bool
	shows      int
	hides      int
	placements []tray.Placement
}

func (s *MemorySurface) Show(p tray.Placement) {
	s.mu.Lock()
	s.open = true
	s.shows++
	s.placements = append(s.placements, p)
	s.mu.Unlock()
}

func (s *MemorySurface) Hide() {
	s.mu.Lock()
	if s.open {
		s.hides++
	}
	s.open = false
	s.mu.Unlock()
}

func (s *MemorySurface) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *MemorySurface) Handle() tray.Handle { return 0 }

// Counts 返回显示与隐藏次数
func (s *MemorySurface) Counts() (shows, hides int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows, s.hides
}

// LastPlacement 最近一次显示的定位
func (s *MemorySurface) LastPlacement() (tray.Placement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.placements) == 0 {
		return tray.Placement{}, false
	}
	return s.placements[len(s.placements)-1], true
}
