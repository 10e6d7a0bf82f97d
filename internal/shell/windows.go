//go:build windows && !stub

package shell

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/windows"

	"traykit/internal/tray"
)

var (
	k32 = windows.NewLazySystemDLL("Kernel32.dll")
	s32 = windows.NewLazySystemDLL("Shell32.dll")
	u32 = windows.NewLazySystemDLL("User32.dll")

	pGetModuleHandle       = k32.NewProc("GetModuleHandleW")
	pShellNotifyIcon       = s32.NewProc("Shell_NotifyIconW")
	pCreateWindowEx        = u32.NewProc("CreateWindowExW")
	pDefWindowProc         = u32.NewProc("DefWindowProcW")
	pDestroyIcon           = u32.NewProc("DestroyIcon")
	pDestroyWindow         = u32.NewProc("DestroyWindow")
	pDispatchMessage       = u32.NewProc("DispatchMessageW")
	pFindWindow            = u32.NewProc("FindWindowW")
	pGetCursorPos          = u32.NewProc("GetCursorPos")
	pGetDoubleClickTime    = u32.NewProc("GetDoubleClickTime")
	pGetMessage            = u32.NewProc("GetMessageW")
	pGetWindowRect         = u32.NewProc("GetWindowRect")
	pLoadImage             = u32.NewProc("LoadImageW")
	pPostMessage           = u32.NewProc("PostMessageW")
	pPostQuitMessage       = u32.NewProc("PostQuitMessage")
	pRegisterClass         = u32.NewProc("RegisterClassExW")
	pRegisterWindowMessage = u32.NewProc("RegisterWindowMessageW")
	pSetForegroundWindow   = u32.NewProc("SetForegroundWindow")
	pTranslateMessage      = u32.NewProc("TranslateMessage")
	pUnregisterClass       = u32.NewProc("UnregisterClassW")
	pCreatePopupMenu       = u32.NewProc("CreatePopupMenu")
	pAppendMenu            = u32.NewProc("AppendMenuW")
	pTrackPopupMenu        = u32.NewProc("TrackPopupMenu")
	pEndMenu               = u32.NewProc("EndMenu")
	pDestroyMenu           = u32.NewProc("DestroyMenu")
)

const (
	nimAdd        = 0x0
	nimModify     = 0x1
	nimDelete     = 0x2
	nimSetVersion = 0x4

	wmDestroy = 0x0002
	wmClose   = 0x0010
	wmNull    = 0x0000
	// 托盘回调消息
	wmTrayCallback = wmUser + 1
	wmShowMenu     = wmUser + 10
	wmHideMenu     = wmUser + 11

	mfString       = 0x00000000
	mfSeparator    = 0x00000800
	tpmBottomAlign = 0x0020
	tpmNoNotify    = 0x0080
	tpmReturnCmd   = 0x0100

	imageIcon      = 1
	lrLoadFromFile = 0x00000010
	lrDefaultSize  = 0x00000040

	cwUseDefault = 0x80000000

	className = "TrayKitMessageWindow"
)

type notifyIconData struct {
	Size                       uint32
	Wnd                        windows.Handle
	ID, Flags, CallbackMessage uint32
	Icon                       windows.Handle
	Tip                        [128]uint16
	State, StateMask           uint32
	Info                       [256]uint16
	// Timeout 与 Version 共用
	Timeout     uint32
	InfoTitle   [64]uint16
	InfoFlags   uint32
	GuidItem    windows.GUID
	BalloonIcon windows.Handle
}

type wndClassEx struct {
	Size, Style                        uint32
	WndProc                            uintptr
	ClsExtra, WndExtra                 int32
	Instance, Icon, Cursor, Background windows.Handle
	MenuName, ClassName                *uint16
	IconSm                             windows.Handle
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd     windows.Handle
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       point
	LPrivate uint32
}

// winShell 通过 Shell_NotifyIconW 注册托盘图标
type winShell struct {
	logger *slog.Logger
}

func (s *winShell) call(op uintptr, d tray.IconDescriptor) bool {
	nid := toNotifyIconData(d)
	res, _, err := pShellNotifyIcon.Call(op, uintptr(unsafe.Pointer(nid)))
	if res == 0 {
		s.logger.Debug("🔧 [托盘] Shell_NotifyIcon 调用失败", "op", op, "error", err)
		return false
	}
	return true
}

func (s *winShell) Add(d tray.IconDescriptor) bool { return s.call(nimAdd, d) }
func (s *winShell) Modify(d tray.IconDescriptor) bool { return s.call(nimModify, d) }
func (s *winShell) SetVersion(d tray.IconDescriptor) bool { return s.call(nimSetVersion, d) }
func (s *winShell) Delete(d tray.IconDescriptor) { s.call(nimDelete, d) }

func toNotifyIconData(d tray.IconDescriptor) *notifyIconData {
	nid := &notifyIconData{
		Wnd:             windows.Handle(d.Window),
		ID:              d.ID,
		Flags:           uint32(d.Fields),
		CallbackMessage: wmTrayCallback,
		Icon:            windows.Handle(d.Icon),
		InfoFlags:       uint32(d.BalloonFlags),
		BalloonIcon:     windows.Handle(d.BalloonIcon),
		Timeout:         uint32(d.Version),
	}
	nid.Size = uint32(unsafe.Sizeof(*nid))
	copyUTF16(nid.Tip[:], d.ToolTipText)
	copyUTF16(nid.Info[:], d.BalloonText)
	copyUTF16(nid.InfoTitle[:], d.BalloonTitle)
	if d.Fields.Has(tray.FieldGUID) {
		g := d.GUID
		nid.GuidItem = windows.GUID{
			Data1: binary.BigEndian.Uint32(g[0:4]),
			Data2: binary.BigEndian.Uint16(g[4:6]),
			Data3: binary.BigEndian.Uint16(g[6:8]),
		}
		copy(nid.GuidItem.Data4[:], g[8:16])
	}
	return nid
}

// winSink 隐藏窗口及其消息循环
type winSink struct {
	logger  *slog.Logger
	window  windows.Handle
	version atomic.Uint32
	handler atomic.Pointer[tray.SinkHandler]

	wmTaskbarCreated uint32
	decoder          notifyDecoder
	menu             *winMenu

	done      chan struct{}
	closeOnce sync.Once
}

// 窗口过程是进程级回调，只能路由到一个活动的消息窗口
var (
	activeSink  atomic.Pointer[winSink]
	wndProcOnce sync.Once
	wndProcPtr  uintptr
)

func (s *winSink) WindowHandle() tray.Handle { return tray.Handle(s.window) }

func (s *winSink) Version() tray.Version { return tray.Version(s.version.Load()) }

func (s *winSink) SetVersion(v tray.Version) { s.version.Store(uint32(v)) }

func (s *winSink) Listen(h tray.SinkHandler) {
	if h == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&h)
}

func (s *winSink) Close() error {
	s.closeOnce.Do(func() {
		s.handler.Store(nil)
		pPostMessage.Call(uintptr(s.window), wmClose, 0, 0)
	})
	select {
	case <-s.done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("message window did not stop in time")
	}
}

func (s *winSink) dispatch(fn func(h tray.SinkHandler)) {
	if h := s.handler.Load(); h != nil {
		fn(*h)
	}
}

func wndProc(hWnd windows.Handle, message uint32, wParam, lParam uintptr) uintptr {
	s := activeSink.Load()
	if s == nil {
		r, _, _ := pDefWindowProc.Call(uintptr(hWnd), uintptr(message), wParam, lParam)
		return r
	}
	switch message {
	case wmTrayCallback:
		if n, ok := s.decoder.decode(lParam); ok {
			s.dispatch(n.deliver)
		}
		return 0
	case wmShowMenu:
		if s.menu != nil {
			s.menu.track(hWnd, int32(wParam), int32(lParam))
		}
		return 0
	case wmHideMenu:
		pEndMenu.Call()
		return 0
	case wmClose:
		pDestroyWindow.Call(uintptr(hWnd))
		return 0
	case wmDestroy:
		pPostQuitMessage.Call(0)
		return 0
	}
	if s.wmTaskbarCreated != 0 && message == s.wmTaskbarCreated {
		s.logger.Info("🔄 [托盘] 收到 TaskbarCreated 消息")
		s.dispatch(func(h tray.SinkHandler) { h.ShellRestarted() })
		return 0
	}
	r, _, _ := pDefWindowProc.Call(uintptr(hWnd), uintptr(message), wParam, lParam)
	return r
}

// run 在锁定的系统线程上创建窗口并运行消息循环
func (s *winSink) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	instance, _, err := pGetModuleHandle.Call(0)
	if instance == 0 {
		ready <- fmt.Errorf("GetModuleHandle: %w", err)
		return
	}

	taskbarCreated, _ := windows.UTF16PtrFromString("TaskbarCreated")
	res, _, _ := pRegisterWindowMessage.Call(uintptr(unsafe.Pointer(taskbarCreated)))
	s.wmTaskbarCreated = uint32(res)

	wndProcOnce.Do(func() { wndProcPtr = windows.NewCallback(wndProc) })
	classNamePtr, _ := windows.UTF16PtrFromString(className)
	wcex := &wndClassEx{
		WndProc:   wndProcPtr,
		Instance:  windows.Handle(instance),
		ClassName: classNamePtr,
	}
	wcex.Size = uint32(unsafe.Sizeof(*wcex))
	if res, _, err := pRegisterClass.Call(uintptr(unsafe.Pointer(wcex))); res == 0 {
		ready <- fmt.Errorf("RegisterClassEx: %w", err)
		return
	}
	defer pUnregisterClass.Call(uintptr(unsafe.Pointer(classNamePtr)), instance)

	activeSink.Store(s)
	defer activeSink.CompareAndSwap(s, nil)

	// 普通的隐藏窗口；消息专用窗口收不到 TaskbarCreated 广播
	windowName, _ := windows.UTF16PtrFromString("")
	hwnd, _, err := pCreateWindowEx.Call(
		0,
		uintptr(unsafe.Pointer(classNamePtr)),
		uintptr(unsafe.Pointer(windowName)),
		0,
		uintptr(cwUseDefault),
		uintptr(cwUseDefault),
		uintptr(cwUseDefault),
		uintptr(cwUseDefault),
		0,
		0,
		instance,
		0,
	)
	if hwnd == 0 {
		ready <- fmt.Errorf("CreateWindowEx: %w", err)
		return
	}
	s.window = windows.Handle(hwnd)
	ready <- nil

	m := &msg{}
	for {
		ret, _, err := pGetMessage.Call(uintptr(unsafe.Pointer(m)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			s.logger.Error("❌ [托盘] 消息循环出错", "error", err)
			return
		case 0:
			s.logger.Debug("🛑 [托盘] 消息循环退出")
			return
		default:
			pTranslateMessage.Call(uintptr(unsafe.Pointer(m)))
			pDispatchMessage.Call(uintptr(unsafe.Pointer(m)))
		}
	}
}

// winMenu 原生弹出菜单。TrackPopupMenu 必须在窗口所属线程上调用，
// Show/Hide 只向消息循环投递请求。
type winMenu struct {
	logger   *slog.Logger
	sink     *winSink
	handle   windows.Handle
	actions  []func()
	open     atomic.Bool
	onClosed func(tray.Surface)
}

func newWinMenu(logger *slog.Logger, sink *winSink, opts Options) (*winMenu, error) {
	h, _, err := pCreatePopupMenu.Call()
	if h == 0 {
		return nil, fmt.Errorf("CreatePopupMenu: %w", err)
	}
	m := &winMenu{logger: logger, sink: sink, handle: windows.Handle(h), onClosed: opts.OnMenuClosed}
	appendItem := func(title string, action func()) {
		m.actions = append(m.actions, action)
		text, _ := windows.UTF16PtrFromString(title)
		pAppendMenu.Call(h, mfString, uintptr(len(m.actions)), uintptr(unsafe.Pointer(text)))
	}
	for _, item := range opts.Menu {
		appendItem(item.Title, item.Action)
	}
	if len(opts.Menu) > 0 {
		pAppendMenu.Call(h, mfSeparator, 0, 0)
	}
	appendItem("退出", opts.OnQuit)
	return m, nil
}

func (m *winMenu) Show(p tray.Placement) {
	m.open.Store(true)
	pPostMessage.Call(uintptr(m.sink.window), wmShowMenu, uintptr(int32(p.Anchor.X)), uintptr(int32(p.Anchor.Y)))
}

func (m *winMenu) Hide() {
	if m.open.Swap(false) {
		pPostMessage.Call(uintptr(m.sink.window), wmHideMenu, 0, 0)
	}
}

func (m *winMenu) IsOpen() bool { return m.open.Load() }

func (m *winMenu) Handle() tray.Handle { return 0 }

// track 在消息循环线程上阻塞显示菜单，返回后执行选中的菜单项
func (m *winMenu) track(hWnd windows.Handle, x, y int32) {
	if !m.open.Load() {
		return
	}
	pSetForegroundWindow.Call(uintptr(hWnd))
	cmd, _, _ := pTrackPopupMenu.Call(uintptr(m.handle), tpmBottomAlign|tpmNoNotify|tpmReturnCmd,
		uintptr(x), uintptr(y), 0, uintptr(hWnd), 0)
	pPostMessage.Call(uintptr(hWnd), wmNull, 0, 0)

	// 由 Hide 关闭时不再回报
	if m.open.Swap(false) && m.onClosed != nil {
		m.onClosed(m)
	}
	if id := int(cmd); id > 0 && id <= len(m.actions) {
		if action := m.actions[id-1]; action != nil {
			m.logger.Debug("🖱️ [托盘] 菜单项被选中", "id", id)
			go action()
		}
	}
}

func (m *winMenu) destroy() {
	pDestroyMenu.Call(uintptr(m.handle))
}

// winDesktop 读取系统光标、任务栏与双击设置
type winDesktop struct{}

func (winDesktop) CursorPosition() tray.Point {
	var p point
	pGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	return tray.Point{X: int(p.X), Y: int(p.Y)}
}

func (d winDesktop) TrayLocation() tray.Point {
	name, _ := windows.UTF16PtrFromString("Shell_TrayWnd")
	hwnd, _, _ := pFindWindow.Call(uintptr(unsafe.Pointer(name)), 0)
	if hwnd == 0 {
		return d.CursorPosition()
	}
	var r rect
	if res, _, _ := pGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); res == 0 {
		return d.CursorPosition()
	}
	return trayCorner(r)
}

func (winDesktop) DoubleClickTime() time.Duration {
	ms, _, _ := pGetDoubleClickTime.Call()
	if ms == 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func (winDesktop) SetForegroundWindow(h tray.Handle) bool {
	res, _, _ := pSetForegroundWindow.Call(uintptr(h))
	return res != 0
}

// iconCache 以内容哈希缓存已加载的图标句柄
type iconCache struct {
	handles *xsync.MapOf[string, windows.Handle]
}

func (c *iconCache) load(data []byte) (tray.Handle, error) {
	sum := md5.Sum(data)
	key := hex.EncodeToString(sum[:])
	var loadErr error
	h, _ := c.handles.Compute(key, func(old windows.Handle, loaded bool) (windows.Handle, bool) {
		if loaded {
			return old, false
		}
		path := filepath.Join(os.TempDir(), "traykit_icon_"+key+".ico")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, data, 0o644); err != nil {
				loadErr = err
				return 0, true
			}
		}
		src, err := windows.UTF16PtrFromString(path)
		if err != nil {
			loadErr = err
			return 0, true
		}
		res, _, err := pLoadImage.Call(0, uintptr(unsafe.Pointer(src)), imageIcon, 0, 0, lrDefaultSize|lrLoadFromFile)
		if res == 0 {
			loadErr = fmt.Errorf("LoadImage: %w", err)
			return 0, true
		}
		return windows.Handle(res), false
	})
	if loadErr != nil {
		return 0, loadErr
	}
	return tray.Handle(h), nil
}

func (c *iconCache) release() {
	c.handles.Range(func(_ string, h windows.Handle) bool {
		pDestroyIcon.Call(uintptr(h))
		return true
	})
	c.handles.Clear()
}

func open(_ context.Context, opts Options) (*Backend, error) {
	sink := &winSink{logger: opts.Logger, done: make(chan struct{})}
	ready := make(chan error, 1)
	go sink.run(ready)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("create message window: %w", err)
	}

	menu, err := newWinMenu(opts.Logger, sink, opts)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	sink.menu = menu

	icons := &iconCache{handles: xsync.NewMapOf[string, windows.Handle]()}
	opts.Logger.Info("✅ [托盘] Windows 通知区域后端已就绪", "window", fmt.Sprintf("0x%x", uintptr(sink.window)))

	return &Backend{
		Name:     "windows",
		Shell:    &winShell{logger: opts.Logger},
		Sink:     sink,
		Desktop:  winDesktop{},
		Menu:     menu,
		loadIcon: icons.load,
		stop: func() {
			_ = sink.Close()
			menu.destroy()
			icons.release()
		},
	}, nil
}
