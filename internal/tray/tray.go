package tray

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultIconID 描述符中默认的图标 ID（同一消息窗口内唯一）
const DefaultIconID uint32 = 100

// Options 托盘控制器的构造参数。
type Options struct {
	// 必需的宿主服务
	Shell      Shell
	Sink       MessageSink
	Desktop    Desktop
	Dispatcher Dispatcher

	// Clock 为 nil 时使用真实时钟（测试中传入 clock.NewMock()）
	Clock clock.Clock

	// Lifetime 非 nil 时在宿主退出时自动释放
	Lifetime Lifetime

	Logger *slog.Logger

	// Icon 初始图标句柄
	Icon Handle

	// ToolTipText 初始悬浮提示文本
	ToolTipText string

	ID   uint32
	GUID uuid.UUID

	// DoubleClickTime 非零时覆盖宿主报告的双击间隔
	DoubleClickTime time.Duration
}

// Icon 通知区域中的一个托盘图标及其交互控制器。
//
// 所有覆盖层的打开/关闭都在 UI 线程上执行；从其它 goroutine 调用时
// 会阻塞投递到 UI 线程。Icon 未被显式 Close 而被回收时，只释放
// 与 UI 线程无关的资源（定时器、消息窗口、shell 中的图标）。
type Icon struct {
	t *taskbar
}

// taskbar 控制器的实际状态。定时器与消息窗口只引用 taskbar，
// 不引用外层 Icon，外层 Icon 才能被回收。
type taskbar struct {
	self       weak.Pointer[Icon]
	logger     *slog.Logger
	shell      Shell
	sink       MessageSink
	desktop    Desktop
	dispatcher Dispatcher
	clk        clock.Clock
	hub        *eventHub

	// mu 保护描述符、覆盖层状态、点击绑定与待执行动作
	mu       sync.Mutex
	data     IconDescriptor
	created  atomic.Bool
	disposed atomic.Bool

	overlays        [overlayCount]*overlay
	popupActivation ActivationMode
	menuActivation  ActivationMode
	popupAnimation  Animation
	leftClick       ClickBinding
	doubleClick     ClickBinding
	doubleClickTime time.Duration

	pendingClick func()
	clickTimer   *oneShot
	balloonTimer *oneShot

	unregisterExit func()
	moveLog        rate.Sometimes
}

// New 创建控制器并立即向 shell 注册图标。
// 注册失败时返回 ErrIconRegistration，且不会留下运行中的定时器或消息窗口。
func New(opts Options) (*Icon, error) {
	if opts.Shell == nil || opts.Sink == nil || opts.Desktop == nil || opts.Dispatcher == nil {
		return nil, ErrMissingService
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	id := opts.ID
	if id == 0 {
		id = DefaultIconID
	}
	guid := opts.GUID
	if guid == uuid.Nil {
		guid = uuid.New()
	}

	t := &taskbar{
		logger:          logger.With("icon", guid.String()),
		shell:           opts.Shell,
		sink:            opts.Sink,
		desktop:         opts.Desktop,
		dispatcher:      opts.Dispatcher,
		clk:             clk,
		hub:             newEventHub(),
		popupActivation: ActivateLeftClick,
		menuActivation:  ActivateRightClick,
		popupAnimation:  AnimationNone,
		doubleClickTime: opts.DoubleClickTime,
		moveLog:         rate.Sometimes{Interval: time.Second},
	}
	t.data = IconDescriptor{
		Window:      opts.Sink.WindowHandle(),
		ID:          id,
		GUID:        guid,
		Icon:        opts.Icon,
		ToolTipText: opts.ToolTipText,
		Version:     VersionWin95,
	}
	for i := range t.overlays {
		t.overlays[i] = &overlay{kind: Overlay(i)}
	}
	t.clickTimer = newOneShot(clk, t.fireSingleClick)
	t.balloonTimer = newOneShot(clk, t.fireBalloonTimeout)

	if err := t.createTaskbarIcon(); err != nil {
		t.clickTimer.stop()
		t.balloonTimer.stop()
		if cerr := opts.Sink.Close(); cerr != nil {
			t.logger.Warn("⚠️ [托盘] 关闭消息窗口失败", "error", cerr)
		}
		return nil, err
	}

	opts.Sink.Listen(sinkHandler{t: t})

	icon := &Icon{t: t}
	t.self = weak.Make(icon)
	runtime.AddCleanup(icon, func(t *taskbar) { t.finalize() }, t)

	if opts.Lifetime != nil {
		t.unregisterExit = opts.Lifetime.OnExit(func() {
			t.onUI(func() {
				if err := t.dispose(); err != nil {
					t.logger.Warn("⚠️ [托盘] 退出时释放控制器失败", "error", err)
				}
			})
		})
	}
	return icon, nil
}

// owner 外层 Icon；已被回收时返回 nil
func (t *taskbar) owner() *Icon {
	return t.self.Value()
}

// onUI 在 UI 线程上同步执行 fn
func (t *taskbar) onUI(fn func()) {
	if t.dispatcher.CheckAccess() {
		fn()
		return
	}
	t.dispatcher.Invoke(fn)
}

func (t *taskbar) raise(e *Event) *Event {
	return t.hub.raise(e)
}

// On 注册通知监听
func (i *Icon) On(typ EventType, l Listener) {
	i.t.hub.on(typ, l)
}

// IsTaskbarIconCreated 图标当前是否已在 shell 中注册
func (i *Icon) IsTaskbarIconCreated() bool {
	return i.t.created.Load()
}

// IsDisposed 是否已释放
func (i *Icon) IsDisposed() bool {
	return i.t.disposed.Load()
}

// SupportsCustomToolTips 只有 Vista 协议下才能收到提示显示/隐藏通知
func (i *Icon) SupportsCustomToolTips() bool {
	return !i.t.disposed.Load() && i.t.sink.Version() == VersionVista
}

// SetIconImage 更换托盘图标
func (i *Icon) SetIconImage(h Handle) {
	t := i.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed.Load() {
		return
	}
	t.data.Icon = h
	t.modifyLocked(FieldIcon)
}

// SetPopupActivation 设置打开弹窗的鼠标操作
func (i *Icon) SetPopupActivation(m ActivationMode) {
	i.t.mu.Lock()
	i.t.popupActivation = m
	i.t.mu.Unlock()
}

// SetMenuActivation 设置打开上下文菜单的鼠标操作
func (i *Icon) SetMenuActivation(m ActivationMode) {
	i.t.mu.Lock()
	i.t.menuActivation = m
	i.t.mu.Unlock()
}

// SetPopupAnimation 设置弹窗显示动画
func (i *Icon) SetPopupAnimation(a Animation) {
	i.t.mu.Lock()
	i.t.popupAnimation = a
	i.t.mu.Unlock()
}

// SetLeftClickCommand 单击（确认不是双击后）执行的命令
func (i *Icon) SetLeftClickCommand(b ClickBinding) {
	i.t.mu.Lock()
	i.t.leftClick = b
	i.t.mu.Unlock()
}

// SetDoubleClickCommand 双击时立即执行的命令
func (i *Icon) SetDoubleClickCommand(b ClickBinding) {
	i.t.mu.Lock()
	i.t.doubleClick = b
	i.t.mu.Unlock()
}

// SetTrayPopup 设置单击弹窗内容；弹窗打开期间不能替换
func (i *Icon) SetTrayPopup(s Surface) error {
	return i.t.setContent(OverlayPopup, s)
}

// SetContextMenu 设置上下文菜单；菜单打开期间不能替换
func (i *Icon) SetContextMenu(s Surface) error {
	return i.t.setContent(OverlayMenu, s)
}

// Status 控制器状态快照，供查询接口使用。
type Status struct {
	Created           bool   `json:"created"`
	Disposed          bool   `json:"disposed"`
	Version           string `json:"version"`
	ToolTipText       string `json:"tooltip_text"`
	Menu              string `json:"menu"`
	ToolTip           string `json:"tooltip"`
	Popup             string `json:"popup"`
	Balloon           string `json:"balloon"`
	PopupActivation   string `json:"popup_activation"`
	MenuActivation    string `json:"menu_activation"`
	ClickPending      bool   `json:"click_pending"`
	BalloonTimerArmed bool   `json:"balloon_timer_armed"`
}

// State 返回当前状态；释放后返回稳定的关闭状态
func (i *Icon) State() Status {
	t := i.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed.Load() {
		closed := StateClosed.String()
		return Status{
			Disposed:        true,
			Version:         t.data.Version.String(),
			Menu:            closed,
			ToolTip:         closed,
			Popup:           closed,
			Balloon:         closed,
			PopupActivation: t.popupActivation.String(),
			MenuActivation:  t.menuActivation.String(),
		}
	}
	return Status{
		Created:           t.created.Load(),
		Version:           t.data.Version.String(),
		ToolTipText:       t.data.ToolTipText,
		Menu:              t.overlays[OverlayMenu].stateLocked().String(),
		ToolTip:           t.overlays[OverlayToolTip].stateLocked().String(),
		Popup:             t.overlays[OverlayPopup].stateLocked().String(),
		Balloon:           t.overlays[OverlayBalloon].stateLocked().String(),
		PopupActivation:   t.popupActivation.String(),
		MenuActivation:    t.menuActivation.String(),
		ClickPending:      t.pendingClick != nil,
		BalloonTimerArmed: t.balloonTimer.armed(),
	}
}

// String 便于日志输出
func (i *Icon) String() string {
	return fmt.Sprintf("tray.Icon(%s)", i.t.data.GUID)
}
