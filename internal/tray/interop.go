package tray

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Handle 宿主系统中的不透明句柄（窗口、图标等）。
type Handle uintptr

// Point 屏幕坐标点。
type Point struct {
	X int
	Y int
}

// MouseEvent 消息层投递的托盘鼠标事件。
type MouseEvent int

const (
	MouseMove MouseEvent = iota
	LeftMouseDown
	LeftMouseUp
	RightMouseDown
	RightMouseUp
	MiddleMouseDown
	MiddleMouseUp
	DoubleClick
	BalloonClicked
)

// String 返回鼠标事件名称
func (me MouseEvent) String() string {
	switch me {
	case MouseMove:
		return "move"
	case LeftMouseDown:
		return "left_down"
	case LeftMouseUp:
		return "left_up"
	case RightMouseDown:
		return "right_down"
	case RightMouseUp:
		return "right_up"
	case MiddleMouseDown:
		return "middle_down"
	case MiddleMouseUp:
		return "middle_up"
	case DoubleClick:
		return "double_click"
	case BalloonClicked:
		return "balloon_clicked"
	default:
		return "unknown"
	}
}

// Version 与 shell 协商出的通知协议版本。
type Version uint32

const (
	VersionWin95   Version = 0 // legacy
	VersionWin2000 Version = 3
	VersionVista   Version = 4
)

// String 返回协议版本名称
func (v Version) String() string {
	switch v {
	case VersionWin95:
		return "win95"
	case VersionWin2000:
		return "win2000"
	case VersionVista:
		return "vista"
	default:
		return "unknown"
	}
}

// IconFields 标记本次调用需要 shell 应用的描述符字段。
type IconFields uint32

const (
	FieldMessage  IconFields = 0x01
	FieldIcon     IconFields = 0x02
	FieldTip      IconFields = 0x04
	FieldState    IconFields = 0x08
	FieldInfo     IconFields = 0x10
	FieldGUID     IconFields = 0x20
	FieldRealtime IconFields = 0x40
	FieldShowTip  IconFields = 0x80
)

// Has 判断是否包含指定字段
func (f IconFields) Has(other IconFields) bool {
	return f&other == other
}

// BalloonFlags 原生气泡的图标/行为标志。
type BalloonFlags uint32

const (
	BalloonFlagNone             BalloonFlags = 0x00
	BalloonFlagInfo             BalloonFlags = 0x01
	BalloonFlagWarning          BalloonFlags = 0x02
	BalloonFlagError            BalloonFlags = 0x03
	BalloonFlagUser             BalloonFlags = 0x04
	BalloonFlagNoSound          BalloonFlags = 0x10
	BalloonFlagLargeIcon        BalloonFlags = 0x20
	BalloonFlagRespectQuietTime BalloonFlags = 0x80
)

// BalloonIcon 原生气泡的严重级别图标。
type BalloonIcon int

const (
	BalloonNone BalloonIcon = iota
	BalloonInfo
	BalloonWarning
	BalloonError
)

// Flags 转换为描述符中的气泡标志
func (b BalloonIcon) Flags() BalloonFlags {
	switch b {
	case BalloonInfo:
		return BalloonFlagInfo
	case BalloonWarning:
		return BalloonFlagWarning
	case BalloonError:
		return BalloonFlagError
	default:
		return BalloonFlagNone
	}
}

// IconDescriptor 每次变更时发送给 shell 的图标描述符。
// 只在图标已注册期间有效，移除后不得再发送。
type IconDescriptor struct {
	Window       Handle
	ID           uint32
	GUID         uuid.UUID
	Icon         Handle
	ToolTipText  string
	BalloonTitle string
	BalloonText  string
	BalloonFlags BalloonFlags
	BalloonIcon  Handle
	Version      Version
	Fields       IconFields
}

// Shell 通知区域的图标注册表（Shell_NotifyIcon 一类的调用）。
type Shell interface {
	Add(d IconDescriptor) bool
	Modify(d IconDescriptor) bool
	SetVersion(d IconDescriptor) bool
	Delete(d IconDescriptor)
}

// SinkHandler 接收消息层推送的通知，可能在任意后台线程上调用。
type SinkHandler interface {
	MouseEvent(me MouseEvent)
	ShellRestarted()
	ToolTipVisibilityRequested(visible bool)
	BalloonVisibilityChanged(visible bool)
}

// MessageSink 接收托盘消息的窗口资源。
type MessageSink interface {
	WindowHandle() Handle
	Version() Version
	SetVersion(v Version)
	Listen(h SinkHandler)
	Close() error
}

// Desktop 屏幕坐标、双击间隔与焦点等宿主服务。
type Desktop interface {
	CursorPosition() Point
	TrayLocation() Point
	DoubleClickTime() time.Duration
	SetForegroundWindow(h Handle) bool
}

// Dispatcher 把操作投递到 UI 线程。
type Dispatcher interface {
	// CheckAccess 当前 goroutine 是否就是 UI 线程
	CheckAccess() bool
	// Invoke 阻塞直到 fn 在 UI 线程执行完成；已在 UI 线程时直接执行
	Invoke(fn func())
	// BeginInvoke 异步投递，不等待
	BeginInvoke(fn func())
}

// Animation 覆盖层显示动画提示，只透传给渲染方。
type Animation int

const (
	AnimationNone Animation = iota
	AnimationFade
	AnimationScroll
	AnimationSlide
)

var animationNames = map[Animation]string{
	AnimationNone:   "none",
	AnimationFade:   "fade",
	AnimationScroll: "scroll",
	AnimationSlide:  "slide",
}

func (a Animation) String() string {
	if name, ok := animationNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAnimation 解析配置中的动画名称，空字符串视为 none
func ParseAnimation(s string) (Animation, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return AnimationNone, nil
	}
	for a, name := range animationNames {
		if name == key {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown animation %q", s)
}

// Placement 覆盖层的绝对定位参数。
type Placement struct {
	Anchor    Point
	Animation Animation
}

// Surface 由外部拥有的覆盖层内容（菜单、提示、弹窗、自定义气泡）。
// 控制器只持有引用并决定何时打开/关闭，不负责绘制。
type Surface interface {
	Show(p Placement)
	// Hide 必须是幂等的
	Hide()
	IsOpen() bool
	// Handle 覆盖层自己的窗口句柄，没有则返回 0
	Handle() Handle
}

// Lifetime 宿主应用的退出通知。
type Lifetime interface {
	OnExit(fn func()) (unregister func())
}
