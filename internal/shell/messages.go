package shell

import (
	"unicode/utf16"

	"traykit/internal/tray"
)

// 托盘回调消息中携带的窗口消息编号
const (
	wmContextMenu     = 0x007B
	wmMouseMove       = 0x0200
	wmLButtonDown     = 0x0201
	wmLButtonUp       = 0x0202
	wmLButtonDblClk   = 0x0203
	wmRButtonDown     = 0x0204
	wmRButtonUp       = 0x0205
	wmRButtonDblClk   = 0x0206
	wmMButtonDown     = 0x0207
	wmMButtonUp       = 0x0208
	wmUser            = 0x0400
	ninSelect         = wmUser
	ninKeySelect      = ninSelect | 1
	ninBalloonShow    = wmUser + 2
	ninBalloonHide    = wmUser + 3
	ninBalloonTimeout = wmUser + 4
	ninBalloonClick   = wmUser + 5
	ninPopupOpen      = wmUser + 6
	ninPopupClose     = wmUser + 7
)

type notificationKind int

const (
	notifyMouse notificationKind = iota
	notifyToolTip
	notifyBalloon
)

// notification 解码后的托盘通知
type notification struct {
	kind    notificationKind
	mouse   tray.MouseEvent
	visible bool
}

// deliver 转发给控制器
func (n notification) deliver(h tray.SinkHandler) {
	switch n.kind {
	case notifyMouse:
		h.MouseEvent(n.mouse)
	case notifyToolTip:
		h.ToolTipVisibilityRequested(n.visible)
	case notifyBalloon:
		h.BalloonVisibilityChanged(n.visible)
	}
}

// notifyDecoder 把回调消息的 lParam 解码为托盘通知。
// 双击之后紧跟的左键抬起不再上报。
type notifyDecoder struct {
	afterDouble bool
}

func (d *notifyDecoder) decode(lParam uintptr) (notification, bool) {
	// 新版协议在高位携带图标 ID，旧版整个 lParam 就是消息
	msg := uint32(lParam & 0xFFFF)

	mouse := func(me tray.MouseEvent) (notification, bool) {
		return notification{kind: notifyMouse, mouse: me}, true
	}

	switch msg {
	case wmMouseMove:
		return mouse(tray.MouseMove)
	case wmLButtonDown:
		return mouse(tray.LeftMouseDown)
	case wmLButtonUp:
		if d.afterDouble {
			d.afterDouble = false
			return notification{}, false
		}
		return mouse(tray.LeftMouseUp)
	case wmLButtonDblClk:
		d.afterDouble = true
		return mouse(tray.DoubleClick)
	case wmRButtonDown:
		return mouse(tray.RightMouseDown)
	case wmRButtonUp:
		return mouse(tray.RightMouseUp)
	case wmMButtonDown:
		return mouse(tray.MiddleMouseDown)
	case wmMButtonUp:
		return mouse(tray.MiddleMouseUp)
	case ninBalloonClick:
		return mouse(tray.BalloonClicked)
	case ninBalloonShow:
		return notification{kind: notifyBalloon, visible: true}, true
	case ninBalloonHide, ninBalloonTimeout:
		return notification{kind: notifyBalloon, visible: false}, true
	case ninPopupOpen:
		return notification{kind: notifyToolTip, visible: true}, true
	case ninPopupClose:
		return notification{kind: notifyToolTip, visible: false}, true
	default:
		// wmContextMenu、ninSelect、ninKeySelect、右键双击等不处理
		return notification{}, false
	}
}

// rect 屏幕矩形
type rect struct {
	Left, Top, Right, Bottom int32
}

// trayCorner 根据任务栏矩形推算通知区域所在的角
func trayCorner(r rect) tray.Point {
	horizontal := r.Right-r.Left >= r.Bottom-r.Top
	switch {
	case horizontal && r.Top <= 0:
		// 顶部任务栏
		return tray.Point{X: int(r.Right), Y: int(r.Bottom)}
	case horizontal:
		return tray.Point{X: int(r.Right), Y: int(r.Top)}
	case r.Left <= 0:
		// 左侧任务栏
		return tray.Point{X: int(r.Right), Y: int(r.Bottom)}
	default:
		return tray.Point{X: int(r.Left), Y: int(r.Bottom)}
	}
}

// copyUTF16 把 s 编码后写入定长缓冲区，超长截断并保留结尾的 0
func copyUTF16(dst []uint16, s string) {
	for i := range dst {
		dst[i] = 0
	}
	if len(dst) == 0 {
		return
	}
	enc := utf16.Encode([]rune(s))
	n := len(enc)
	if n > len(dst)-1 {
		n = len(dst) - 1
		// 不拆开代理对
		if n > 0 && enc[n-1] >= 0xD800 && enc[n-1] < 0xDC00 {
			n--
		}
	}
	copy(dst, enc[:n])
}
