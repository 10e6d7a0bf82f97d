package tray

import "sync"

// EventType 托盘通知类型。Preview* 可被监听方取消，其余只是通知。
type EventType int

const (
	EventPreviewOpen EventType = iota + 1
	EventOpened
	EventOpen
	EventPreviewClose
	EventClosed
	EventMouse
	EventBalloonTipShown
	EventBalloonTipClosed
	EventBalloonTipClicked
)

// String 返回事件名称
func (t EventType) String() string {
	switch t {
	case EventPreviewOpen:
		return "PreviewOpen"
	case EventOpened:
		return "Opened"
	case EventOpen:
		return "Open"
	case EventPreviewClose:
		return "PreviewClose"
	case EventClosed:
		return "Closed"
	case EventMouse:
		return "Mouse"
	case EventBalloonTipShown:
		return "BalloonTipShown"
	case EventBalloonTipClosed:
		return "BalloonTipClosed"
	case EventBalloonTipClicked:
		return "BalloonTipClicked"
	default:
		return "Unknown"
	}
}

// Cancelable 是否为可取消的预览通知
func (t EventType) Cancelable() bool {
	return t == EventPreviewOpen || t == EventPreviewClose
}

// Event 一次通知。Handled 只对 Preview* 有意义：
// 置为 true 即取消默认处理。
type Event struct {
	Type    EventType
	Overlay Overlay
	Content Surface
	Mouse   MouseEvent
	Handled bool
}

// Listener 通知回调，在控制器锁之外调用，可以回调 Icon 的方法。
type Listener func(e *Event)

type eventHub struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
}

func newEventHub() *eventHub {
	return &eventHub{listeners: make(map[EventType][]Listener)}
}

func (h *eventHub) on(t EventType, l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	h.listeners[t] = append(h.listeners[t], l)
	h.mu.Unlock()
}

func (h *eventHub) raise(e *Event) *Event {
	h.mu.RLock()
	ls := h.listeners[e.Type]
	h.mu.RUnlock()

	for _, l := range ls {
		l(e)
	}
	if !e.Type.Cancelable() {
		e.Handled = false
	}
	return e
}
