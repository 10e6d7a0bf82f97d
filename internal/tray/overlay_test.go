package tray

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence 记录覆盖层转换的先后顺序
type sequence struct {
	mu    sync.Mutex
	steps []string
}

func (s *sequence) listen(icon *Icon) {
	for _, typ := range []EventType{EventOpened, EventClosed} {
		icon.On(typ, func(e *Event) {
			s.mu.Lock()
			s.steps = append(s.steps, fmt.Sprintf("%s:%s", e.Type, e.Overlay))
			s.mu.Unlock()
		})
	}
}

func (s *sequence) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func TestOverlay_PopupClosesMenuFirst(t *testing.T) {
	icon, f := newTestIcon(t)
	menu := &fakeSurface{name: "menu"}
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetContextMenu(menu))
	require.NoError(t, icon.SetTrayPopup(popup))
	seq := &sequence{}
	seq.listen(icon)

	f.sink.send(RightMouseUp)
	require.True(t, menu.IsOpen())

	icon.ShowTrayPopup()

	assert.False(t, menu.IsOpen())
	assert.True(t, popup.IsOpen())
	assert.Equal(t, []string{"Opened:menu", "Closed:menu", "Opened:popup"}, seq.get())
	st := icon.State()
	assert.Equal(t, "closed", st.Menu)
	assert.Equal(t, "open", st.Popup)
}

func TestOverlay_BalloonClosesPopupFirst(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	balloon := &fakeSurface{name: "balloon"}
	require.NoError(t, icon.SetTrayPopup(popup))
	seq := &sequence{}
	seq.listen(icon)

	icon.ShowTrayPopup()
	require.NoError(t, icon.ShowCustomBalloon(balloon, AnimationFade, 0))

	assert.False(t, popup.IsOpen())
	assert.True(t, balloon.IsOpen())
	assert.Equal(t, []string{"Opened:popup", "Closed:popup", "Opened:balloon"}, seq.get())
}

func TestOverlay_ForcedCloseSkipsPreview(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	// 即使监听方想取消，独占关闭也不经过预览
	icon.On(EventPreviewClose, func(e *Event) { e.Handled = true })

	icon.ShowTrayPopup()
	require.NoError(t, icon.ShowCustomBalloon(&fakeSurface{name: "balloon"}, AnimationNone, 0))

	assert.False(t, popup.IsOpen())
}

func TestOverlay_MenuDoesNotCloseBalloon(t *testing.T) {
	icon, f := newTestIcon(t)
	menu := &fakeSurface{name: "menu"}
	balloon := &fakeSurface{name: "balloon"}
	require.NoError(t, icon.SetContextMenu(menu))

	require.NoError(t, icon.ShowCustomBalloon(balloon, AnimationNone, 0))
	f.sink.send(RightMouseUp)

	assert.True(t, menu.IsOpen())
	assert.True(t, balloon.IsOpen())
}

func TestOverlay_PreviewOpenCanceled(t *testing.T) {
	icon, f := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	rec := &recorder{}
	rec.listen(icon, EventOpened, EventOpen)
	icon.On(EventPreviewOpen, func(e *Event) {
		if e.Overlay == OverlayPopup {
			e.Handled = true
		}
	})
	_, modifiesBefore, _, _ := f.shell.counts()

	icon.ShowTrayPopup()

	assert.False(t, popup.IsOpen())
	assert.Equal(t, 0, popup.shows)
	assert.Equal(t, "closed", icon.State().Popup)
	assert.Empty(t, f.desktop.focusCalls())
	assert.Equal(t, 0, rec.count(EventOpened, OverlayPopup))
	assert.Equal(t, 0, rec.count(EventOpen, OverlayPopup))
	_, modifiesAfter, _, _ := f.shell.counts()
	assert.Equal(t, modifiesBefore, modifiesAfter)
}

func TestOverlay_PreviewCloseCanceled(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	rec := &recorder{}
	rec.listen(icon, EventClosed)
	icon.On(EventPreviewClose, func(e *Event) { e.Handled = true })

	icon.ShowTrayPopup()
	require.True(t, icon.IsPopupOpen())

	icon.ClosePopup()

	// 不再跟踪，但内容本身保持打开，由取消方负责关闭
	assert.Equal(t, "closed", icon.State().Popup)
	assert.False(t, icon.IsPopupOpen())
	assert.True(t, popup.IsOpen())
	assert.Equal(t, 0, popup.hides)
	assert.Equal(t, 0, rec.count(EventClosed, OverlayPopup))
}

func TestOverlay_ClosePopup(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	rec := &recorder{}
	rec.listen(icon, EventPreviewClose, EventClosed)

	icon.ShowTrayPopup()
	icon.ClosePopup()
	icon.ClosePopup()

	assert.False(t, popup.IsOpen())
	assert.Equal(t, 1, popup.hides)
	assert.Equal(t, 1, rec.count(EventPreviewClose, OverlayPopup))
	assert.Equal(t, 1, rec.count(EventClosed, OverlayPopup))
}

func TestOverlay_OpenedThenOpenOrder(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))

	var order []EventType
	for _, typ := range []EventType{EventPreviewOpen, EventOpened, EventOpen} {
		icon.On(typ, func(e *Event) { order = append(order, e.Type) })
	}

	icon.ShowTrayPopup()

	assert.Equal(t, []EventType{EventPreviewOpen, EventOpened, EventOpen}, order)
}

func TestOverlay_ListenerMayCallBack(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))

	var seen Status
	icon.On(EventOpen, func(e *Event) {
		seen = icon.State()
		icon.ClosePopup()
	})

	icon.ShowTrayPopup()

	assert.Equal(t, "open", seen.Popup)
	assert.False(t, popup.IsOpen())
}

func TestOverlay_SetContentWhileOpen(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	icon.ShowTrayPopup()

	err := icon.SetTrayPopup(&fakeSurface{name: "other"})
	assert.ErrorIs(t, err, ErrSurfaceOpen)

	icon.ClosePopup()
	assert.NoError(t, icon.SetTrayPopup(&fakeSurface{name: "other"}))
}

func TestOverlay_SurfaceClosedByOwner(t *testing.T) {
	icon, f := newTestIcon(t)
	menu := &fakeSurface{name: "menu"}
	require.NoError(t, icon.SetContextMenu(menu))
	rec := &recorder{}
	rec.listen(icon, EventClosed)

	f.sink.send(RightMouseUp)
	menu.Hide()
	icon.SurfaceClosed(menu)

	assert.Equal(t, 1, rec.count(EventClosed, OverlayMenu))
	assert.Equal(t, "closed", icon.State().Menu)
}

func TestOverlay_SelfClosedSurfaceNotTracked(t *testing.T) {
	icon, f := newTestIcon(t)
	menu := &fakeSurface{name: "menu"}
	require.NoError(t, icon.SetContextMenu(menu))

	f.sink.send(RightMouseUp)
	require.True(t, icon.IsPopupOpen())
	menu.Hide()

	assert.False(t, icon.IsPopupOpen())
	assert.Equal(t, "closed", icon.State().Menu)
}

func TestOverlay_ParentIcon(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))

	owner, ok := ParentIcon(popup)
	require.True(t, ok)
	assert.Same(t, icon, owner)

	replacement := &fakeSurface{name: "replacement"}
	require.NoError(t, icon.SetTrayPopup(replacement))
	_, ok = ParentIcon(popup)
	assert.False(t, ok)

	require.NoError(t, icon.Close())
	_, ok = ParentIcon(replacement)
	assert.False(t, ok)
}

func TestToolTip_VisibilityRequests(t *testing.T) {
	icon, f := newTestIcon(t)
	tip := &fakeSurface{name: "tooltip"}
	require.NoError(t, icon.SetToolTip(tip))

	f.sink.handler.ToolTipVisibilityRequested(true)
	assert.True(t, tip.IsOpen())
	assert.Equal(t, f.desktop.cursor, tip.lastPlacement().Anchor)
	// 提示不抢焦点
	assert.Empty(t, f.desktop.focusCalls())

	f.sink.handler.ToolTipVisibilityRequested(false)
	assert.False(t, tip.IsOpen())
	assert.Equal(t, "closed", icon.State().ToolTip)
}

func TestToolTip_SuppressedWhilePopupOpen(t *testing.T) {
	icon, f := newTestIcon(t)
	tip := &fakeSurface{name: "tooltip"}
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetToolTip(tip))
	require.NoError(t, icon.SetTrayPopup(popup))

	icon.ShowTrayPopup()
	f.sink.handler.ToolTipVisibilityRequested(true)
	assert.False(t, tip.IsOpen())

	icon.ClosePopup()
	f.sink.handler.ToolTipVisibilityRequested(true)
	assert.True(t, tip.IsOpen())
}

func TestToolTip_WithoutCustomContentIgnored(t *testing.T) {
	icon, f := newTestIcon(t)
	rec := &recorder{}
	rec.listen(icon, EventPreviewOpen)

	f.sink.handler.ToolTipVisibilityRequested(true)

	assert.Equal(t, 0, rec.count(EventPreviewOpen, OverlayToolTip))
}

func TestOverlay_PreviewOpenLetsListenerSupplyPopup(t *testing.T) {
	icon, f := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	rec := &recorder{}
	rec.listen(icon, EventPreviewOpen, EventOpened)
	icon.On(EventPreviewOpen, func(e *Event) {
		if e.Overlay == OverlayPopup && e.Content == nil {
			assert.NoError(t, icon.SetTrayPopup(popup))
		}
	})

	f.sink.send(LeftMouseUp)
	f.clock.Add(200 * time.Millisecond)

	require.Eventually(t, popup.IsOpen, waitFor, tick)
	assert.Equal(t, 1, rec.count(EventPreviewOpen, OverlayPopup))
	assert.Equal(t, 1, rec.count(EventOpened, OverlayPopup))
	assert.Equal(t, Point{X: 10, Y: 20}, popup.lastPlacement().Anchor)
}

func TestOverlay_PreviewOpenWithoutContentOpensNothing(t *testing.T) {
	icon, f := newTestIcon(t)
	rec := &recorder{}
	rec.listen(icon, EventPreviewOpen, EventOpened)

	f.sink.send(RightMouseUp)

	assert.Equal(t, 1, rec.count(EventPreviewOpen, OverlayMenu))
	assert.Equal(t, 0, rec.count(EventOpened, OverlayMenu))
	assert.Equal(t, "closed", icon.State().Menu)
	assert.Empty(t, f.desktop.focusCalls())
}

func TestOverlay_ReopenSameContentIsNoop(t *testing.T) {
	icon, _ := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	rec := &recorder{}
	rec.listen(icon, EventPreviewOpen, EventOpened, EventOpen, EventClosed)

	icon.ShowTrayPopup()
	icon.ShowTrayPopup()

	assert.True(t, popup.IsOpen())
	assert.Equal(t, 1, popup.shows)
	assert.Equal(t, 1, rec.count(EventPreviewOpen, OverlayPopup))
	assert.Equal(t, 1, rec.count(EventOpened, OverlayPopup))
	assert.Equal(t, 1, rec.count(EventOpen, OverlayPopup))
	assert.Equal(t, 0, rec.count(EventClosed, OverlayPopup))
	assert.Equal(t, "open", icon.State().Popup)
}
