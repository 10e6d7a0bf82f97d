package tray

import (
	"bytes"
	"errors"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClose_Idempotent(t *testing.T) {
	icon, f := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	icon.ShowTrayPopup()

	require.NoError(t, icon.Close())
	first := icon.State()
	adds, modifies, versions, deletes := f.shell.counts()

	require.NoError(t, icon.Close())
	assert.Equal(t, first, icon.State())
	a2, m2, v2, d2 := f.shell.counts()
	assert.Equal(t, []int{adds, modifies, versions, deletes}, []int{a2, m2, v2, d2})

	assert.Equal(t, 1, deletes)
	assert.Equal(t, 1, f.sink.closed)
	assert.Equal(t, 1, f.lifetime.unregistered)
	assert.True(t, icon.IsDisposed())
	assert.False(t, icon.IsTaskbarIconCreated())
	assert.False(t, popup.IsOpen())
}

func TestClose_OperationsBecomeNoops(t *testing.T) {
	icon, f := newTestIcon(t)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	require.NoError(t, icon.Close())
	adds, modifies, versions, deletes := f.shell.counts()

	icon.SetToolTipText("x")
	icon.SetIconImage(0x1)
	icon.ShowBalloonTip("t", "m", BalloonInfo)
	icon.HideBalloonTip()
	icon.ShowTrayPopup()
	icon.ShowContextMenu()
	icon.ClosePopup()
	icon.CloseBalloon()
	icon.ResetBalloonCloseTimer()
	assert.NoError(t, icon.ShowCustomBalloon(&fakeSurface{}, AnimationNone, time.Second))
	assert.NoError(t, icon.SetTrayPopup(&fakeSurface{}))
	f.sink.handler.ShellRestarted()
	f.sink.handler.ToolTipVisibilityRequested(true)

	a2, m2, v2, d2 := f.shell.counts()
	assert.Equal(t, []int{adds, modifies, versions, deletes}, []int{a2, m2, v2, d2})
	assert.Equal(t, 0, popup.shows)
	assert.False(t, icon.IsPopupOpen())
	assert.False(t, icon.SupportsCustomToolTips())
	_, ok := icon.CustomBalloon()
	assert.False(t, ok)

	st := icon.State()
	assert.True(t, st.Disposed)
	assert.False(t, st.Created)
	assert.Equal(t, "closed", st.Popup)
	assert.False(t, st.BalloonTimerArmed)
}

func TestClose_CancelsPendingTimers(t *testing.T) {
	icon, f := newTestIcon(t)
	left := &countingCommand{enabled: true}
	icon.SetLeftClickCommand(ClickBinding{Command: left})
	balloon := &fakeSurface{name: "balloon"}
	require.NoError(t, icon.ShowCustomBalloon(balloon, AnimationNone, time.Second))
	f.sink.send(LeftMouseUp)

	require.NoError(t, icon.Close())
	f.clock.Add(10 * time.Second)

	assert.Never(t, func() bool { return left.count() > 0 }, 30*time.Millisecond, tick)
	assert.False(t, icon.t.clickTimer.armed())
	assert.False(t, icon.t.balloonTimer.armed())
}

func TestClose_ViaLifetimeExit(t *testing.T) {
	icon, f := newTestIcon(t)

	f.lifetime.exit()

	assert.True(t, icon.IsDisposed())
	_, _, _, deletes := f.shell.counts()
	assert.Equal(t, 1, deletes)
}

func TestClose_ViaLifetimeExitLogsFailure(t *testing.T) {
	f := newFixture()
	f.sink.closeErr = errors.New("window already destroyed")
	var buf bytes.Buffer
	opts := f.options()
	opts.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	icon, err := New(opts)
	require.NoError(t, err)

	f.lifetime.exit()

	assert.True(t, icon.IsDisposed())
	assert.Contains(t, buf.String(), "退出时释放控制器失败")
	assert.Contains(t, buf.String(), "window already destroyed")
}

func TestFinalize_ReleasesWithoutTouchingOverlays(t *testing.T) {
	f := newFixture()
	icon, err := New(f.options())
	require.NoError(t, err)
	popup := &fakeSurface{name: "popup"}
	require.NoError(t, icon.SetTrayPopup(popup))
	icon.ShowTrayPopup()
	require.True(t, popup.IsOpen())

	inner := icon.t
	icon = nil
	require.Eventually(t, func() bool {
		runtime.GC()
		return inner.disposed.Load()
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, _, deletes := f.shell.counts()
		return deletes == 1
	}, waitFor, tick)
	f.sink.mu.Lock()
	closed := f.sink.closed
	f.sink.mu.Unlock()
	assert.Equal(t, 1, closed)
	// 回收路径不关闭覆盖层
	assert.True(t, popup.IsOpen())
	assert.Equal(t, 0, popup.hides)
}
