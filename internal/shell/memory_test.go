package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traykit/internal/tray"
)

func TestMemoryShell_Lifecycle(t *testing.T) {
	sh := NewMemoryShell(tray.VersionWin2000)
	d := tray.IconDescriptor{ID: 100, ToolTipText: "a", Fields: tray.FieldMessage | tray.FieldTip}

	assert.False(t, sh.Modify(d), "未注册时不能修改")
	require.True(t, sh.Add(d))
	assert.False(t, sh.Add(d), "重复注册")

	d.Version = tray.VersionVista
	assert.False(t, sh.SetVersion(d))
	d.Version = tray.VersionWin2000
	assert.True(t, sh.SetVersion(d))

	assert.True(t, sh.Modify(tray.IconDescriptor{ToolTipText: "b", Icon: 0x9, Fields: tray.FieldTip}))
	cur, ok := sh.Current()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ToolTipText)
	assert.Equal(t, tray.Handle(0), cur.Icon, "未标记的字段不应被修改")
	assert.Equal(t, tray.VersionWin2000, cur.Version)

	sh.Delete(d)
	_, ok = sh.Current()
	assert.False(t, ok)

	ops := make([]string, 0)
	for _, c := range sh.Calls() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"modify", "add", "add", "set_version", "set_version", "modify", "delete"}, ops)
}

func TestMemoryShell_Restart(t *testing.T) {
	sh := NewMemoryShell()
	require.True(t, sh.Add(tray.IconDescriptor{}))

	sh.Restart()

	_, ok := sh.Current()
	assert.False(t, ok)
	assert.True(t, sh.Add(tray.IconDescriptor{}))
}

func TestMemorySink_DropsAfterClose(t *testing.T) {
	sink := NewMemorySink(0x1)
	h := &recordingHandler{}
	sink.Listen(h)

	sink.Mouse(tray.LeftMouseUp)
	sink.ShellRestarted()
	sink.ToolTip(true)
	sink.Balloon(false)
	require.NoError(t, sink.Close())
	sink.Mouse(tray.RightMouseUp)

	assert.Equal(t, []tray.MouseEvent{tray.LeftMouseUp}, h.mouse)
	assert.Equal(t, 1, h.restarts)
	assert.Equal(t, []bool{true}, h.tips)
	assert.Equal(t, []bool{false}, h.balloons)
	assert.True(t, sink.Closed())
}

func TestMemoryBackend_DrivesIcon(t *testing.T) {
	b, sh, sink := NewMemory()
	icon, err := b.LoadIcon([]byte{0, 0, 1, 0})
	require.NoError(t, err)
	assert.NotZero(t, icon)

	empty, err := b.LoadIcon(nil)
	require.NoError(t, err)
	assert.Zero(t, empty)

	assert.Equal(t, "memory", b.Name)
	assert.Same(t, sh, b.Shell)
	assert.Same(t, sink, b.Sink)
	assert.NotNil(t, b.Menu)
	b.Stop()
}

func TestMemorySurface(t *testing.T) {
	s := &MemorySurface{Name: "popup"}
	_, ok := s.LastPlacement()
	assert.False(t, ok)

	s.Show(tray.Placement{Anchor: tray.Point{X: 1, Y: 2}})
	s.Hide()
	s.Hide()

	shows, hides := s.Counts()
	assert.Equal(t, 1, shows)
	assert.Equal(t, 1, hides)
	p, ok := s.LastPlacement()
	require.True(t, ok)
	assert.Equal(t, tray.Point{X: 1, Y: 2}, p.Anchor)
}
