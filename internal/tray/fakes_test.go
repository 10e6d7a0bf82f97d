package tray

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type fakeShell struct {
	mu       sync.Mutex
	adds     []IconDescriptor
	modifies []IconDescriptor
	versions []IconDescriptor
	deletes  []IconDescriptor

	rejectAdd bool
	// accept 为 nil 时接受所有版本
	accept map[Version]bool
}

func (s *fakeShell) Add(d IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, d)
	return !s.rejectAdd
}

func (s *fakeShell) Modify(d IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifies = append(s.modifies, d)
	return true
}

func (s *fakeShell) SetVersion(d IconDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, d)
	return s.accept == nil || s.accept[d.Version]
}

func (s *fakeShell) Delete(d IconDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, d)
}

func (s *fakeShell) counts() (adds, modifies, versions, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.adds), len(s.modifies), len(s.versions), len(s.deletes)
}

func (s *fakeShell) lastModify() IconDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifies[len(s.modifies)-1]
}

type fakeSink struct {
	mu       sync.Mutex
	version  Version
	handler  SinkHandler
	closed   int
	closeErr error
}

func (s *fakeSink) WindowHandle() Handle { return 0x1234 }

func (s *fakeSink) Version() Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *fakeSink) SetVersion(v Version) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *fakeSink) Listen(h SinkHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed++
	err := s.closeErr
	s.mu.Unlock()
	return err
}

func (s *fakeSink) send(me MouseEvent) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h.MouseEvent(me)
}

func (s *fakeSink) restart() {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h.ShellRestarted()
}

type fakeDesktop struct {
	mu          sync.Mutex
	cursor      Point
	tray        Point
	dblClick    time.Duration
	rejectFocus bool
	focused     []Handle
}

func (d *fakeDesktop) CursorPosition() Point { return d.cursor }

func (d *fakeDesktop) TrayLocation() Point { return d.tray }

func (d *fakeDesktop) DoubleClickTime() time.Duration { return d.dblClick }

func (d *fakeDesktop) SetForegroundWindow(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.focused = append(d.focused, h)
	return !d.rejectFocus
}

func (d *fakeDesktop) focusCalls() []Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Handle(nil), d.focused...)
}

// inlineDispatcher 把调用方当作 UI 线程，直接执行
type inlineDispatcher struct{}

func (inlineDispatcher) CheckAccess() bool     { return true }
func (inlineDispatcher) Invoke(fn func())      { fn() }
func (inlineDispatcher) BeginInvoke(fn func()) { fn() }

type fakeSurface struct {
	name   string
	handle Handle

	mu        sync.Mutex
	open      bool
	shows     int
	hides     int
	placement Placement
}

func (s *fakeSurface) Show(p Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.shows++
	s.placement = p
}

func (s *fakeSurface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.hides++
	}
	s.open = false
}

func (s *fakeSurface) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSurface) Handle() Handle { return s.handle }

func (s *fakeSurface) lastPlacement() Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placement
}

type fakeLifetime struct {
	mu           sync.Mutex
	fns          []func()
	unregistered int
}

func (l *fakeLifetime) OnExit(fn func()) func() {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.unregistered++
		l.mu.Unlock()
	}
}

func (l *fakeLifetime) exit() {
	l.mu.Lock()
	fns := append([]func(){}, l.fns...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// recorder 按顺序记录收到的通知
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(icon *Icon, types ...EventType) {
	for _, typ := range types {
		icon.On(typ, func(e *Event) {
			r.mu.Lock()
			r.events = append(r.events, *e)
			r.mu.Unlock()
		})
	}
}

func (r *recorder) count(typ EventType, kind Overlay) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ && e.Overlay == kind {
			n++
		}
	}
	return n
}

func (r *recorder) mouse(me MouseEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == EventMouse && e.Mouse == me {
			n++
		}
	}
	return n
}

type fixture struct {
	shell    *fakeShell
	sink     *fakeSink
	desktop  *fakeDesktop
	clock    *clock.Mock
	lifetime *fakeLifetime
}

func newFixture() *fixture {
	return &fixture{
		shell:    &fakeShell{},
		sink:     &fakeSink{},
		desktop:  &fakeDesktop{cursor: Point{X: 10, Y: 20}, tray: Point{X: 1900, Y: 1060}, dblClick: 200 * time.Millisecond},
		clock:    clock.NewMock(),
		lifetime: &fakeLifetime{},
	}
}

func (f *fixture) options() Options {
	return Options{
		Shell:       f.shell,
		Sink:        f.sink,
		Desktop:     f.desktop,
		Dispatcher:  inlineDispatcher{},
		Clock:       f.clock,
		Lifetime:    f.lifetime,
		ToolTipText: "traykit",
	}
}

func newTestIcon(t *testing.T) (*Icon, *fixture) {
	t.Helper()
	f := newFixture()
	icon, err := New(f.options())
	require.NoError(t, err)
	t.Cleanup(func() { _ = icon.Close() })
	return icon, f
}

// countingCommand 记录执行次数与收到的目标
type countingCommand struct {
	mu      sync.Mutex
	runs    int
	target  any
	enabled bool
}

func (c *countingCommand) CanExecute(_, _ any) bool { return c.enabled }

func (c *countingCommand) Execute(_, target any) {
	c.mu.Lock()
	c.runs++
	c.target = target
	c.mu.Unlock()
}

func (c *countingCommand) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}
