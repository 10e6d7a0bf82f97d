package tray

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShot_FiresOncePerArm(t *testing.T) {
	clk := clock.NewMock()
	var fired atomic.Int32
	o := newOneShot(clk, func() { fired.Add(1) })

	o.arm(time.Second)
	assert.True(t, o.armed())
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
	assert.False(t, o.armed())

	clk.Add(10 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 1 }, 30*time.Millisecond, tick)
}

func TestOneShot_RearmReplaces(t *testing.T) {
	clk := clock.NewMock()
	var fired atomic.Int32
	o := newOneShot(clk, func() { fired.Add(1) })

	o.arm(time.Second)
	clk.Add(800 * time.Millisecond)
	o.arm(time.Second)
	clk.Add(800 * time.Millisecond)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 30*time.Millisecond, tick)

	clk.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
}

func TestOneShot_DisarmAndStop(t *testing.T) {
	clk := clock.NewMock()
	var fired atomic.Int32
	o := newOneShot(clk, func() { fired.Add(1) })

	o.arm(time.Second)
	o.disarm()
	clk.Add(2 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 30*time.Millisecond, tick)

	// disarm 之后仍可重新布置
	o.arm(time.Second)
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)

	o.stop()
	o.arm(time.Second)
	assert.False(t, o.armed())
	clk.Add(2 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 1 }, 30*time.Millisecond, tick)
}

func TestOneShot_StaleFireIgnored(t *testing.T) {
	var fired atomic.Int32
	o := newOneShot(clock.NewMock(), func() { fired.Add(1) })

	o.arm(time.Second)
	o.mu.Lock()
	stale := o.seq
	o.mu.Unlock()
	o.arm(time.Second)

	o.fire(stale)
	assert.Equal(t, int32(0), fired.Load())
}
