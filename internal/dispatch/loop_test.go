package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_InvokeRunsOnLoopGoroutine(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	assert.False(t, l.CheckAccess())

	var inside bool
	l.Invoke(func() { inside = l.CheckAccess() })
	assert.True(t, inside)
}

func TestLoop_NestedInvokeDoesNotDeadlock(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	ran := false
	l.Invoke(func() {
		l.Invoke(func() { ran = true })
	})
	assert.True(t, ran)
}

func TestLoop_BeginInvokePreservesOrder(t *testing.T) {
	l := NewLoop(nil)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		n := i
		l.BeginInvoke(func() {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		})
	}
	l.Close()

	require.Len(t, got, 100)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestLoop_ClosedDropsWork(t *testing.T) {
	l := NewLoop(nil)
	l.Close()
	l.Close()

	ran := false
	l.BeginInvoke(func() { ran = true })

	done := make(chan struct{})
	go func() {
		l.Invoke(func() { ran = true })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("关闭后 Invoke 不应阻塞")
	}
	assert.False(t, ran)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	l.Invoke(func() { panic("boom") })

	ran := false
	l.Invoke(func() { ran = true })
	assert.True(t, ran)
}
