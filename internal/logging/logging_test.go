package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSimpleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSimpleHandler(slog.LevelInfo, &buf, nil)).With("icon", "abc")

	logger.Debug("不输出")
	logger.Info("🖼️ [托盘] 图标已注册", "version", "vista")

	out := buf.String()
	assert.NotContains(t, out, "不输出")
	assert.Contains(t, out, "[INFO] 🖼️ [托盘] 图标已注册 icon=abc version=vista")
	assert.Contains(t, out, fmt.Sprintf("[GID:%d]", GoroutineID()))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestSimpleHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSimpleHandler(slog.LevelDebug, &buf, nil)).WithGroup("tray")

	logger.Debug("hello", "overlay", "popup")

	assert.Contains(t, buf.String(), "[DEBUG] hello tray.overlay=popup")
}

func TestSetup_FileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "traykit.log")
	logger, broadcast, err := Setup(Config{Level: "debug", FileEnabled: true, FilePath: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Warn("⚠️ [测试] 写入文件")

	recent := broadcast.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "WARN", recent[0].Level)
	assert.FileExists(t, path)
}

func TestBroadcastHandler_Recent(t *testing.T) {
	var buf bytes.Buffer
	h := NewBroadcastHandler(NewSimpleHandler(slog.LevelInfo, &buf, nil), 3)
	logger := slog.New(h)

	for i := 1; i <= 5; i++ {
		logger.Info(fmt.Sprintf("msg-%d", i))
	}

	all := h.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "msg-3", all[0].Message)
	assert.Equal(t, "msg-5", all[2].Message)

	last := h.Recent(2)
	assert.Equal(t, []string{"msg-4", "msg-5"}, []string{last[0].Message, last[1].Message})
}

func TestBroadcastHandler_NotFull(t *testing.T) {
	h := NewBroadcastHandler(NewSimpleHandler(slog.LevelInfo, &bytes.Buffer{}, nil), 10)
	slog.New(h).Info("only")

	got := h.Recent(5)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Message)
}

func TestFanout_StreamsHandlerOutput(t *testing.T) {
	h := NewBroadcastHandler(NewSimpleHandler(slog.LevelInfo, &bytes.Buffer{}, nil), 10)
	ch, cancel := h.Subscribe(4)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	h.Fanout.Start(ctx)
	defer h.Fanout.Stop()
	require.True(t, h.Fanout.Running())

	slog.New(h).Info("streamed", "k", "v")

	select {
	case batch := <-ch:
		require.NotEmpty(t, batch)
		assert.Equal(t, "streamed k=v", batch[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到日志批次")
	}
}

func TestFanout_FlushesFullBatchWithoutTick(t *testing.T) {
	f := NewFanout(clock.NewMock())
	ch, cancel := f.Subscribe(4)
	defer cancel()
	f.Start(context.Background())
	defer f.Stop()

	for i := 0; i < defaultMaxBatch; i++ {
		f.Offer(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	select {
	case batch := <-ch:
		require.Len(t, batch, defaultMaxBatch)
		assert.Equal(t, "m0", batch[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("批次已满却没有发送")
	}
}

func TestFanout_FlushesPartialBatchOnTick(t *testing.T) {
	mock := clock.NewMock()
	f := NewFanout(mock)
	ch, cancel := f.Subscribe(4)
	defer cancel()
	f.Start(context.Background())
	defer f.Stop()

	f.Offer(LogEntry{Message: "one"})
	// 等分发 goroutine 取走条目后再推进时钟
	require.Eventually(t, func() bool {
		mock.Add(defaultFlushInterval)
		select {
		case batch := <-ch:
			return len(batch) == 1 && batch[0].Message == "one"
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFanout_StopFlushesPending(t *testing.T) {
	f := NewFanout(clock.NewMock())
	ch, cancel := f.Subscribe(4)
	defer cancel()
	f.Start(context.Background())

	f.Offer(LogEntry{Message: "last"})
	f.Stop()
	assert.False(t, f.Running())

	select {
	case batch := <-ch:
		require.Len(t, batch, 1)
		assert.Equal(t, "last", batch[0].Message)
	default:
		t.Fatal("停止时未刷出剩余条目")
	}
}

func TestFanout_NotRunningDropsEntries(t *testing.T) {
	f := NewFanout(nil)
	ch, cancel := f.Subscribe(1)

	f.Offer(LogEntry{Message: "dropped"})
	f.Stop()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}
