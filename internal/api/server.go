// Package api 提供本地回环的 HTTP 控制接口，供脚本驱动托盘图标。
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"traykit/internal/logging"
	"traykit/internal/tray"
)

// Tray 控制接口使用的托盘操作
type Tray interface {
	State() tray.Status
	ToolTipText() string
	SetToolTipText(text string)
	ShowBalloonTip(title, message string, icon tray.BalloonIcon)
	HideBalloonTip()
	ShowCustomBalloon(content tray.Surface, animation tray.Animation, timeout time.Duration) error
	CloseBalloon()
}

// LogSource 最近日志与日志流
type LogSource interface {
	Recent(n int) []logging.LogEntry
	Subscribe(buffer int) (<-chan []logging.LogEntry, func())
}

// Options 控制接口参数
type Options struct {
	Logger *slog.Logger
	Tray   Tray
	Logs   LogSource

	// Metrics 为 true 时暴露 /metrics
	Metrics bool
	// MaxConnections 并发连接上限，0 表示不限制
	MaxConnections int
	// BalloonTimeout 自定义气泡未指定超时时使用
	BalloonTimeout time.Duration

	// NewBalloon 创建自定义气泡内容，为 nil 时不支持自定义气泡
	NewBalloon func(title, message string) tray.Surface
	// OnToolTipSaved persist=true 时在提示文本变更后调用
	OnToolTipSaved func(text string) error
}

// Server 控制接口服务
type Server struct {
	logger *slog.Logger
	opts   Options
	engine *gin.Engine
}

// New 创建控制接口
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{logger: opts.Logger, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/status", s.StatusHandler)
	r.POST("/api/balloon", s.ShowBalloonHandler)
	r.DELETE("/api/balloon", s.HideBalloonHandler)
	r.PUT("/api/tooltip", s.ToolTipHandler)
	if opts.Logs != nil {
		r.GET("/api/logs", s.LogsHandler)
		r.GET("/api/logs/stream", s.LogStreamHandler)
	}
	if opts.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	s.engine = r
	return s
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve 在 ln 上提供服务，ctx 取消后优雅关闭
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 [控制接口] 开始监听", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// 日志流等长连接不会自行结束
			_ = srv.Close()
		}
		s.logger.Info("🛑 [控制接口] 已停止")
		return nil
	}
}

// ListenAndServe 监听 addr 并提供服务
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("🌐 [控制接口] 请求完成",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// StatusHandler 返回托盘状态快照
func (s *Server) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Tray.State())
}

// BalloonRequest POST /api/balloon 请求体
type BalloonRequest struct {
	Title   string `json:"title"`
	Message string `json:"message" binding:"required"`
	Icon    string `json:"icon"`
	// Custom 为 true 时使用自定义气泡（受超时与独占规则约束）
	Custom    bool   `json:"custom"`
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
	Animation string `json:"animation"`
}

// ShowBalloonHandler 显示标准气泡或自定义气泡
func (s *Server) ShowBalloonHandler(c *gin.Context) {
	var req BalloonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Custom {
		icon, err := parseBalloonIcon(req.Icon)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.opts.Tray.ShowBalloonTip(req.Title, req.Message, icon)
		c.JSON(http.StatusOK, gin.H{"shown": "standard"})
		return
	}

	if s.opts.NewBalloon == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "custom balloons are not available"})
		return
	}
	animation, err := tray.ParseAnimation(req.Animation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	timeout := s.opts.BalloonTimeout
	if req.TimeoutMS != nil {
		timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}

	err = s.opts.Tray.ShowCustomBalloon(s.opts.NewBalloon(req.Title, req.Message), animation, timeout)
	switch {
	case errors.Is(err, tray.ErrInvalidTimeout), errors.Is(err, tray.ErrNilContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": "custom", "timeout_ms": timeout.Milliseconds()})
}

// HideBalloonHandler 隐藏标准气泡并关闭自定义气泡
func (s *Server) HideBalloonHandler(c *gin.Context) {
	s.opts.Tray.HideBalloonTip()
	s.opts.Tray.CloseBalloon()
	c.Status(http.StatusNoContent)
}

// ToolTipRequest PUT /api/tooltip 请求体
type ToolTipRequest struct {
	Text    string `json:"text"`
	Persist bool   `json:"persist"`
}

// ToolTipHandler 修改提示文本
func (s *Server) ToolTipHandler(c *gin.Context) {
	var req ToolTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.opts.Tray.SetToolTipText(req.Text)
	if req.Persist && s.opts.OnToolTipSaved != nil {
		if err := s.opts.OnToolTipSaved(req.Text); err != nil {
			s.logger.Error("❌ [控制接口] 保存提示文本失败", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"tooltip": s.opts.Tray.ToolTipText()})
}

// LogsHandler 返回最近日志，limit 默认 100
func (s *Server) LogsHandler(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.opts.Logs.Recent(limit)})
}

// LogStreamHandler 以 SSE 推送日志批次，直到客户端断开
func (s *Server) LogStreamHandler(c *gin.Context) {
	ch, cancel := s.opts.Logs.Subscribe(32)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// 先把响应头发出去，客户端才能开始读取
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case batch, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("logs", batch)
			return true
		}
	})
}

func parseBalloonIcon(s string) (tray.BalloonIcon, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return tray.BalloonNone, nil
	case "info":
		return tray.BalloonInfo, nil
	case "warning":
		return tray.BalloonWarning, nil
	case "error":
		return tray.BalloonError, nil
	default:
		return 0, fmt.Errorf("unknown balloon icon %q", s)
	}
}
