// app_api.go - 应用状态查询与托盘配置持久化
// 状态弹窗、双击气泡与控制接口共用这里的方法

package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"traykit/config"
	"traykit/internal/tray"
)

// SystemStatus 系统状态结构
type SystemStatus struct {
	Version        string           `json:"version"`
	Uptime         string           `json:"uptime"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	StartTime      string           `json:"start_time"` // ISO8601 格式的启动时间
	ConfigPath     string           `json:"config_path"`
	Backend        string           `json:"backend"`
	Dispatcher     string           `json:"dispatcher"`
	ControlEnabled bool             `json:"control_enabled"`
	ControlAddr    string           `json:"control_addr"`
	Tray           tray.Status      `json:"tray"`
	PopupShows     int              `json:"popup_shows"`
	Events         map[string]int64 `json:"events"`
}

// GetSystemStatus 获取系统状态
func (a *App) GetSystemStatus() SystemStatus {
	a.mu.RLock()
	cfg := a.config
	backend := a.backend
	icon := a.icon
	popup := a.popup
	a.mu.RUnlock()

	uptime := time.Since(a.startTime)

	status := SystemStatus{
		Version:       Version,
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     a.startTime.Format(time.RFC3339),
		ConfigPath:    a.configPath,
		Events:        a.EventCounts(),
	}

	if cfg != nil {
		status.Dispatcher = cfg.UI.Dispatcher
		status.ControlEnabled = cfg.Control.Enabled
		if cfg.Control.Enabled {
			status.ControlAddr = net.JoinHostPort(cfg.Control.Host, strconv.Itoa(cfg.Control.Port))
		}
	}
	if backend != nil {
		status.Backend = backend.Name
	}
	if icon != nil {
		status.Tray = icon.State()
	}
	if popup != nil {
		status.PopupShows = popup.Shown()
	}

	return status
}

// statusSummary 状态弹窗与气泡中显示的摘要
func (a *App) statusSummary() string {
	st := a.GetSystemStatus()

	var b strings.Builder
	fmt.Fprintf(&b, "运行时间: %s\n", st.Uptime)
	fmt.Fprintf(&b, "后端: %s (%s)\n", st.Backend, st.Tray.Version)
	if st.ControlEnabled {
		fmt.Fprintf(&b, "控制接口: http://%s", st.ControlAddr)
	} else {
		b.WriteString("控制接口: 已禁用")
	}
	return b.String()
}

// saveToolTip 把新的提示文本写回配置文件（保留注释）
func (a *App) saveToolTip(text string) error {
	a.mu.Lock()
	if a.config == nil {
		a.mu.Unlock()
		return fmt.Errorf("配置未加载")
	}
	updated := *a.config
	updated.Tray.ToolTip = text
	a.config = &updated
	a.mu.Unlock()

	if err := config.SaveTrayConfigWithComments(&updated, a.configPath); err != nil {
		return fmt.Errorf("保存提示文本失败: %w", err)
	}
	a.logger.Info("💾 提示文本已保存到配置文件", "tooltip", text, "path", a.configPath)
	return nil
}

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
