package tray

import "errors"

var (
	// ErrIconRegistration 首次向 shell 注册图标失败（不可恢复，不重试）
	ErrIconRegistration = errors.New("could not create icon data")

	// ErrMissingService 缺少 shell、消息窗口、桌面服务或 UI 调度器
	ErrMissingService = errors.New("tray: shell, sink, desktop and dispatcher are required")

	ErrNilContent = errors.New("tray: content must not be nil")

	// ErrInvalidTimeout 自定义气泡超时小于 MinBalloonTimeout
	ErrInvalidTimeout = errors.New("tray: invalid balloon timeout")

	// ErrSurfaceOpen 覆盖层打开期间不允许替换内容
	ErrSurfaceOpen = errors.New("tray: surface is open")
)
