// app.go - 托盘宿主核心结构
// 串联配置、日志、UI 调度器、通知区域后端、托盘控制器与控制接口，负责生命周期管理

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"traykit/config"
	"traykit/internal/api"
	"traykit/internal/dispatch"
	"traykit/internal/logging"
	"traykit/internal/shell"
	"traykit/internal/tray"
)

// uiDispatcher 可关闭的 UI 线程调度器
type uiDispatcher interface {
	tray.Dispatcher
	Close()
}

// App 托盘宿主应用
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// 核心组件
	config        *config.Config
	configWatcher *config.ConfigWatcher
	logger        *slog.Logger
	dispatcher    uiDispatcher
	backend       *shell.Backend
	icon          *tray.Icon
	popup         *shell.NotificationSurface
	control       *api.Server
	lifetime      *exitHooks

	// openBackend 打开通知区域后端，测试中替换为内存后端
	openBackend func(ctx context.Context, opts shell.Options) (*shell.Backend, error)

	// 托盘通知计数，键为 "类型:覆盖层"
	eventCounts *xsync.MapOf[string, *xsync.Counter]

	// 应用状态
	startTime  time.Time
	configPath string

	// 并发控制
	mu           sync.RWMutex
	quit         chan struct{}
	quitOnce     sync.Once
	shutdownOnce sync.Once

	// 日志处理器（用于查询和推送）
	logHandler *logging.BroadcastHandler
	logFanout  *logging.Fanout
}

// NewApp 创建新的应用实例
func NewApp() *App {
	return &App{
		startTime:   time.Now(),
		lifetime:    &exitHooks{},
		openBackend: shell.Open,
		eventCounts: xsync.NewMapOf[string, *xsync.Counter](),
		quit:        make(chan struct{}),
	}
}

// Run 启动所有组件并阻塞到 ctx 取消或用户从托盘菜单退出
func (a *App) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		a.shutdown()
		return err
	}
	defer a.shutdown()

	g, gctx := errgroup.WithContext(a.ctx)

	if a.control != nil {
		addr := net.JoinHostPort(a.config.Control.Host, strconv.Itoa(a.config.Control.Port))
		g.Go(func() error {
			if err := a.control.ListenAndServe(gctx, addr); err != nil {
				// 控制接口不可用时托盘照常工作
				a.logger.Error("❌ [控制接口] 启动失败", "addr", addr, "error", err)
				a.notify("traykit", fmt.Sprintf("控制接口启动失败: %v", err), tray.BalloonError)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			a.logger.Info("📴 收到退出信号")
		case <-a.quit:
			a.logger.Info("👋 用户从托盘菜单退出")
		}
		a.cancel()
		return nil
	})

	return g.Wait()
}

// Quit 请求退出，可重复调用
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// startup 按顺序初始化所有组件
func (a *App) startup(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	// 1. 初始化日志
	if err := a.setupLogger(); err != nil {
		return err
	}

	// 2. 显示启动信息
	a.logger.Info("🚀 traykit 启动中...",
		"version", Version,
		"config_file", a.configPath,
		"dispatcher", a.config.UI.Dispatcher)

	// 3. UI 线程调度器
	a.setupDispatcher()

	// 4. 通知区域后端
	if err := a.setupBackend(); err != nil {
		return err
	}

	// 5. 托盘控制器
	if err := a.setupTray(); err != nil {
		return err
	}

	// 6. 控制接口
	a.setupControl()

	// 7. 配置热重载
	a.setupConfigReload()

	a.logger.Info("✅ traykit 启动完成",
		"backend", a.backend.Name,
		"control_enabled", a.config.Control.Enabled)

	if a.config.Tray.Notifications {
		a.notify("traykit", fmt.Sprintf("traykit %s 已在后台运行", Version), tray.BalloonInfo)
	}
	return nil
}

// shutdown 关闭所有组件，可重复调用
func (a *App) shutdown() {
	a.shutdownOnce.Do(a.doShutdown)
}

func (a *App) doShutdown() {
	a.mu.Lock()
	logger := a.logger
	icon := a.icon
	dispatcher := a.dispatcher
	backend := a.backend
	configWatcher := a.configWatcher
	logFanout := a.logFanout
	cancel := a.cancel
	a.mu.Unlock()

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("🛑 正在关闭 traykit...")

	// 1. 退出钩子：托盘控制器在此释放（关闭覆盖层、移除图标）
	a.lifetime.fire()
	if icon != nil {
		if err := icon.Close(); err != nil {
			logger.Error("托盘图标释放失败", "error", err)
		}
	}

	// 2. 停止 UI 调度器（等待已排队任务执行完）
	if dispatcher != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			dispatcher.Close()
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			logger.Warn("UI 调度器关闭超时，强制继续退出")
		}
	}

	// 3. 停止通知区域后端
	if backend != nil {
		backend.Stop()
	}

	// 4. 关闭配置监听
	if configWatcher != nil {
		_ = configWatcher.Close()
	}

	if cancel != nil {
		cancel()
	}

	// 5. 停止日志分发
	if logFanout != nil {
		logFanout.Stop()
	}

	a.mu.Lock()
	a.icon = nil
	a.backend = nil
	a.dispatcher = nil
	a.mu.Unlock()

	logger.Info("✅ traykit 已关闭")
}

// loadConfig 加载配置；配置文件不存在时写入默认配置
func (a *App) loadConfig() error {
	tempLogger := slog.Default()

	if a.configPath == "" {
		a.configPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaultConfig(a.configPath); err != nil {
			// 无法写入时使用内置默认值，不监听文件
			tempLogger.Warn("⚠️ 无法写入默认配置，使用内置默认值", "path", a.configPath, "error", err)
			a.config = config.Default()
			return nil
		}
		tempLogger.Info("📝 已写入默认配置", "path", a.configPath)
	}

	configWatcher, err := config.NewConfigWatcher(a.configPath, tempLogger)
	if err != nil {
		return fmt.Errorf("无法加载配置: %w", err)
	}
	a.configWatcher = configWatcher
	a.config = configWatcher.GetConfig()

	tempLogger.Info("✅ 配置加载完成",
		"config_file", a.configPath,
		"log_path", a.config.Logging.FilePath)
	return nil
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, defaultConfigContent, 0644)
}

// setupLogger 设置日志
func (a *App) setupLogger() error {
	lc := a.config.Logging
	logger, broadcastHandler, err := logging.Setup(logging.Config{
		Level:       lc.Level,
		FileEnabled: lc.FileEnabled,
		FilePath:    lc.FilePath,
		MaxSizeMB:   lc.MaxSizeMB,
		MaxBackups:  lc.MaxBackups,
		MaxAgeDays:  lc.MaxAgeDays,
		Compress:    lc.Compress,
		BufferSize:  lc.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	a.logger = logger
	slog.SetDefault(logger)

	// 存储日志处理器和分发器引用
	a.logHandler = broadcastHandler
	a.logFanout = broadcastHandler.Fanout
	a.logFanout.Start(a.ctx)

	if a.configWatcher != nil {
		a.configWatcher.UpdateLogger(logger)
	}

	a.logger.Info("✅ 日志系统初始化完成",
		"level", lc.Level,
		"file_enabled", lc.FileEnabled)
	return nil
}

// setupDispatcher 创建 UI 线程调度器
func (a *App) setupDispatcher() {
	if a.config.UI.Dispatcher == "main" {
		a.dispatcher = dispatch.NewMainThread(a.logger)
	} else {
		a.dispatcher = dispatch.NewLoop(a.logger)
	}
	a.logger.Info("🧵 [调度] UI 线程已就绪", "mode", a.config.UI.Dispatcher)
}

// setupBackend 打开通知区域后端
func (a *App) setupBackend() error {
	backend, err := a.openBackend(a.ctx, shell.Options{
		Logger: a.logger,
		Title:  "traykit",
		Menu: []shell.MenuItem{
			{Title: "显示状态", Tooltip: "打开状态弹窗", Action: a.showStatusPopup},
			{Title: "隐藏气泡", Tooltip: "关闭当前气泡", Action: a.hideBalloons},
		},
		OnQuit: a.Quit,
		OnMenuClosed: func(menu tray.Surface) {
			if icon := a.trayIcon(); icon != nil {
				icon.SurfaceClosed(menu)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("打开通知区域后端失败: %w", err)
	}
	a.backend = backend
	a.logger.Info("🖥️ [托盘] 后端已就绪", "backend", backend.Name)
	return nil
}

// setupTray 创建托盘控制器并绑定弹窗、菜单与点击命令
func (a *App) setupTray() error {
	cfg := a.config

	handle, err := a.backend.LoadIcon(a.iconData(cfg.Tray.IconPath))
	if err != nil {
		a.logger.Warn("⚠️ [托盘] 图标加载失败，使用空图标", "error", err)
	}

	icon, err := tray.New(tray.Options{
		Shell:           a.backend.Shell,
		Sink:            a.backend.Sink,
		Desktop:         a.backend.Desktop,
		Dispatcher:      a.dispatcher,
		Lifetime:        a.lifetime,
		Logger:          a.logger,
		Icon:            handle,
		ToolTipText:     cfg.Tray.ToolTip,
		DoubleClickTime: cfg.Tray.DoubleClickTime,
	})
	if err != nil {
		return fmt.Errorf("创建托盘图标失败: %w", err)
	}

	a.mu.Lock()
	a.icon = icon
	a.mu.Unlock()

	a.applyTrayConfig(cfg)

	if a.backend.Menu != nil {
		if err := icon.SetContextMenu(a.backend.Menu); err != nil {
			a.logger.Warn("⚠️ [托盘] 设置上下文菜单失败", "error", err)
		}
	}

	popup := shell.NewNotificationSurface(a.logger, "traykit", a.statusSummary)
	if err := icon.SetTrayPopup(popup); err != nil {
		return fmt.Errorf("设置托盘弹窗失败: %w", err)
	}
	a.mu.Lock()
	a.popup = popup
	a.mu.Unlock()

	icon.SetLeftClickCommand(tray.ClickBinding{Command: tray.CommandFunc(a.onLeftClick)})
	icon.SetDoubleClickCommand(tray.ClickBinding{Command: tray.CommandFunc(a.onDoubleClick)})
	a.registerTrayListeners(icon)

	a.logger.Info("✅ [托盘] 图标已创建",
		"created", icon.IsTaskbarIconCreated(),
		"version", icon.State().Version)
	return nil
}

// iconData 读取配置的图标文件，失败或未配置时使用内置图标
func (a *App) iconData(path string) []byte {
	if path == "" {
		return trayIcon
	}
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn("⚠️ [托盘] 读取图标文件失败，使用内置图标", "path", path, "error", err)
		return trayIcon
	}
	return data
}

// applyTrayConfig 把托盘配置应用到控制器（启动与热重载共用）
func (a *App) applyTrayConfig(cfg *config.Config) {
	icon := a.trayIcon()
	if icon == nil {
		return
	}

	icon.SetToolTipText(cfg.Tray.ToolTip)

	// 配置已校验，解析失败时保留当前设置
	if mode, err := tray.ParseActivationMode(cfg.Tray.PopupActivation); err == nil {
		icon.SetPopupActivation(mode)
	}
	if mode, err := tray.ParseActivationMode(cfg.Tray.MenuActivation); err == nil {
		icon.SetMenuActivation(mode)
	}
	if anim, err := tray.ParseAnimation(cfg.Tray.PopupAnimation); err == nil {
		icon.SetPopupAnimation(anim)
	}
}

// setupControl 创建本地控制接口
func (a *App) setupControl() {
	cc := a.config.Control
	if !cc.Enabled {
		a.logger.Info("ℹ️ [控制接口] 已禁用")
		return
	}

	logger := a.logger
	a.control = api.New(api.Options{
		Logger:         logger,
		Tray:           a.icon,
		Logs:           a.logHandler,
		Metrics:        cc.Metrics,
		MaxConnections: cc.MaxConnections,
		BalloonTimeout: a.config.Tray.BalloonTimeout,
		NewBalloon: func(title, message string) tray.Surface {
			return shell.NewNotificationSurface(logger, title, func() string { return message })
		},
		OnToolTipSaved: a.saveToolTip,
	})
}

// setupConfigReload 设置配置热重载
func (a *App) setupConfigReload() {
	if a.configWatcher == nil {
		return
	}

	a.configWatcher.AddReloadCallback(func(newCfg *config.Config) {
		a.mu.Lock()
		a.config = newCfg
		a.mu.Unlock()

		// 日志、调度器与控制接口需重启后生效
		a.applyTrayConfig(newCfg)
		a.logger.Info("🔄 托盘配置已重新应用")
	})

	a.logger.Info("🔄 配置热重载已启用")
}

// trayIcon 当前托盘控制器，关闭后为 nil
func (a *App) trayIcon() *tray.Icon {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.icon
}

// notify 在托盘图标上显示标准气泡
func (a *App) notify(title, message string, symbol tray.BalloonIcon) {
	if icon := a.trayIcon(); icon != nil {
		icon.ShowBalloonTip(title, message, symbol)
	}
}

// exitHooks 宿主的退出通知，按注册顺序执行
type exitHooks struct {
	mu    sync.Mutex
	hooks []*exitHook
	fired bool
}

type exitHook struct {
	fn      func()
	removed bool
}

// OnExit 注册退出回调；已经退出时立即执行
func (h *exitHooks) OnExit(fn func()) func() {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		fn()
		return func() {}
	}
	hook := &exitHook{fn: fn}
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		hook.removed = true
		h.mu.Unlock()
	}
}

// fire 执行尚未注销的回调，只执行一次
func (h *exitHooks) fire() {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, hook := range hooks {
		h.mu.Lock()
		removed := hook.removed
		h.mu.Unlock()
		if !removed {
			hook.fn()
		}
	}
}
