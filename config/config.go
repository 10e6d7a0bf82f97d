package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"traykit/internal/tray"
)

type Config struct {
	Tray    TrayConfig    `yaml:"tray"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
	Control ControlConfig `yaml:"control"`
}

// TrayConfig 托盘图标配置
type TrayConfig struct {
	ToolTip         string        `yaml:"tooltip"`           // 悬浮提示文本，默认: traykit
	IconPath        string        `yaml:"icon_path"`         // 图标文件（Windows 为 .ico），为空使用内置图标
	PopupActivation string        `yaml:"popup_activation"`  // 打开弹窗的鼠标操作，默认: left_click
	MenuActivation  string        `yaml:"menu_activation"`   // 打开菜单的鼠标操作，默认: right_click
	PopupAnimation  string        `yaml:"popup_animation"`   // none / fade / scroll / slide
	DoubleClickTime time.Duration `yaml:"double_click_time"` // 覆盖系统双击间隔，0=使用系统设置
	BalloonTimeout  time.Duration `yaml:"balloon_timeout"`   // 自定义气泡默认超时，0=不自动关闭，默认: 5s
	Notifications   bool          `yaml:"notifications"`     // 启动时弹出标准气泡
}

// UIConfig UI 线程配置
type UIConfig struct {
	// Dispatcher "main" 使用进程主线程，"loop" 使用独立 UI goroutine
	Dispatcher string `yaml:"dispatcher"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	FileEnabled bool   `yaml:"file_enabled"` // Enable file logging
	FilePath    string `yaml:"file_path"`    // Log file path
	MaxSizeMB   int    `yaml:"max_size_mb"`  // 单个日志文件大小上限，默认: 50
	MaxBackups  int    `yaml:"max_backups"`  // 保留的轮转文件数量，默认: 5
	MaxAgeDays  int    `yaml:"max_age_days"` // 轮转文件保留天数，默认: 30
	Compress    bool   `yaml:"compress"`     // Compress rotated log files
	BufferSize  int    `yaml:"buffer_size"`  // 内存中保留的最近日志条数，默认: 1000
}

// ControlConfig 本地控制接口配置
type ControlConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`            // 默认: 127.0.0.1
	Port           int    `yaml:"port"`            // 默认: 8765
	MaxConnections int    `yaml:"max_connections"` // 并发连接上限，默认: 32
	Metrics        bool   `yaml:"metrics"`         // 暴露 /metrics
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// control.enabled 未写时默认开启
	var raw struct {
		Control map[string]any `yaml:"control"`
	}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if _, ok := raw.Control["enabled"]; !ok {
			config.Control.Enabled = true
		}
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default 没有配置文件时使用的配置
func Default() *Config {
	c := &Config{Control: ControlConfig{Enabled: true}}
	c.setDefaults()
	return c
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Tray.ToolTip == "" {
		c.Tray.ToolTip = "traykit"
	}
	if c.Tray.PopupActivation == "" {
		c.Tray.PopupActivation = tray.ActivateLeftClick.String()
	}
	if c.Tray.MenuActivation == "" {
		c.Tray.MenuActivation = tray.ActivateRightClick.String()
	}
	if c.Tray.PopupAnimation == "" {
		c.Tray.PopupAnimation = tray.AnimationNone.String()
	}
	if c.Tray.BalloonTimeout == 0 {
		c.Tray.BalloonTimeout = 5 * time.Second
	}

	if c.UI.Dispatcher == "" {
		c.UI.Dispatcher = "main"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.FilePath == "" {
		// Windows: %APPDATA%\TrayKit\logs\traykit.log
		// macOS: ~/Library/Application Support/TrayKit/logs/traykit.log
		// Linux: ~/.local/share/traykit/logs/traykit.log
		c.Logging.FilePath = filepath.Join(getConfigAppDataDir(), "logs", "traykit.log")
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 30
	}
	if c.Logging.BufferSize == 0 {
		c.Logging.BufferSize = 1000
	}

	if c.Control.Host == "" {
		c.Control.Host = "127.0.0.1"
	}
	if c.Control.Port == 0 {
		c.Control.Port = 8765
	}
	if c.Control.MaxConnections == 0 {
		c.Control.MaxConnections = 32
	}
}

func (c *Config) validate() error {
	if _, err := tray.ParseActivationMode(c.Tray.PopupActivation); err != nil {
		return fmt.Errorf("tray.popup_activation: %w", err)
	}
	if _, err := tray.ParseActivationMode(c.Tray.MenuActivation); err != nil {
		return fmt.Errorf("tray.menu_activation: %w", err)
	}
	if _, err := tray.ParseAnimation(c.Tray.PopupAnimation); err != nil {
		return fmt.Errorf("tray.popup_animation: %w", err)
	}
	if c.Tray.DoubleClickTime < 0 {
		return fmt.Errorf("tray.double_click_time must not be negative")
	}
	if c.Tray.BalloonTimeout < 0 || (c.Tray.BalloonTimeout > 0 && c.Tray.BalloonTimeout < tray.MinBalloonTimeout) {
		return fmt.Errorf("tray.balloon_timeout must be 0 or at least %s", tray.MinBalloonTimeout)
	}

	switch c.UI.Dispatcher {
	case "main", "loop":
	default:
		return fmt.Errorf("ui.dispatcher must be 'main' or 'loop', got %q", c.UI.Dispatcher)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging rotation limits must not be negative")
	}

	if c.Control.Port < 1 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port must be between 1 and 65535, got %d", c.Control.Port)
	}
	if c.Control.MaxConnections < 1 {
		return fmt.Errorf("control.max_connections must be positive")
	}

	return nil
}

// reloadDebounce 编辑器保存时常连续写入多次，合并为一次重载
const reloadDebounce = 500 * time.Millisecond

// ConfigWatcher 监听配置文件并在变更后重新加载、通知回调。
// 监听的是文件所在目录：不少编辑器先写临时文件再改名覆盖，
// 直接监听文件会在第一次保存后丢失监听。
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	config    *Config
	logger    *slog.Logger
	callbacks []func(*Config)

	reload    *time.Timer
	done      chan struct{}
	closeOnce sync.Once
}

// NewConfigWatcher 加载配置并开始监听
func NewConfigWatcher(configPath string, logger *slog.Logger) (*ConfigWatcher, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	cw := &ConfigWatcher{
		path:    abs,
		watcher: watcher,
		config:  cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
	cw.reload = time.AfterFunc(time.Hour, cw.reloadNow)
	cw.reload.Stop()

	go cw.run()
	return cw, nil
}

// GetConfig 当前配置
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// UpdateLogger 日志系统初始化完成后替换启动阶段的临时日志器
func (cw *ConfigWatcher) UpdateLogger(logger *slog.Logger) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.logger = logger
}

func (cw *ConfigWatcher) log() *slog.Logger {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.logger
}

// AddReloadCallback 注册重载回调，按注册顺序调用
func (cw *ConfigWatcher) AddReloadCallback(callback func(*Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) run() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path {
				continue
			}
			// 删除或改名之后总会跟着一次创建
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.reload.Reset(reloadDebounce)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log().Error("⚠️ [配置] 文件监听错误", "error", err)
		}
	}
}

func (cw *ConfigWatcher) reloadNow() {
	select {
	case <-cw.done:
		return
	default:
	}

	logger := cw.log()
	logger.Info("🔄 [配置] 检测到文件变更，正在重新加载", "path", cw.path)
	if err := cw.reloadConfig(); err != nil {
		logger.Error("❌ [配置] 重新加载失败，保留当前配置", "error", err)
		return
	}
	logger.Info("✅ [配置] 重新加载成功")
}

// reloadConfig 读取新配置；解析或校验失败时不替换当前配置
func (cw *ConfigWatcher) reloadConfig() error {
	next, err := LoadConfig(cw.path)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	prev := cw.config
	cw.config = next
	callbacks := slices.Clone(cw.callbacks)
	cw.mu.Unlock()

	cw.logConfigChanges(prev, next)
	for _, callback := range callbacks {
		callback(next)
	}
	return nil
}

// logConfigChanges logs the key differences between old and new configurations
func (cw *ConfigWatcher) logConfigChanges(oldConfig, newConfig *Config) {
	logger := cw.log()
	if oldConfig.Tray.ToolTip != newConfig.Tray.ToolTip {
		logger.Info("💬 托盘提示文本变更",
			"old_tooltip", oldConfig.Tray.ToolTip,
			"new_tooltip", newConfig.Tray.ToolTip)
	}
	if oldConfig.Tray.PopupActivation != newConfig.Tray.PopupActivation ||
		oldConfig.Tray.MenuActivation != newConfig.Tray.MenuActivation {
		logger.Info("🖱️ 托盘激活方式变更",
			"popup", newConfig.Tray.PopupActivation,
			"menu", newConfig.Tray.MenuActivation)
	}
	if oldConfig.Tray.BalloonTimeout != newConfig.Tray.BalloonTimeout {
		logger.Info("🎈 气泡超时变更",
			"old_timeout", oldConfig.Tray.BalloonTimeout,
			"new_timeout", newConfig.Tray.BalloonTimeout)
	}
	if oldConfig.Logging.Level != newConfig.Logging.Level {
		logger.Info("📝 日志级别变更（重启后生效）",
			"old_level", oldConfig.Logging.Level,
			"new_level", newConfig.Logging.Level)
	}
	if oldConfig.Control != newConfig.Control {
		logger.Info("🌐 控制接口配置变更（重启后生效）",
			"host", newConfig.Control.Host,
			"port", newConfig.Control.Port)
	}
	if oldConfig.UI.Dispatcher != newConfig.UI.Dispatcher {
		logger.Info("🧵 UI 线程模式变更（重启后生效）",
			"old_dispatcher", oldConfig.UI.Dispatcher,
			"new_dispatcher", newConfig.UI.Dispatcher)
	}
}

// Close 停止监听，可重复调用
func (cw *ConfigWatcher) Close() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.done)
		cw.reload.Stop()
		err = cw.watcher.Close()
	})
	return err
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveTrayConfigWithComments 只更新 tray 段中的提示文本与激活方式，保留文件中的注释
func SaveTrayConfigWithComments(config *Config, path string) error {
	yamlFile, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing config file: %w", err)
	}

	var rootNode yaml.Node
	if len(yamlFile) > 0 {
		if err := yaml.Unmarshal(yamlFile, &rootNode); err != nil {
			return fmt.Errorf("failed to decode existing YAML: %w", err)
		}
	}
	if len(rootNode.Content) == 0 {
		// 文件不存在或为空，直接整体写出
		return SaveConfig(config, path)
	}

	updates := map[string]string{
		"tooltip":          config.Tray.ToolTip,
		"popup_activation": config.Tray.PopupActivation,
		"menu_activation":  config.Tray.MenuActivation,
	}

	mappingNode := rootNode.Content[0]
	trayNode := findMapValue(mappingNode, "tray")
	if trayNode == nil {
		trayNode = &yaml.Node{Kind: yaml.MappingNode}
		mappingNode.Content = append(mappingNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "tray"}, trayNode)
	}
	for _, key := range []string{"tooltip", "popup_activation", "menu_activation"} {
		if valueNode := findMapValue(trayNode, key); valueNode != nil {
			valueNode.Value = updates[key]
			continue
		}
		trayNode.Content = append(trayNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: updates[key]})
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	if err := encoder.Encode(&rootNode); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// findMapValue 在映射节点中查找 key 对应的值节点
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// DefaultConfigPath 未指定 -config 时使用的配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(getConfigAppDataDir(), "config.yaml")
}

// getConfigAppDataDir 获取应用数据目录（跨平台）
// Windows: %APPDATA%\TrayKit
// macOS: ~/Library/Application Support/TrayKit
// Linux: ~/.local/share/traykit
func getConfigAppDataDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(baseDir, "TrayKit")

	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "TrayKit")

	case "linux":
		homeDir, _ := os.UserHomeDir()
		xdgDataHome := os.Getenv("XDG_DATA_HOME")
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "traykit")
		}
		return filepath.Join(homeDir, ".local", "share", "traykit")

	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".traykit")
	}
}
