// main.go - traykit 托盘宿主入口
// 加载配置后在 UI 线程上运行托盘控制器与本地控制接口

package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"traykit/internal/dispatch"
)

// 版本信息
var (
	Version   = "1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// 命令行参数
var (
	configPath  = flag.String("config", "", "配置文件路径（默认位于应用数据目录）")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

// 嵌入托盘图标
//
//go:embed build/tray.ico
var trayIcon []byte

// 嵌入默认配置文件
//
//go:embed config/config.yaml
var defaultConfigContent []byte

func main() {
	flag.Parse()

	// 处理版本标志
	if *showVersion {
		fmt.Printf("traykit\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// 创建应用实例
	app := NewApp()
	app.configPath = *configPath
	if err := app.loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ 配置加载失败: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	run := func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "❌ traykit 异常退出: %v\n", err)
			exitCode = 1
		}
	}

	// main 调度器要求进程主线程处理 UI 任务
	if app.config.UI.Dispatcher == "main" {
		dispatch.Run(run)
	} else {
		run()
	}
	os.Exit(exitCode)
}
