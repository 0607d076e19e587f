package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"github.com/clober-dex/clober-market-maker-sub000/internal/container"
)

// 做市主进程。
// 用法：
//
//	go run ./cmd/runner -config config/example.yaml -dryRun
func main() {
	cfgPath := flag.String("config", "config/example.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "使用纸面撮合，不向 relayer 提交")
	flag.Parse()

	c, err := container.New(*cfgPath, container.Options{DryRun: *dryRun})
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		lg.Error("start failed", zap.Error(err))
		_ = c.Stop()
		os.Exit(1)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	}
	go watchdog(ctx, c)

	<-ctx.Done()
	lg.Info("shutdown signal received")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		log.Printf("stop: %v", err)
		os.Exit(1)
	}
}

// watchdog 在 systemd 启用 WatchdogSec 时按半周期上报，健康检查失败则不喂狗。
func watchdog(ctx context.Context, c *container.Container) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.Logger().Warn("health check failed", zap.Error(err))
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
