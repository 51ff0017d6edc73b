package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/provider"
	"github.com/botdesk-next/internal/service"
)

// 单次执行批量结算，供运维排障或外部调度使用
func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "单次批量结算最长执行时间")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	container := provider.NewContainer(cfg)
	code := runOnce(container, timeout)
	container.Close()
	os.Exit(code)
}

func runOnce(container *provider.Container, timeout time.Duration) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run, err := container.PayoutBatchService.Run(ctx, constants.PayoutTriggerCLI)
	if errors.Is(err, service.ErrPayoutRunInProgress) {
		logger.Warnw("payout_cli_skipped", "reason", "another run holds the lock")
		return 0
	}
	if err != nil {
		logger.Errorw("payout_cli_failed", "error", err)
		return 1
	}
	logger.Infow("payout_cli_finished",
		"run_id", run.ID,
		"status", run.Status,
		"skipped", run.SkippedCount,
		"succeeded", run.SuccessCount,
		"failed", run.FailureCount,
		"total", run.TotalAmount.String(),
		"simulated", run.Simulated,
	)
	if run.FailureCount > 0 {
		return 3
	}
	return 0
}
