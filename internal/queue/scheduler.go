package queue

import (
	"strings"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"

	"github.com/hibiken/asynq"
)

// NewPayoutScheduler 创建按 cron 推送批量结算任务的调度器
func NewPayoutScheduler(queueCfg *config.QueueConfig, payoutCfg *config.PayoutConfig) (*asynq.Scheduler, error) {
	loc, err := LoadLocation(payoutCfg)
	if err != nil {
		return nil, err
	}
	scheduler := asynq.NewScheduler(buildRedisOpt(queueCfg), &asynq.SchedulerOpts{Location: loc})
	task, err := NewPayoutBatchRunTask(PayoutBatchRunPayload{Trigger: constants.PayoutTriggerCron})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(CriticalQueue), asynq.MaxRetry(0)}
	if payoutCfg != nil && payoutCfg.LockTTLSeconds > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(payoutCfg.LockTTLSeconds)*time.Second))
	}
	if _, err := scheduler.Register(CronSpec(payoutCfg), task, opts...); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// LoadLocation 解析结算时区，默认 UTC
func LoadLocation(payoutCfg *config.PayoutConfig) (*time.Location, error) {
	if payoutCfg == nil || strings.TrimSpace(payoutCfg.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(strings.TrimSpace(payoutCfg.Timezone))
}

// CronSpec 结算 cron 表达式，未配置时每月 1 日 02:00
func CronSpec(payoutCfg *config.PayoutConfig) string {
	if payoutCfg == nil || strings.TrimSpace(payoutCfg.Cron) == "" {
		return "0 2 1 * *"
	}
	return strings.TrimSpace(payoutCfg.Cron)
}
