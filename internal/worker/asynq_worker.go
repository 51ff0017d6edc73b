package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/provider"
	"github.com/botdesk-next/internal/queue"
	"github.com/botdesk-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskPayoutBatchRun, c.handlePayoutBatchRun)
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.EventID == 0 {
		logger.Debugw("worker_notification_dispatch_skip_invalid_payload", "event_id", payload.EventID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_notification_dispatch_skip_service_nil", "event_id", payload.EventID)
		return nil
	}
	// 发送失败由发件箱记录并重排，这里只暴露基础设施错误
	if err := c.NotificationService.Dispatch(ctx, payload.EventID); err != nil {
		logger.Warnw("worker_notification_dispatch_failed", "event_id", payload.EventID, "attempt", payload.Attempt, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handlePayoutBatchRun(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_batch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutBatchRunPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_payout_batch_unmarshal_failed", "error", err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
	}
	trigger := strings.TrimSpace(payload.Trigger)
	if trigger == "" {
		trigger = constants.PayoutTriggerCron
	}
	if c.PayoutBatchService == nil {
		logger.Warnw("worker_payout_batch_skip_service_nil", "trigger", trigger)
		return nil
	}
	run, err := c.PayoutBatchService.Run(ctx, trigger)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutRunInProgress):
			logger.Infow("worker_payout_batch_skip_in_progress", "trigger", trigger)
			return nil
		case errors.Is(err, service.ErrPayoutTriggerInvalid):
			logger.Warnw("worker_payout_batch_invalid_trigger", "trigger", trigger)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		default:
			logger.Warnw("worker_payout_batch_failed", "trigger", trigger, "error", err)
			return err
		}
	}
	logger.Infow("worker_payout_batch_done", "trigger", trigger, "run_id", run.ID, "status", run.Status)
	return nil
}
