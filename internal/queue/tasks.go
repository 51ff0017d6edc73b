package queue

import (
	"encoding/json"

	"github.com/botdesk-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskNotificationDispatch 通知投递任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskPayoutBatchRun 批量结算任务
	TaskPayoutBatchRun = constants.TaskPayoutBatchRun
)

// NotificationDispatchPayload 通知投递任务载荷
type NotificationDispatchPayload struct {
	EventID uint `json:"event_id"`
	Attempt int  `json:"attempt"`
}

// PayoutBatchRunPayload 批量结算任务载荷
type PayoutBatchRunPayload struct {
	Trigger string `json:"trigger"`
}

// NewNotificationDispatchTask 创建通知投递任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}

// NewPayoutBatchRunTask 创建批量结算任务
func NewPayoutBatchRunTask(payload PayoutBatchRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutBatchRun, body), nil
}
