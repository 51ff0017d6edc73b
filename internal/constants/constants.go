package constants

// 推广账户状态
const (
	AffiliateStatusActive    = "active"
	AffiliateStatusSuspended = "suspended"
)

// 推荐记录状态
const (
	ReferralStatusPending   = "pending"
	ReferralStatusConverted = "converted"
)

// 结算单状态
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusPaid       = "paid"
	PayoutStatusFailed     = "failed"
)

// 结算方式
const (
	PayoutMethodPayPal = "paypal"
	PayoutMethodBank   = "bank"
)

// 批量结算触发方式
const (
	PayoutTriggerCron   = "cron"
	PayoutTriggerManual = "manual"
	PayoutTriggerCLI    = "cli"
)

// 批量结算运行状态
const (
	PayoutRunStatusRunning   = "running"
	PayoutRunStatusCompleted = "completed"
	PayoutRunStatusFailed    = "failed"
)

// 批量结算单项结果
const (
	PayoutItemResultPaid    = "paid"
	PayoutItemResultFailed  = "failed"
	PayoutItemResultSkipped = "skipped"
)

// 通知事件状态
const (
	NotificationStatusPending = "pending"
	NotificationStatusSending = "sending"
	NotificationStatusSent    = "sent"
	NotificationStatusSkipped = "skipped"
	NotificationStatusFailed  = "failed"
)

// 通知事件类型
const (
	NotificationEventReferralConverted = "referral_converted"
	NotificationEventPayoutRequested   = "payout_requested"
	NotificationEventPayoutPaid        = "payout_paid"
	NotificationEventPayoutFailed      = "payout_failed"
	NotificationEventPayoutRunSummary  = "payout_run_summary"
)

// 用户状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 分布式租约名称
const (
	LeaseNamePayoutBatch = "payout_batch"
)

// 队列与任务
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskNotificationDispatch = "notification:dispatch"
	TaskPayoutBatchRun       = "payout:batch_run"
)
