package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/queue"
	"github.com/botdesk-next/internal/repository"
)

const (
	defaultNotificationMaxAttempts = 5
	notificationBaseBackoff        = 30 * time.Second
	notificationMaxBackoff         = time.Hour
	notificationRelayBatch         = 100
)

// NotificationEnqueueInput 通知事件入队参数
type NotificationEnqueueInput struct {
	EventType string
	DedupeKey string
	Recipient string
	Subject   string
	Body      string
	Data      models.JSON
}

// NotificationUsage 通知投递概况
type NotificationUsage struct {
	Governor GovernorUsage    `json:"governor"`
	Outbox   map[string]int64 `json:"outbox"`
}

// NotificationService 通知发件箱：账务事务只写事件，投递与重试由消费者独立完成
type NotificationService struct {
	cfg         config.NotificationConfig
	repo        repository.NotificationRepository
	sender      MailSender
	governor    *SendGovernor
	queueClient *queue.Client
	now         func() time.Time
}

// NewNotificationService 创建通知服务
func NewNotificationService(
	cfg config.NotificationConfig,
	repo repository.NotificationRepository,
	sender MailSender,
	governor *SendGovernor,
	queueClient *queue.Client,
) *NotificationService {
	return &NotificationService{
		cfg:         cfg,
		repo:        repo,
		sender:      sender,
		governor:    governor,
		queueClient: queueClient,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AdminEmail 管理员通知地址
func (s *NotificationService) AdminEmail() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.cfg.AdminEmail)
}

// Enqueue 写入发件箱；同一去重键只保留一条
func (s *NotificationService) Enqueue(input NotificationEnqueueInput) error {
	if s == nil || s.repo == nil {
		return nil
	}
	eventType := strings.TrimSpace(input.EventType)
	if !isNotificationEventSupported(eventType) || strings.TrimSpace(input.DedupeKey) == "" {
		return ErrNotificationEventInvalid
	}
	recipient := strings.TrimSpace(input.Recipient)
	if recipient == "" {
		logger.Debugw("notification_enqueue_no_recipient", "event_type", eventType, "dedupe_key", input.DedupeKey)
		return nil
	}

	payload := models.JSON{"body": input.Body}
	if len(input.Data) > 0 {
		payload["data"] = map[string]interface{}(input.Data)
	}
	now := s.now()
	event := &models.NotificationEvent{
		EventType:     eventType,
		DedupeKey:     strings.TrimSpace(input.DedupeKey),
		Recipient:     recipient,
		Subject:       input.Subject,
		Payload:       payload,
		Status:        constants.NotificationStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.repo.Create(event)
	if err != nil {
		return err
	}
	if !created {
		logger.Debugw("notification_enqueue_duplicated", "event_type", eventType, "dedupe_key", event.DedupeKey)
		return nil
	}
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
			EventID: event.ID,
			Attempt: 1,
		}, 0); err != nil {
			// 事件已落库，中继循环会补投
			logger.Warnw("notification_enqueue_task_failed", "event_id", event.ID, "error", err)
		}
	}
	return nil
}

// Dispatch 投递单个事件；返回的错误只代表基础设施故障，发送失败会落到事件状态里
func (s *NotificationService) Dispatch(ctx context.Context, eventID uint) error {
	if s == nil || s.repo == nil || eventID == 0 {
		return nil
	}
	now := s.now()
	claimed, err := s.repo.Claim(eventID, now)
	if err != nil {
		return err
	}
	if claimed == 0 {
		return nil
	}
	event, err := s.repo.GetByID(eventID)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	log := logger.SW("event_id", event.ID, "event_type", event.EventType, "attempt", event.Attempts)

	slot, ok := s.governor.Reserve(ctx)
	if !ok {
		log.Warnw("notification_skipped_quota")
		return s.repo.MarkSkipped(event.ID, ErrNotificationQuotaExceeded.Error(), s.now())
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout())
	defer cancel()
	body, _ := event.Payload["body"].(string)
	sendErr := s.sender.SendText(sendCtx, event.Recipient, event.Subject, body)
	if sendErr == nil {
		log.Infow("notification_sent")
		return s.repo.MarkSent(event.ID, s.now())
	}
	// 配额只计成功发送
	s.governor.Release(ctx, slot)

	if isPermanentSendError(sendErr) {
		log.Warnw("notification_failed_permanent", "error", sendErr)
		if errors.Is(sendErr, ErrEmailServiceDisabled) {
			return s.repo.MarkSkipped(event.ID, sendErr.Error(), s.now())
		}
		return s.repo.MarkFailed(event.ID, sendErr.Error(), s.now())
	}
	if event.Attempts >= s.maxAttempts() {
		log.Warnw("notification_failed_exhausted", "error", sendErr)
		return s.repo.MarkFailed(event.ID, sendErr.Error(), s.now())
	}

	delay := notificationBackoff(event.Attempts)
	if err := s.repo.MarkRetry(event.ID, sendErr.Error(), s.now().Add(delay)); err != nil {
		return err
	}
	log.Warnw("notification_retry_scheduled", "error", sendErr, "delay", delay)
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
			EventID: event.ID,
			Attempt: event.Attempts + 1,
		}, delay); err != nil {
			log.Warnw("notification_retry_enqueue_failed", "error", err)
		}
	}
	return nil
}

// RelayDue 回收僵死事件并补投已到期事件，返回处理数量
func (s *NotificationService) RelayDue(ctx context.Context) (int, error) {
	if s == nil || s.repo == nil {
		return 0, nil
	}
	now := s.now()
	if reclaimed, err := s.repo.ReclaimStale(now.Add(-s.staleAfter()), now); err != nil {
		logger.Warnw("notification_reclaim_failed", "error", err)
	} else if reclaimed > 0 {
		logger.Warnw("notification_reclaimed_stale", "count", reclaimed)
	}

	due, err := s.repo.ListDue(now, notificationRelayBatch)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, event := range due {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		if s.queueClient.Enabled() {
			if err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
				EventID: event.ID,
				Attempt: event.Attempts + 1,
			}, 0); err != nil {
				logger.Warnw("notification_relay_enqueue_failed", "event_id", event.ID, "error", err)
				continue
			}
		} else if err := s.Dispatch(ctx, event.ID); err != nil {
			logger.Warnw("notification_relay_dispatch_failed", "event_id", event.ID, "error", err)
			continue
		}
		handled++
	}
	return handled, nil
}

// Usage 返回配额与发件箱统计
func (s *NotificationService) Usage(ctx context.Context) (*NotificationUsage, error) {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		return nil, err
	}
	return &NotificationUsage{
		Governor: s.governor.Usage(ctx),
		Outbox:   counts,
	}, nil
}

func (s *NotificationService) sendTimeout() time.Duration {
	if s.cfg.SendTimeoutSeconds > 0 {
		return time.Duration(s.cfg.SendTimeoutSeconds) * time.Second
	}
	return 15 * time.Second
}

func (s *NotificationService) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return defaultNotificationMaxAttempts
}

func (s *NotificationService) staleAfter() time.Duration {
	if s.cfg.SendingStaleSeconds > 0 {
		return time.Duration(s.cfg.SendingStaleSeconds) * time.Second
	}
	return 5 * time.Minute
}

// notificationBackoff 第 n 次失败后的等待时间，30s 起指数增长，封顶 1h
func notificationBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := notificationBaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= notificationMaxBackoff {
			return notificationMaxBackoff
		}
	}
	return delay
}

func isPermanentSendError(err error) bool {
	return errors.Is(err, ErrEmailServiceDisabled) ||
		errors.Is(err, ErrEmailServiceNotConfigured) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrEmailRecipientRejected)
}

func isNotificationEventSupported(eventType string) bool {
	switch eventType {
	case constants.NotificationEventReferralConverted,
		constants.NotificationEventPayoutRequested,
		constants.NotificationEventPayoutPaid,
		constants.NotificationEventPayoutFailed,
		constants.NotificationEventPayoutRunSummary:
		return true
	default:
		return false
	}
}

func buildReferralConvertedNotification(affiliate *models.Affiliate, referral *models.Referral, commission models.Cents, currency, recipient string) NotificationEnqueueInput {
	return NotificationEnqueueInput{
		EventType: constants.NotificationEventReferralConverted,
		DedupeKey: fmt.Sprintf("referral_converted:%d", referral.ID),
		Recipient: recipient,
		Subject:   "You earned a new referral commission",
		Body: fmt.Sprintf("Your referral %s converted.\nCommission credited: %s\nPending balance: %s\nAffiliate code: %s\n",
			maskEmail(referral.ReferredEmail),
			formatMoney(commission, currency),
			formatMoney(affiliate.PendingEarnings, currency),
			affiliate.AffiliateCode),
		Data: models.JSON{
			"affiliate_id": affiliate.ID,
			"referral_id":  referral.ID,
			"commission":   commission.String(),
		},
	}
}

func buildPayoutRequestedNotification(payout *models.Payout, recipient string) NotificationEnqueueInput {
	return NotificationEnqueueInput{
		EventType: constants.NotificationEventPayoutRequested,
		DedupeKey: fmt.Sprintf("payout_requested:%d", payout.ID),
		Recipient: recipient,
		Subject:   "Payout request received",
		Body: fmt.Sprintf("We received your payout request #%d for %s via %s.\nIt will be reviewed by our finance team.\n",
			payout.ID, formatMoney(payout.Amount, payout.Currency), payout.Method),
		Data: models.JSON{"payout_id": payout.ID, "amount": payout.Amount.String()},
	}
}

func buildPayoutPaidNotification(payout *models.Payout, recipient string) NotificationEnqueueInput {
	body := fmt.Sprintf("Your payout #%d of %s has been sent via %s.\n", payout.ID, formatMoney(payout.Amount, payout.Currency), payout.Method)
	if payout.TransactionID != "" {
		body += fmt.Sprintf("Reference: %s\n", payout.TransactionID)
	}
	return NotificationEnqueueInput{
		EventType: constants.NotificationEventPayoutPaid,
		DedupeKey: fmt.Sprintf("payout_paid:%d", payout.ID),
		Recipient: recipient,
		Subject:   "Your payout has been sent",
		Body:      body,
		Data: models.JSON{
			"payout_id": payout.ID,
			"amount":    payout.Amount.String(),
			"simulated": payout.Simulated,
		},
	}
}

func buildPayoutFailedNotification(payout *models.Payout, recipient string) NotificationEnqueueInput {
	return NotificationEnqueueInput{
		EventType: constants.NotificationEventPayoutFailed,
		DedupeKey: fmt.Sprintf("payout_failed:%d", payout.ID),
		Recipient: recipient,
		Subject:   "Your payout could not be completed",
		Body: fmt.Sprintf("Payout #%d of %s could not be completed.\nYour balance remains available for the next payout cycle.\n",
			payout.ID, formatMoney(payout.Amount, payout.Currency)),
		Data: models.JSON{"payout_id": payout.ID},
	}
}

func buildPayoutRunSummaryNotification(run *models.PayoutRun, currency, recipient string) NotificationEnqueueInput {
	var b strings.Builder
	fmt.Fprintf(&b, "Payout run #%d (%s) finished with status %s.\n", run.ID, run.Trigger, run.Status)
	fmt.Fprintf(&b, "Eligible: %d\nPaid: %d\nFailed: %d\nSkipped: %d\nTotal paid: %s\n",
		run.Eligible, run.SuccessCount, run.FailureCount, run.SkippedCount, formatMoney(run.TotalAmount, currency))
	if run.Simulated {
		b.WriteString("Some items were settled by the simulated gateway.\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	return NotificationEnqueueInput{
		EventType: constants.NotificationEventPayoutRunSummary,
		DedupeKey: fmt.Sprintf("payout_run_summary:%d", run.ID),
		Recipient: recipient,
		Subject:   fmt.Sprintf("Payout run #%d summary", run.ID),
		Body:      b.String(),
		Data: models.JSON{
			"run_id":        run.ID,
			"success_count": run.SuccessCount,
			"failure_count": run.FailureCount,
			"total_amount":  run.TotalAmount.String(),
		},
	}
}

func maskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local := email[:at]
	if len(local) <= 2 {
		return local[:1] + "***" + email[at:]
	}
	return local[:2] + "***" + email[at:]
}
