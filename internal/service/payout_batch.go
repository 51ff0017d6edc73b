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
	"github.com/botdesk-next/internal/payment/paypal"
	"github.com/botdesk-next/internal/queue"
	"github.com/botdesk-next/internal/repository"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	defaultPayoutLockTTL   = 2 * time.Hour
	defaultPayoutItemDelay = time.Second
	defaultPayoutMemo      = "Affiliate commission payout"
	leaseReleaseTimeout    = 5 * time.Second
	maxRunErrorLength      = 1000
)

// PayoutRunItem 批量结算逐项明细
type PayoutRunItem struct {
	AffiliateID uint         `json:"affiliate_id"`
	PayoutID    uint         `json:"payout_id,omitempty"`
	Amount      models.Cents `json:"amount"`
	Result      string       `json:"result"`
	BatchID     string       `json:"batch_id,omitempty"`
	Simulated   bool         `json:"simulated,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// PayoutTriggerResult 手动触发结果
type PayoutTriggerResult struct {
	Mode    string `json:"mode"` // queued / started
	Trigger string `json:"trigger"`
}

// PayoutSchedule 批量结算计划
type PayoutSchedule struct {
	Cron      string            `json:"cron"`
	Timezone  string            `json:"timezone"`
	NextRunAt time.Time         `json:"next_run_at"`
	LatestRun *models.PayoutRun `json:"latest_run,omitempty"`
}

// PayoutBatchService 批量结算编排：租约互斥、串行限速、逐项隔离失败
type PayoutBatchService struct {
	cfg          config.PayoutConfig
	currency     string
	repo         repository.AffiliateRepository
	payoutRepo   repository.PayoutRepository
	referralRepo repository.ReferralRepository
	runRepo      repository.PayoutRunRepository
	userRepo     repository.UserRepository
	gateway      PayoutGateway
	locker       *RunLocker
	notifier     *NotificationService
	queueClient  *queue.Client
	now          func() time.Time
}

// NewPayoutBatchService 创建批量结算服务
func NewPayoutBatchService(
	cfg config.PayoutConfig,
	affiliateCfg config.AffiliateConfig,
	repo repository.AffiliateRepository,
	payoutRepo repository.PayoutRepository,
	referralRepo repository.ReferralRepository,
	runRepo repository.PayoutRunRepository,
	userRepo repository.UserRepository,
	gateway PayoutGateway,
	locker *RunLocker,
	notifier *NotificationService,
	queueClient *queue.Client,
) *PayoutBatchService {
	return &PayoutBatchService{
		cfg:          cfg,
		currency:     normalizeCurrency(affiliateCfg.Currency),
		repo:         repo,
		payoutRepo:   payoutRepo,
		referralRepo: referralRepo,
		runRepo:      runRepo,
		userRepo:     userRepo,
		gateway:      gateway,
		locker:       locker,
		notifier:     notifier,
		queueClient:  queueClient,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Trigger 触发一次批量结算：队列可用时入队，否则在后台协程执行
func (s *PayoutBatchService) Trigger(trigger string) (*PayoutTriggerResult, error) {
	if !isPayoutTrigger(trigger) {
		return nil, ErrPayoutTriggerInvalid
	}
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueuePayoutBatchRun(queue.PayoutBatchRunPayload{Trigger: trigger}, s.lockTTL()); err != nil {
			return nil, err
		}
		logger.Infow("payout_batch_queued", "trigger", trigger)
		return &PayoutTriggerResult{Mode: "queued", Trigger: trigger}, nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL())
		defer cancel()
		if _, err := s.Run(ctx, trigger); err != nil && !errors.Is(err, ErrPayoutRunInProgress) {
			logger.Errorw("payout_batch_background_failed", "trigger", trigger, "error", err)
		}
	}()
	return &PayoutTriggerResult{Mode: "started", Trigger: trigger}, nil
}

// Run 执行一次批量结算；已有运行中的批次时返回 ErrPayoutRunInProgress 且不产生任何结算单
func (s *PayoutBatchService) Run(ctx context.Context, trigger string) (run *models.PayoutRun, err error) {
	if !isPayoutTrigger(trigger) {
		return nil, ErrPayoutTriggerInvalid
	}
	if ctx == nil {
		ctx = context.Background()
	}
	lease, err := s.locker.Acquire(ctx, s.lockTTL())
	if err != nil {
		if errors.Is(err, ErrRunLockHeld) {
			logger.Infow("payout_batch_skipped_locked", "trigger", trigger)
			return nil, ErrPayoutRunInProgress
		}
		return nil, err
	}
	log := logger.SW("trigger", trigger, "holder", lease.Holder(), "lock_backend", lease.Backend())
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
		defer cancel()
		if releaseErr := lease.Release(releaseCtx); releaseErr != nil {
			log.Warnw("payout_batch_lock_release_failed", "error", releaseErr)
		}
	}()

	startedAt := s.now()
	run = &models.PayoutRun{
		Trigger:   trigger,
		Status:    constants.PayoutRunStatusRunning,
		Holder:    lease.Holder(),
		Detail:    models.JSON{},
		StartedAt: startedAt,
		CreatedAt: startedAt,
		UpdatedAt: startedAt,
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, err
	}
	log = log.With("run_id", run.ID)
	log.Infow("payout_batch_started")

	items := make([]PayoutRunItem, 0)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("payout_batch_panic", "panic", r)
			err = fmt.Errorf("payout run %d panicked: %v", run.ID, r)
			run.Status = constants.PayoutRunStatusFailed
			run.Error = truncateRunError(err.Error())
		}
		s.finishRun(run, items)
	}()

	if readyErr := s.gatewayReady(); readyErr != nil {
		log.Errorw("payout_batch_gateway_not_ready", "error", readyErr)
		run.Status = constants.PayoutRunStatusFailed
		run.Error = truncateRunError(readyErr.Error())
		return run, readyErr
	}

	candidates, listErr := s.repo.ListBatchEligible()
	if listErr != nil {
		run.Status = constants.PayoutRunStatusFailed
		run.Error = truncateRunError(listErr.Error())
		return run, listErr
	}
	run.Eligible = len(candidates)

	limiter := s.newLimiter()
	for i := range candidates {
		if waitErr := limiter.Wait(ctx); waitErr != nil {
			run.Error = truncateRunError("stopped: " + waitErr.Error())
			break
		}
		item := s.processItem(ctx, run.ID, candidates[i].ID)
		items = append(items, item)
		switch item.Result {
		case constants.PayoutItemResultPaid:
			run.SuccessCount++
			run.TotalAmount += item.Amount
			if item.Simulated {
				run.Simulated = true
			}
		case constants.PayoutItemResultFailed:
			run.FailureCount++
		default:
			run.SkippedCount++
		}

		if refreshErr := lease.Refresh(ctx, s.lockTTL()); refreshErr != nil {
			log.Errorw("payout_batch_lock_lost", "error", refreshErr)
			run.Error = truncateRunError("run lock lost: " + refreshErr.Error())
			break
		}
	}
	if run.Status == constants.PayoutRunStatusRunning {
		run.Status = constants.PayoutRunStatusCompleted
	}
	return run, nil
}

// gatewayReadiness 网关可选能力，批量开始前确认凭据或模拟配置可用
type gatewayReadiness interface {
	Ready() error
}

// gatewayReady 网关未就绪时整批不创建结算单，避免逐项失败与通知
func (s *PayoutBatchService) gatewayReady() error {
	checker, ok := s.gateway.(gatewayReadiness)
	if !ok {
		return nil
	}
	if err := checker.Ready(); err != nil {
		return fmt.Errorf("payout gateway not ready: %w", err)
	}
	return nil
}

// processItem 结算单个推广账户，任何错误都只影响当前项
func (s *PayoutBatchService) processItem(ctx context.Context, runID, affiliateID uint) (item PayoutRunItem) {
	item = PayoutRunItem{AffiliateID: affiliateID}
	log := logger.SW("run_id", runID, "affiliate_id", affiliateID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("payout_batch_item_panic", "payout_id", item.PayoutID, "panic", r)
			reason := fmt.Sprintf("panic: %v", r)
			if item.PayoutID != 0 && item.Result == "" {
				s.failItem(item.PayoutID, reason)
			}
			item.Result = constants.PayoutItemResultFailed
			item.Reason = reason
		}
	}()

	payout, recipient, skipReason, err := s.openItem(runID, affiliateID)
	if err != nil {
		log.Warnw("payout_batch_item_open_failed", "error", err)
		item.Result = constants.PayoutItemResultFailed
		item.Reason = err.Error()
		return item
	}
	if payout == nil {
		item.Result = constants.PayoutItemResultSkipped
		item.Reason = skipReason
		return item
	}
	item.PayoutID = payout.ID
	item.Amount = payout.Amount

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout(s.cfg))
	result, sendErr := s.gateway.SendPayout(gwCtx, paypal.PayoutInput{
		SenderBatchID: fmt.Sprintf("payout-%d", payout.ID),
		SenderItemID:  fmt.Sprintf("affiliate-%d", affiliateID),
		Receiver:      payout.Destination,
		Amount:        payout.Amount.String(),
		Currency:      payout.Currency,
		Note:          s.memo(),
		EmailSubject:  s.memo(),
	})
	cancel()

	if sendErr != nil {
		log.Warnw("payout_batch_item_gateway_failed", "payout_id", payout.ID, "error", sendErr)
		reason := truncateRunError(sendErr.Error())
		s.failItem(payout.ID, reason)
		item.Result = constants.PayoutItemResultFailed
		item.Reason = reason
		payout.Status = constants.PayoutStatusFailed
		s.notify(buildPayoutFailedNotification(payout, recipient))
		return item
	}

	if err := s.settleItem(payout, result); err != nil {
		// 网关已受理但账务未落地，结算单保持 processing 待人工对账
		log.Errorw("payout_batch_item_reconcile_failed", "payout_id", payout.ID, "batch_id", result.BatchID, "error", err)
		item.Result = constants.PayoutItemResultFailed
		item.BatchID = result.BatchID
		item.Reason = "settlement not recorded: " + err.Error()
		return item
	}
	item.Result = constants.PayoutItemResultPaid
	item.BatchID = result.BatchID
	item.Simulated = result.Simulated
	log.Infow("payout_batch_item_paid", "payout_id", payout.ID, "amount", payout.Amount.String(), "batch_id", result.BatchID, "simulated", result.Simulated)

	payout.Status = constants.PayoutStatusPaid
	payout.BatchID = result.BatchID
	payout.TransactionID = result.BatchID
	payout.Simulated = result.Simulated
	s.notify(buildPayoutPaidNotification(payout, recipient))
	return item
}

// openItem 在事务内复核资格并创建 processing 结算单，返回 nil 结算单表示跳过
func (s *PayoutBatchService) openItem(runID, affiliateID uint) (*models.Payout, string, string, error) {
	var payout *models.Payout
	var recipientUserID uint
	skipReason := ""
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		affiliate, err := affiliateRepo.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if reason := batchIneligibleReason(affiliate); reason != "" {
			skipReason = reason
			return nil
		}
		inFlight, err := payoutRepo.CountInFlight(affiliate.ID, []string{constants.PayoutStatusProcessing})
		if err != nil {
			return err
		}
		if inFlight > 0 {
			skipReason = "payout already in flight"
			return nil
		}

		now := s.now()
		rid := runID
		payout = &models.Payout{
			AffiliateID: affiliate.ID,
			RunID:       &rid,
			Amount:      affiliate.PendingEarnings,
			Currency:    s.currency,
			Method:      constants.PayoutMethodPayPal,
			Destination: strings.TrimSpace(affiliate.PayPalEmail),
			Status:      constants.PayoutStatusProcessing,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := payoutRepo.Create(payout); err != nil {
			return err
		}
		if _, err := referralRepo.CaptureForPayout(affiliate.ID, payout.ID); err != nil {
			return err
		}
		recipientUserID = affiliate.UserID
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	if payout == nil {
		return nil, "", skipReason, nil
	}
	return payout, lookupUserEmail(s.userRepo, recipientUserID), "", nil
}

// settleItem 网关成功后落账：先推进结算单，再扣减待结算并标记推荐记录
func (s *PayoutBatchService) settleItem(payout *models.Payout, result *paypal.PayoutResult) error {
	return s.repo.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		updates := map[string]interface{}{
			"batch_id":       result.BatchID,
			"transaction_id": result.BatchID,
			"simulated":      result.Simulated,
			"paid_at":        now,
			"updated_at":     now,
		}
		if result.Simulated {
			updates["notes"] = "settled by simulated gateway"
		}
		rows, err := s.payoutRepo.WithTx(tx).Transit(payout.ID, constants.PayoutStatusProcessing, constants.PayoutStatusPaid, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}
		rows, err = s.repo.WithTx(tx).SettlePending(payout.AffiliateID, payout.Amount, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}
		_, err = s.referralRepo.WithTx(tx).MarkPaidByPayout(payout.ID)
		return err
	})
}

// failItem 网关失败：结算单置为 failed，余额保持不变，释放推荐记录绑定
func (s *PayoutBatchService) failItem(payoutID uint, reason string) {
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		rows, err := s.payoutRepo.WithTx(tx).Transit(payoutID, constants.PayoutStatusProcessing, constants.PayoutStatusFailed, map[string]interface{}{
			"notes":      reason,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}
		_, err = s.referralRepo.WithTx(tx).ReleaseByPayout(payoutID)
		return err
	})
	if err != nil {
		logger.Errorw("payout_batch_item_mark_failed_error", "payout_id", payoutID, "error", err)
	}
}

func (s *PayoutBatchService) finishRun(run *models.PayoutRun, items []PayoutRunItem) {
	finishedAt := s.now()
	run.FinishedAt = &finishedAt
	run.UpdatedAt = finishedAt
	run.Detail = models.JSON{"items": items}
	if err := s.runRepo.Update(run); err != nil {
		logger.Errorw("payout_batch_run_save_failed", "run_id", run.ID, "error", err)
	}
	logger.Infow("payout_batch_finished",
		"run_id", run.ID,
		"status", run.Status,
		"eligible", run.Eligible,
		"success", run.SuccessCount,
		"failed", run.FailureCount,
		"skipped", run.SkippedCount,
		"total_amount", run.TotalAmount.String(),
		"simulated", run.Simulated,
	)
	s.notify(buildPayoutRunSummaryNotification(run, s.currency, s.notifier.AdminEmail()))
}

// ListRuns 批量结算运行记录
func (s *PayoutBatchService) ListRuns(filter repository.PayoutRunListFilter) ([]models.PayoutRun, int64, error) {
	return s.runRepo.List(filter)
}

// GetRun 查询单次运行及其结算单
func (s *PayoutBatchService) GetRun(runID uint) (*models.PayoutRun, []models.Payout, error) {
	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, ErrPayoutRunNotFound
	}
	payouts, _, err := s.payoutRepo.List(repository.PayoutListFilter{RunID: run.ID})
	if err != nil {
		return nil, nil, err
	}
	return run, payouts, nil
}

// Schedule 返回 cron 计划与下一次执行时间
func (s *PayoutBatchService) Schedule() (*PayoutSchedule, error) {
	spec := queue.CronSpec(&s.cfg)
	loc, err := queue.LoadLocation(&s.cfg)
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	latest, err := s.runRepo.GetLatest()
	if err != nil {
		return nil, err
	}
	return &PayoutSchedule{
		Cron:      spec,
		Timezone:  loc.String(),
		NextRunAt: schedule.Next(s.now().In(loc)),
		LatestRun: latest,
	}, nil
}

func (s *PayoutBatchService) notify(input NotificationEnqueueInput) {
	if err := s.notifier.Enqueue(input); err != nil {
		logger.Warnw("payout_batch_notification_enqueue_failed", "event_type", input.EventType, "dedupe_key", input.DedupeKey, "error", err)
	}
}

// newLimiter 串行限速：首项立即执行，其后每项间隔固定延迟
func (s *PayoutBatchService) newLimiter() *rate.Limiter {
	delay := defaultPayoutItemDelay
	if s.cfg.InterItemDelayMS > 0 {
		delay = time.Duration(s.cfg.InterItemDelayMS) * time.Millisecond
	} else if s.cfg.InterItemDelayMS < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func (s *PayoutBatchService) lockTTL() time.Duration {
	if s.cfg.LockTTLSeconds > 0 {
		return time.Duration(s.cfg.LockTTLSeconds) * time.Second
	}
	return defaultPayoutLockTTL
}

func (s *PayoutBatchService) memo() string {
	if memo := strings.TrimSpace(s.cfg.Memo); memo != "" {
		return memo
	}
	return defaultPayoutMemo
}

// batchIneligibleReason 批量结算资格：启用、达到门槛、已配置 PayPal
func batchIneligibleReason(affiliate *models.Affiliate) string {
	switch {
	case affiliate == nil:
		return "affiliate not found"
	case affiliate.Status != constants.AffiliateStatusActive:
		return "affiliate not active"
	case !affiliate.HasPayPal():
		return "paypal email missing"
	case affiliate.PendingEarnings <= 0:
		return "nothing pending"
	case affiliate.PendingEarnings < affiliate.MinimumPayout:
		return "below minimum payout"
	default:
		return ""
	}
}

func isPayoutTrigger(trigger string) bool {
	switch trigger {
	case constants.PayoutTriggerCron, constants.PayoutTriggerManual, constants.PayoutTriggerCLI:
		return true
	default:
		return false
	}
}

func truncateRunError(message string) string {
	if len(message) <= maxRunErrorLength {
		return message
	}
	return message[:maxRunErrorLength]
}
