package service

import (
	"context"
	"strings"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/payment/paypal"
	"github.com/botdesk-next/internal/repository"

	"gorm.io/gorm"
)

// PayoutGateway 付款网关能力，*paypal.Client 实现该接口
type PayoutGateway interface {
	SendPayout(ctx context.Context, input paypal.PayoutInput) (*paypal.PayoutResult, error)
	GetPayoutStatus(ctx context.Context, batchID string) (*paypal.PayoutStatus, error)
}

// PayoutService 自助结算与管理端结算处理
type PayoutService struct {
	cfg          config.PayoutConfig
	currency     string
	repo         repository.AffiliateRepository
	payoutRepo   repository.PayoutRepository
	referralRepo repository.ReferralRepository
	userRepo     repository.UserRepository
	gateway      PayoutGateway
	notifier     *NotificationService
	now          func() time.Time
}

// NewPayoutService 创建结算服务
func NewPayoutService(
	cfg config.PayoutConfig,
	affiliateCfg config.AffiliateConfig,
	repo repository.AffiliateRepository,
	payoutRepo repository.PayoutRepository,
	referralRepo repository.ReferralRepository,
	userRepo repository.UserRepository,
	gateway PayoutGateway,
	notifier *NotificationService,
) *PayoutService {
	return &PayoutService{
		cfg:          cfg,
		currency:     normalizeCurrency(affiliateCfg.Currency),
		repo:         repo,
		payoutRepo:   payoutRepo,
		referralRepo: referralRepo,
		userRepo:     userRepo,
		gateway:      gateway,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPayoutInput 管理端手动结算参数
type ProcessPayoutInput struct {
	PayoutID      uint
	AdminID       uint
	TransactionID string
	Notes         string
}

// FailPayoutInput 管理端驳回结算参数
type FailPayoutInput struct {
	PayoutID uint
	AdminID  uint
	Notes    string
}

// RequestPayout 自助申请结算：门槛校验与余额预扣在同一事务内完成
func (s *PayoutService) RequestPayout(userID uint, rawMethod string) (*models.Payout, error) {
	method, err := normalizePayoutMethod(rawMethod)
	if err != nil {
		return nil, err
	}

	var payout *models.Payout
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		affiliate, err := affiliateRepo.GetByUserIDForUpdate(userID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		if affiliate.Status != constants.AffiliateStatusActive {
			return ErrAffiliateSuspended
		}
		// 批量结算进行中时余额尚未扣减，必须等其完成
		inFlight, err := payoutRepo.CountInFlight(affiliate.ID, []string{constants.PayoutStatusProcessing})
		if err != nil {
			return err
		}
		if inFlight > 0 {
			return ErrPayoutInFlight
		}

		destination := payoutDestination(affiliate, method)
		if destination == "" {
			return ErrPayoutDestinationMissing
		}
		if err := checkPayoutThreshold(affiliate, s.currency); err != nil {
			return err
		}

		now := s.now()
		amount := affiliate.PendingEarnings
		rows, err := affiliateRepo.ReservePending(affiliate.ID, amount, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}
		payout = &models.Payout{
			AffiliateID: affiliate.ID,
			Amount:      amount,
			Currency:    s.currency,
			Method:      method,
			Destination: destination,
			Status:      constants.PayoutStatusPending,
			Reserved:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := payoutRepo.Create(payout); err != nil {
			return err
		}
		if _, err := referralRepo.CaptureForPayout(affiliate.ID, payout.ID); err != nil {
			return err
		}
		updated, err := affiliateRepo.GetByID(affiliate.ID)
		if err != nil {
			return err
		}
		if !updated.Balanced() {
			return ErrLedgerImbalanced
		}
		payout.Affiliate = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("payout_requested",
		"payout_id", payout.ID,
		"affiliate_id", payout.AffiliateID,
		"amount", payout.Amount.String(),
		"method", payout.Method,
	)
	s.notify(buildPayoutRequestedNotification(payout, lookupUserEmail(s.userRepo, userID)))
	return payout, nil
}

// GetPendingPayouts 待处理结算单
func (s *PayoutService) GetPendingPayouts(page, pageSize int) ([]models.Payout, int64, error) {
	return s.payoutRepo.List(repository.PayoutListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   constants.PayoutStatusPending,
	})
}

// ListPayouts 管理端结算单列表
func (s *PayoutService) ListPayouts(filter repository.PayoutListFilter) ([]models.Payout, int64, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	if filter.Status != "" && !isPayoutStatus(filter.Status) {
		return nil, 0, ErrPayoutStatusInvalid
	}
	return s.payoutRepo.List(filter)
}

// ListAffiliatePayouts 用户查看自己的结算记录
func (s *PayoutService) ListAffiliatePayouts(userID uint, page, pageSize int) ([]models.Payout, int64, error) {
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	if affiliate == nil {
		return nil, 0, ErrAffiliateNotFound
	}
	return s.payoutRepo.List(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliate.ID,
	})
}

// GetPayout 查询结算单
func (s *PayoutService) GetPayout(payoutID uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

// ProcessPayout 管理端确认线下或人工打款完成
func (s *PayoutService) ProcessPayout(input ProcessPayoutInput) (*models.Payout, error) {
	transactionID := strings.TrimSpace(input.TransactionID)
	notes := strings.TrimSpace(input.Notes)

	var payoutID uint
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		payout, err := payoutRepo.GetByIDForUpdate(input.PayoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if models.IsPayoutTerminal(payout.Status) {
			return ErrPayoutStatusInvalid
		}

		now := s.now()
		if payout.Status == constants.PayoutStatusPending {
			rows, err := payoutRepo.Transit(payout.ID, constants.PayoutStatusPending, constants.PayoutStatusProcessing, map[string]interface{}{
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrPayoutConflict
			}
		}
		updates := map[string]interface{}{
			"paid_at":    now,
			"updated_at": now,
		}
		if input.AdminID != 0 {
			updates["processed_by"] = input.AdminID
		}
		if transactionID != "" {
			updates["transaction_id"] = transactionID
		}
		if notes != "" {
			updates["notes"] = notes
		}
		rows, err := payoutRepo.Transit(payout.ID, constants.PayoutStatusProcessing, constants.PayoutStatusPaid, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}

		if payout.Reserved {
			if err := affiliateRepo.TouchLastPayout(payout.AffiliateID, now); err != nil {
				return err
			}
		} else {
			rows, err := affiliateRepo.SettlePending(payout.AffiliateID, payout.Amount, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrPayoutConflict
			}
		}
		if _, err := referralRepo.MarkPaidByPayout(payout.ID); err != nil {
			return err
		}
		payoutID = payout.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.GetPayout(payoutID)
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_processed",
		"payout_id", payout.ID,
		"affiliate_id", payout.AffiliateID,
		"amount", payout.Amount.String(),
		"admin_id", input.AdminID,
	)
	if payout.Affiliate != nil {
		s.notify(buildPayoutPaidNotification(payout, lookupUserEmail(s.userRepo, payout.Affiliate.UserID)))
	}
	return payout, nil
}

// FailPayout 管理端驳回结算单，退回预扣余额并解除推荐记录绑定
func (s *PayoutService) FailPayout(input FailPayoutInput) (*models.Payout, error) {
	notes := strings.TrimSpace(input.Notes)
	var payoutID uint
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		payout, err := payoutRepo.GetByIDForUpdate(input.PayoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if models.IsPayoutTerminal(payout.Status) {
			return ErrPayoutStatusInvalid
		}

		now := s.now()
		// 待处理结算单先进入处理中，失败只能从处理中流转
		if payout.Status == constants.PayoutStatusPending {
			rows, err := payoutRepo.Transit(payout.ID, constants.PayoutStatusPending, constants.PayoutStatusProcessing, map[string]interface{}{
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrPayoutConflict
			}
		}
		updates := map[string]interface{}{"updated_at": now}
		if input.AdminID != 0 {
			updates["processed_by"] = input.AdminID
		}
		if notes != "" {
			updates["notes"] = notes
		}
		rows, err := payoutRepo.Transit(payout.ID, constants.PayoutStatusProcessing, constants.PayoutStatusFailed, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPayoutConflict
		}
		if payout.Reserved {
			rows, err := affiliateRepo.RestoreReserved(payout.AffiliateID, payout.Amount, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrPayoutConflict
			}
		}
		if _, err := referralRepo.ReleaseByPayout(payout.ID); err != nil {
			return err
		}
		payoutID = payout.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.GetPayout(payoutID)
	if err != nil {
		return nil, err
	}
	logger.Warnw("payout_failed_by_admin", "payout_id", payout.ID, "affiliate_id", payout.AffiliateID, "admin_id", input.AdminID)
	if payout.Affiliate != nil {
		s.notify(buildPayoutFailedNotification(payout, lookupUserEmail(s.userRepo, payout.Affiliate.UserID)))
	}
	return payout, nil
}

// GetGatewayStatus 查询结算单在网关侧的批次状态
func (s *PayoutService) GetGatewayStatus(ctx context.Context, payoutID uint) (*paypal.PayoutStatus, error) {
	payout, err := s.GetPayout(payoutID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(payout.BatchID) == "" {
		return nil, ErrPayoutNoBatch
	}
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout(s.cfg))
	defer cancel()
	return s.gateway.GetPayoutStatus(ctx, payout.BatchID)
}

func (s *PayoutService) notify(input NotificationEnqueueInput) {
	if err := s.notifier.Enqueue(input); err != nil {
		logger.Warnw("payout_notification_enqueue_failed", "event_type", input.EventType, "dedupe_key", input.DedupeKey, "error", err)
	}
}

// checkPayoutThreshold 余额不足时返回带差额的错误
func checkPayoutThreshold(affiliate *models.Affiliate, currency string) error {
	if shortfall := payoutShortfall(affiliate); shortfall > 0 {
		return &PayoutShortfallError{Shortfall: shortfall, Currency: currency}
	}
	if affiliate.PendingEarnings <= 0 {
		return ErrPayoutBelowThreshold
	}
	return nil
}

func payoutDestination(affiliate *models.Affiliate, method string) string {
	switch method {
	case constants.PayoutMethodPayPal:
		return strings.TrimSpace(affiliate.PayPalEmail)
	case constants.PayoutMethodBank:
		return strings.TrimSpace(affiliate.BankAccount)
	default:
		return ""
	}
}

func normalizePayoutMethod(raw string) (string, error) {
	method := strings.ToLower(strings.TrimSpace(raw))
	switch method {
	case "":
		return constants.PayoutMethodPayPal, nil
	case constants.PayoutMethodPayPal, constants.PayoutMethodBank:
		return method, nil
	default:
		return "", ErrPayoutMethodInvalid
	}
}

func isPayoutStatus(status string) bool {
	switch status {
	case constants.PayoutStatusPending, constants.PayoutStatusProcessing, constants.PayoutStatusPaid, constants.PayoutStatusFailed:
		return true
	default:
		return false
	}
}

func gatewayTimeout(cfg config.PayoutConfig) time.Duration {
	if cfg.GatewayTimeoutSeconds > 0 {
		return time.Duration(cfg.GatewayTimeoutSeconds) * time.Second
	}
	return 20 * time.Second
}
