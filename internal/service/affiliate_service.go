package service

import (
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAffiliateCodeLength = 8
	affiliateCodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	affiliateCodeMaxRetry      = 8
)

// AffiliateService 推广账户与推荐转化服务
type AffiliateService struct {
	cfg          config.AffiliateConfig
	repo         repository.AffiliateRepository
	referralRepo repository.ReferralRepository
	payoutRepo   repository.PayoutRepository
	userRepo     repository.UserRepository
	notifier     *NotificationService
	now          func() time.Time
	genCode      func(length int) (string, error)
}

// NewAffiliateService 创建推广服务
func NewAffiliateService(
	cfg config.AffiliateConfig,
	repo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	payoutRepo repository.PayoutRepository,
	userRepo repository.UserRepository,
	notifier *NotificationService,
) *AffiliateService {
	return &AffiliateService{
		cfg:          cfg,
		repo:         repo,
		referralRepo: referralRepo,
		payoutRepo:   payoutRepo,
		userRepo:     userRepo,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		genCode:      generateAffiliateCode,
	}
}

// CreateAffiliateInput 开通推广账户参数
type CreateAffiliateInput struct {
	UserID      uint
	PayPalEmail string
	BankAccount string
}

// TrackReferralInput 推荐注册记录参数
type TrackReferralInput struct {
	AffiliateCode  string
	ReferredUserID uint
	ReferredEmail  string
}

// UpdatePaymentInfoInput 收款信息更新参数，nil 表示不修改
type UpdatePaymentInfoInput struct {
	PayPalEmail *string
	BankAccount *string
}

// ConversionResult 转化入账结果
type ConversionResult struct {
	Referral   *models.Referral  `json:"referral"`
	Affiliate  *models.Affiliate `json:"affiliate"`
	Commission models.Cents      `json:"commission"`
}

// AffiliateStats 推广账户概览
type AffiliateStats struct {
	Affiliate         *models.Affiliate `json:"affiliate"`
	Currency          string            `json:"currency"`
	TotalReferrals    int64             `json:"total_referrals"`
	ConvertedCount    int64             `json:"converted_referrals"`
	PendingReferrals  int64             `json:"pending_referrals"`
	UnpaidConversions int64             `json:"unpaid_conversions"`
	ConversionRate    float64           `json:"conversion_rate"`
	ReservedAmount    models.Cents      `json:"reserved_amount"`
	PayoutInFlight    bool              `json:"payout_in_flight"`
	PayoutEligible    bool              `json:"payout_eligible"`
	Shortfall         models.Cents      `json:"shortfall"`
}

// CreateAffiliate 为用户开通推广账户，每个用户至多一个
func (s *AffiliateService) CreateAffiliate(input CreateAffiliateInput) (*models.Affiliate, error) {
	if input.UserID == 0 {
		return nil, ErrNotFound
	}
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !user.IsActive() {
		return nil, ErrUserDisabled
	}

	existing, err := s.repo.GetByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAffiliateExists
	}

	paypalEmail, err := normalizePayPalEmail(input.PayPalEmail)
	if err != nil {
		return nil, err
	}
	rate, err := models.NewRate(s.cfg.DefaultCommissionRate)
	if err != nil {
		return nil, err
	}

	for i := 0; i < affiliateCodeMaxRetry; i++ {
		code, genErr := s.genCode(s.codeLength())
		if genErr != nil {
			return nil, genErr
		}
		now := s.now()
		affiliate := &models.Affiliate{
			UserID:         input.UserID,
			AffiliateCode:  code,
			PayPalEmail:    paypalEmail,
			BankAccount:    strings.TrimSpace(input.BankAccount),
			CommissionRate: rate,
			MinimumPayout:  models.Cents(s.cfg.MinimumPayoutCents),
			Status:         constants.AffiliateStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Create(affiliate); err != nil {
			if !isUniqueViolation(err) {
				return nil, err
			}
			// 唯一冲突可能来自并发开通，也可能是推广码碰撞
			if again, getErr := s.repo.GetByUserID(input.UserID); getErr == nil && again != nil {
				return nil, ErrAffiliateExists
			}
			logger.Debugw("affiliate_code_collision", "user_id", input.UserID, "attempt", i+1)
			continue
		}
		logger.Infow("affiliate_created", "affiliate_id", affiliate.ID, "user_id", affiliate.UserID)
		return affiliate, nil
	}
	return nil, ErrAffiliateCodeExhausted
}

// TrackReferral 记录一次推荐注册，同一被推荐用户只能归属一次
func (s *AffiliateService) TrackReferral(input TrackReferralInput) (*models.Referral, error) {
	code := strings.ToUpper(strings.TrimSpace(input.AffiliateCode))
	if code == "" {
		return nil, ErrAffiliateCodeInvalid
	}
	email := strings.TrimSpace(input.ReferredEmail)
	if input.ReferredUserID == 0 || !isValidEmail(email) {
		return nil, ErrReferralInputInvalid
	}

	affiliate, err := s.repo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateCodeInvalid
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return nil, ErrAffiliateSuspended
	}
	if affiliate.UserID == input.ReferredUserID {
		return nil, ErrReferralSelf
	}

	existing, err := s.referralRepo.GetByReferredUserID(input.ReferredUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReferralExists
	}

	now := s.now()
	referral := &models.Referral{
		AffiliateID:    affiliate.ID,
		ReferredUserID: input.ReferredUserID,
		ReferredEmail:  strings.ToLower(email),
		Status:         constants.ReferralStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.referralRepo.Create(referral); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrReferralExists
		}
		return nil, err
	}
	logger.Infow("referral_tracked", "referral_id", referral.ID, "affiliate_id", affiliate.ID, "referred_user_id", referral.ReferredUserID)
	return referral, nil
}

// ConvertReferral 被推荐用户首次付费时入账佣金，同一推荐只入账一次
func (s *AffiliateService) ConvertReferral(referredUserID uint, subscriptionAmount models.Cents) (*ConversionResult, error) {
	if referredUserID == 0 {
		return nil, ErrReferralNotFound
	}
	if subscriptionAmount <= 0 {
		return nil, ErrConversionAmountInvalid
	}

	result := &ConversionResult{}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		referral, err := referralRepo.GetByReferredUserIDForUpdate(referredUserID)
		if err != nil {
			return err
		}
		if referral == nil {
			return ErrReferralNotFound
		}
		if referral.Status == constants.ReferralStatusConverted {
			return ErrReferralAlreadyConverted
		}
		affiliate, err := affiliateRepo.GetByIDForUpdate(referral.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}

		commission := affiliate.CommissionRate.Apply(subscriptionAmount)
		now := s.now()
		rows, err := referralRepo.MarkConverted(referral.ID, commission, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrReferralAlreadyConverted
		}
		if commission > 0 {
			rows, err = affiliateRepo.CreditEarnings(affiliate.ID, commission, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrAffiliateNotFound
			}
		}

		if result.Referral, err = referralRepo.GetByID(referral.ID); err != nil {
			return err
		}
		if result.Affiliate, err = affiliateRepo.GetByID(affiliate.ID); err != nil {
			return err
		}
		if !result.Affiliate.Balanced() {
			return ErrLedgerImbalanced
		}
		result.Commission = commission
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("referral_converted",
		"referral_id", result.Referral.ID,
		"affiliate_id", result.Affiliate.ID,
		"subscription_amount", subscriptionAmount.String(),
		"commission", result.Commission.String(),
	)
	s.notify(buildReferralConvertedNotification(result.Affiliate, result.Referral, result.Commission, s.currency(), s.ownerEmail(result.Affiliate.UserID)))
	return result, nil
}

// GetAffiliateStats 获取推广账户概览
func (s *AffiliateService) GetAffiliateStats(userID uint) (*AffiliateStats, error) {
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	agg, err := s.referralRepo.StatsByAffiliate(affiliate.ID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.payoutRepo.SumReserved(affiliate.ID)
	if err != nil {
		return nil, err
	}
	inFlight, err := s.payoutRepo.CountInFlight(affiliate.ID, []string{constants.PayoutStatusProcessing})
	if err != nil {
		return nil, err
	}

	stats := &AffiliateStats{
		Affiliate:         affiliate,
		Currency:          s.currency(),
		TotalReferrals:    agg.TotalCount,
		ConvertedCount:    agg.ConvertedCount,
		PendingReferrals:  agg.PendingCount,
		UnpaidConversions: agg.UnpaidCount,
		ReservedAmount:    reserved,
		PayoutInFlight:    inFlight > 0,
	}
	if agg.TotalCount > 0 {
		stats.ConversionRate = float64(agg.ConvertedCount) / float64(agg.TotalCount)
	}
	if shortfall := payoutShortfall(affiliate); shortfall > 0 {
		stats.Shortfall = shortfall
	} else {
		stats.PayoutEligible = affiliate.Status == constants.AffiliateStatusActive && affiliate.PendingEarnings > 0
	}
	return stats, nil
}

// UpdatePaymentInfo 更新收款信息
func (s *AffiliateService) UpdatePaymentInfo(userID uint, input UpdatePaymentInfoInput) (*models.Affiliate, error) {
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	if input.PayPalEmail == nil && input.BankAccount == nil {
		return nil, ErrPaymentInfoInvalid
	}

	paypalEmail := affiliate.PayPalEmail
	if input.PayPalEmail != nil {
		if paypalEmail, err = normalizePayPalEmail(*input.PayPalEmail); err != nil {
			return nil, err
		}
	}
	bankAccount := affiliate.BankAccount
	if input.BankAccount != nil {
		bankAccount = strings.TrimSpace(*input.BankAccount)
		if len(bankAccount) > 255 {
			return nil, ErrPaymentInfoInvalid
		}
	}
	if err := s.repo.UpdatePaymentInfo(affiliate.ID, paypalEmail, bankAccount, s.now()); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_payment_info_updated", "affiliate_id", affiliate.ID,
		"paypal_set", paypalEmail != "", "bank_set", bankAccount != "")
	return s.repo.GetByID(affiliate.ID)
}

// ListAffiliates 管理端推广账户列表
func (s *AffiliateService) ListAffiliates(filter repository.AffiliateListFilter) ([]models.Affiliate, int64, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	if filter.Status != "" && !isAffiliateStatus(filter.Status) {
		return nil, 0, ErrAffiliateStatusInvalid
	}
	return s.repo.List(filter)
}

// UpdateAffiliateStatus 管理端启用或冻结推广账户
func (s *AffiliateService) UpdateAffiliateStatus(affiliateID uint, rawStatus string) (*models.Affiliate, error) {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	if !isAffiliateStatus(status) {
		return nil, ErrAffiliateStatusInvalid
	}
	rows, err := s.repo.UpdateStatus(affiliateID, status, s.now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrAffiliateNotFound
	}
	logger.Infow("affiliate_status_updated", "affiliate_id", affiliateID, "status", status)
	return s.repo.GetByID(affiliateID)
}

// ListReferrals 推荐记录列表
func (s *AffiliateService) ListReferrals(filter repository.ReferralListFilter) ([]models.Referral, int64, error) {
	return s.referralRepo.List(filter)
}

func (s *AffiliateService) notify(input NotificationEnqueueInput) {
	if err := s.notifier.Enqueue(input); err != nil {
		logger.Warnw("affiliate_notification_enqueue_failed", "event_type", input.EventType, "dedupe_key", input.DedupeKey, "error", err)
	}
}

func (s *AffiliateService) ownerEmail(userID uint) string {
	return lookupUserEmail(s.userRepo, userID)
}

func (s *AffiliateService) currency() string {
	return normalizeCurrency(s.cfg.Currency)
}

func (s *AffiliateService) codeLength() int {
	if s.cfg.CodeLength >= 6 && s.cfg.CodeLength <= 32 {
		return s.cfg.CodeLength
	}
	return defaultAffiliateCodeLength
}

func lookupUserEmail(userRepo repository.UserRepository, userID uint) string {
	if userRepo == nil || userID == 0 {
		return ""
	}
	user, err := userRepo.GetByID(userID)
	if err != nil {
		logger.Warnw("notification_recipient_lookup_failed", "user_id", userID, "error", err)
		return ""
	}
	if user == nil {
		return ""
	}
	return strings.TrimSpace(user.Email)
}

func normalizeCurrency(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return "EUR"
	}
	return code
}

func normalizePayPalEmail(raw string) (string, error) {
	email := models.NormalizeEmail(raw)
	if email == "" {
		return "", nil
	}
	if !isValidEmail(email) {
		return "", ErrPaymentInfoInvalid
	}
	return email, nil
}

func isValidEmail(email string) bool {
	if email == "" || len(email) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func isAffiliateStatus(status string) bool {
	return status == constants.AffiliateStatusActive || status == constants.AffiliateStatusSuspended
}

// payoutShortfall 距离最低结算金额的差额，满足时返回 0
func payoutShortfall(affiliate *models.Affiliate) models.Cents {
	if affiliate.PendingEarnings >= affiliate.MinimumPayout {
		return 0
	}
	return affiliate.MinimumPayout - affiliate.PendingEarnings
}

func generateAffiliateCode(length int) (string, error) {
	var builder strings.Builder
	builder.Grow(length)
	max := big.NewInt(int64(len(affiliateCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(affiliateCodeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
