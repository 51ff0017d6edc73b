package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/botdesk-next/internal/models"
)

// 通用错误
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user disabled")
)

// 推广账户与推荐记录
var (
	ErrAffiliateExists          = errors.New("affiliate already exists")
	ErrAffiliateNotFound        = errors.New("affiliate not found")
	ErrAffiliateCodeInvalid     = errors.New("affiliate code invalid")
	ErrAffiliateSuspended       = errors.New("affiliate suspended")
	ErrAffiliateStatusInvalid   = errors.New("affiliate status invalid")
	ErrAffiliateCodeExhausted   = errors.New("affiliate code generation exhausted")
	ErrReferralNotFound         = errors.New("referral not found")
	ErrReferralExists           = errors.New("referral already tracked")
	ErrReferralSelf             = errors.New("affiliate cannot refer itself")
	ErrReferralAlreadyConverted = errors.New("referral already converted")
	ErrReferralInputInvalid     = errors.New("referral input invalid")
	ErrConversionAmountInvalid  = errors.New("conversion amount invalid")
	ErrPaymentInfoInvalid       = errors.New("payment info invalid")
)

// 结算
var (
	ErrPayoutNotFound           = errors.New("payout not found")
	ErrPayoutBelowThreshold     = errors.New("pending earnings below minimum payout")
	ErrPayoutDestinationMissing = errors.New("payout destination missing")
	ErrPayoutMethodInvalid      = errors.New("payout method invalid")
	ErrPayoutInFlight           = errors.New("another payout is being processed")
	ErrPayoutConflict           = errors.New("payout state changed concurrently")
	ErrPayoutStatusInvalid      = errors.New("payout status transition invalid")
	ErrPayoutNoBatch            = errors.New("payout has no gateway batch")
	ErrPayoutRunInProgress      = errors.New("payout run already in progress")
	ErrPayoutRunNotFound        = errors.New("payout run not found")
	ErrPayoutTriggerInvalid     = errors.New("payout trigger invalid")
	ErrLedgerImbalanced         = errors.New("affiliate ledger imbalanced")
)

// 邮件与通知
var (
	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrInvalidEmail              = errors.New("invalid email")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
	ErrNotificationQuotaExceeded = errors.New("notification daily quota exceeded")
	ErrNotificationEventInvalid  = errors.New("notification event invalid")
)

// PayoutShortfallError 待结算金额不足，携带精确差额
type PayoutShortfallError struct {
	Shortfall models.Cents
	Currency  string
}

func (e *PayoutShortfallError) Error() string {
	return fmt.Sprintf("need %s more to reach the minimum payout", formatMoney(e.Shortfall, e.Currency))
}

// Formatted 带货币符号的差额
func (e *PayoutShortfallError) Formatted() string {
	return formatMoney(e.Shortfall, e.Currency)
}

// Unwrap 支持 errors.Is(err, ErrPayoutBelowThreshold)
func (e *PayoutShortfallError) Unwrap() error {
	return ErrPayoutBelowThreshold
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// formatMoney 以货币符号输出金额，未知币种退回 "12.00 XXX"
func formatMoney(amount models.Cents, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if symbol, ok := currencySymbols[code]; ok {
		return symbol + amount.String()
	}
	if code == "" {
		return amount.String()
	}
	return amount.String() + " " + code
}
