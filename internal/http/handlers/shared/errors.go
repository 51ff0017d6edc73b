package shared

import (
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/payment/paypal"
	"github.com/botdesk-next/internal/service"
)

// AffiliateErrorRules 推广账户与推荐记录错误映射。
var AffiliateErrorRules = []MappedError{
	{Target: service.ErrAffiliateExists, Code: response.CodeConflict, Key: "error.affiliate_exists"},
	{Target: service.ErrAffiliateNotFound, Code: response.CodeNotFound, Key: "error.affiliate_not_found"},
	{Target: service.ErrAffiliateCodeInvalid, Code: response.CodeBadRequest, Key: "error.affiliate_code_invalid"},
	{Target: service.ErrAffiliateSuspended, Code: response.CodeForbidden, Key: "error.affiliate_suspended"},
	{Target: service.ErrAffiliateStatusInvalid, Code: response.CodeBadRequest, Key: "error.affiliate_status_invalid"},
	{Target: service.ErrReferralExists, Code: response.CodeConflict, Key: "error.referral_exists"},
	{Target: service.ErrReferralSelf, Code: response.CodeBadRequest, Key: "error.referral_self"},
	{Target: service.ErrReferralNotFound, Code: response.CodeNotFound, Key: "error.referral_not_found"},
	{Target: service.ErrReferralAlreadyConverted, Code: response.CodeConflict, Key: "error.referral_converted"},
	{Target: service.ErrReferralInputInvalid, Code: response.CodeBadRequest, Key: "error.bad_request"},
	{Target: service.ErrConversionAmountInvalid, Code: response.CodeBadRequest, Key: "error.conversion_amount"},
	{Target: service.ErrPaymentInfoInvalid, Code: response.CodeBadRequest, Key: "error.payment_info_invalid"},
	{Target: service.ErrInvalidEmail, Code: response.CodeBadRequest, Key: "error.email_invalid"},
	{Target: service.ErrUserDisabled, Code: response.CodeForbidden, Key: "error.user_disabled"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},
}

// PayoutErrorRules 结算错误映射，差额提示由 PayoutShortfallError 单独处理。
var PayoutErrorRules = []MappedError{
	{Target: service.ErrPayoutNotFound, Code: response.CodeNotFound, Key: "error.payout_not_found"},
	{Target: service.ErrPayoutBelowThreshold, Code: response.CodeBadRequest, Key: "error.payout_nothing_pending"},
	{Target: service.ErrPayoutDestinationMissing, Code: response.CodeBadRequest, Key: "error.payout_destination"},
	{Target: service.ErrPayoutMethodInvalid, Code: response.CodeBadRequest, Key: "error.payout_method_invalid"},
	{Target: service.ErrPayoutInFlight, Code: response.CodeConflict, Key: "error.payout_in_flight"},
	{Target: service.ErrPayoutConflict, Code: response.CodeConflict, Key: "error.payout_conflict"},
	{Target: service.ErrPayoutStatusInvalid, Code: response.CodeConflict, Key: "error.payout_status_invalid"},
	{Target: service.ErrPayoutNoBatch, Code: response.CodeBadRequest, Key: "error.payout_no_batch"},
	{Target: service.ErrPayoutRunInProgress, Code: response.CodeConflict, Key: "error.payout_run_in_progress"},
	{Target: service.ErrPayoutRunNotFound, Code: response.CodeNotFound, Key: "error.payout_run_not_found"},
	{Target: service.ErrPayoutTriggerInvalid, Code: response.CodeBadRequest, Key: "error.bad_request"},
	{Target: paypal.ErrConfigInvalid, Code: response.CodeBadGateway, Key: "error.payout_gateway_failed"},
	{Target: paypal.ErrAuthFailed, Code: response.CodeBadGateway, Key: "error.payout_gateway_failed"},
	{Target: paypal.ErrRequestFailed, Code: response.CodeBadGateway, Key: "error.payout_gateway_failed"},
	{Target: paypal.ErrResponseInvalid, Code: response.CodeBadGateway, Key: "error.payout_gateway_failed"},
}
