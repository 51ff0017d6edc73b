package public

import (
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/models"

	"github.com/gin-gonic/gin"
)

// ConvertReferralRequest 计费系统订阅成功回调
type ConvertReferralRequest struct {
	ReferredUserID     uint         `json:"referred_user_id" binding:"required"`
	SubscriptionAmount models.Cents `json:"subscription_amount" binding:"required"`
}

// ConvertReferral 订阅成功后入账佣金
func (h *Handler) ConvertReferral(c *gin.Context) {
	var req ConvertReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	result, err := h.AffiliateService.ConvertReferral(req.ReferredUserID, req.SubscriptionAmount)
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	handlershared.RequestLog(c).Infow("conversion_credited",
		"referral_id", result.Referral.ID,
		"affiliate_id", result.Affiliate.ID,
		"commission", result.Commission.String(),
	)
	response.Success(c, result)
}
