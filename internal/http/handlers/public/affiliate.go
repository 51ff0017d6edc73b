package public

import (
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
)

// TrackReferralRequest 推荐注册登记请求
type TrackReferralRequest struct {
	AffiliateCode  string `json:"affiliate_code" binding:"required"`
	ReferredUserID uint   `json:"referred_user_id" binding:"required"`
	ReferredEmail  string `json:"referred_email"`
}

// TrackReferral 登记推荐注册
func (h *Handler) TrackReferral(c *gin.Context) {
	var req TrackReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	referral, err := h.AffiliateService.TrackReferral(service.TrackReferralInput{
		AffiliateCode:  req.AffiliateCode,
		ReferredUserID: req.ReferredUserID,
		ReferredEmail:  req.ReferredEmail,
	})
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	response.Success(c, referral)
}

// CreateAffiliateRequest 开通推广账户请求
type CreateAffiliateRequest struct {
	PayPalEmail string `json:"paypal_email"`
	BankAccount string `json:"bank_account"`
}

// CreateAffiliate 开通推广账户
func (h *Handler) CreateAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateAffiliateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	affiliate, err := h.AffiliateService.CreateAffiliate(service.CreateAffiliateInput{
		UserID:      uid,
		PayPalEmail: req.PayPalEmail,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	response.Success(c, affiliate)
}

// GetAffiliateStats 推广账户概览
func (h *Handler) GetAffiliateStats(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	stats, err := h.AffiliateService.GetAffiliateStats(uid)
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	response.Success(c, stats)
}

// UpdatePaymentInfoRequest 收款信息更新请求，缺省字段不修改
type UpdatePaymentInfoRequest struct {
	PayPalEmail *string `json:"paypal_email"`
	BankAccount *string `json:"bank_account"`
}

// UpdatePaymentInfo 更新收款信息
func (h *Handler) UpdatePaymentInfo(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req UpdatePaymentInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdatePaymentInfo(uid, service.UpdatePaymentInfoInput{
		PayPalEmail: req.PayPalEmail,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	response.Success(c, affiliate)
}

// RequestPayoutRequest 自助结算请求
type RequestPayoutRequest struct {
	Method string `json:"method"`
}

// RequestPayout 申请结算
func (h *Handler) RequestPayout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req RequestPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	payout, err := h.PayoutService.RequestPayout(uid, req.Method)
	if err != nil {
		h.failPayout(c, err)
		return
	}
	response.Success(c, payout)
}

// ListMyPayouts 我的结算单
func (h *Handler) ListMyPayouts(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.PayoutService.ListAffiliatePayouts(uid, page, pageSize)
	if err != nil {
		h.failAffiliate(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
