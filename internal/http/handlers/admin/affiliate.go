package admin

import (
	"strings"

	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAffiliates 推广账户列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.AffiliateService.ListAffiliates(repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondMappedError(c, err, handlershared.AffiliateErrorRules)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// UpdateAffiliateStatusRequest 推广账户状态更新请求
type UpdateAffiliateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAffiliateStatus 启用或停用推广账户
func (h *Handler) UpdateAffiliateStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req UpdateAffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateAffiliateStatus(id, req.Status)
	if err != nil {
		respondMappedError(c, err, handlershared.AffiliateErrorRules)
		return
	}
	h.auditLog(c, "admin_affiliate_status_updated", "affiliate_id", id, "status", affiliate.Status)
	response.Success(c, affiliate)
}

// ListReferrals 推荐记录列表
func (h *Handler) ListReferrals(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	affiliateID, err := handlershared.ParseUintQuery(c, "affiliate_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	rows, total, err := h.AffiliateService.ListReferrals(repository.ReferralListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliateID,
		Status:      strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondMappedError(c, err, handlershared.AffiliateErrorRules)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
