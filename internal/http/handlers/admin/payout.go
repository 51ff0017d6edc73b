package admin

import (
	"strings"

	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/repository"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListPayouts 结算单列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	affiliateID, err := handlershared.ParseUintQuery(c, "affiliate_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	runID, err := handlershared.ParseUintQuery(c, "run_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	createdFrom, err := handlershared.ParseTimeNullable(c.Query("created_from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	createdTo, err := handlershared.ParseTimeNullable(c.Query("created_to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	rows, total, err := h.PayoutService.ListPayouts(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliateID,
		RunID:       runID,
		Status:      strings.TrimSpace(c.Query("status")),
		Method:      strings.TrimSpace(c.Query("method")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ListPendingPayouts 待处理结算单
func (h *Handler) ListPendingPayouts(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.PayoutService.GetPendingPayouts(page, pageSize)
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ProcessPayoutRequest 手动结算请求
type ProcessPayoutRequest struct {
	TransactionID string `json:"transaction_id"`
	Notes         string `json:"notes"`
}

// ProcessPayout 标记结算单已付款
func (h *Handler) ProcessPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req ProcessPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	payout, err := h.PayoutService.ProcessPayout(service.ProcessPayoutInput{
		PayoutID:      id,
		AdminID:       adminID,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	h.auditLog(c, "admin_payout_processed", "payout_id", id, "transaction_id", payout.TransactionID)
	response.Success(c, payout)
}

// FailPayoutRequest 驳回结算请求
type FailPayoutRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// FailPayout 驳回结算单并退回余额
func (h *Handler) FailPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req FailPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	payout, err := h.PayoutService.FailPayout(service.FailPayoutInput{
		PayoutID: id,
		AdminID:  adminID,
		Notes:    req.Notes,
	})
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	h.auditLog(c, "admin_payout_failed", "payout_id", id)
	response.Success(c, payout)
}

// GetPayoutGatewayStatus 查询网关侧批次状态
func (h *Handler) GetPayoutGatewayStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	status, err := h.PayoutService.GetGatewayStatus(c.Request.Context(), id)
	if err != nil {
		handlershared.RequestLog(c).Warnw("admin_payout_gateway_status_failed", "payout_id", id, "error", err)
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.Success(c, status)
}
