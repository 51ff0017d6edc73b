package admin

import (
	"strings"

	"github.com/botdesk-next/internal/constants"
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// TriggerPayoutRun 手动触发批量结算
func (h *Handler) TriggerPayoutRun(c *gin.Context) {
	result, err := h.PayoutBatchService.Trigger(constants.PayoutTriggerManual)
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	h.auditLog(c, "admin_payout_run_triggered", "mode", result.Mode)
	response.Success(c, result)
}

// ListPayoutRuns 批量结算记录
func (h *Handler) ListPayoutRuns(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.PayoutBatchService.ListRuns(repository.PayoutRunListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Trigger:  strings.TrimSpace(c.Query("trigger")),
	})
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetPayoutRun 批量结算详情及其结算单
func (h *Handler) GetPayoutRun(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	run, payouts, err := h.PayoutBatchService.GetRun(id)
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.Success(c, gin.H{"run": run, "payouts": payouts})
}

// GetPayoutSchedule 下次批量结算时间
func (h *Handler) GetPayoutSchedule(c *gin.Context) {
	schedule, err := h.PayoutBatchService.Schedule()
	if err != nil {
		respondMappedError(c, err, handlershared.PayoutErrorRules)
		return
	}
	response.Success(c, schedule)
}

// GetNotificationUsage 发信配额与发件箱统计
func (h *Handler) GetNotificationUsage(c *gin.Context) {
	usage, err := h.NotificationService.Usage(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.Success(c, usage)
}
