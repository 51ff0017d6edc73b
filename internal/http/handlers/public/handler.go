package public

import (
	"errors"

	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/i18n"
	"github.com/botdesk-next/internal/provider"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 前台接口：公开推荐登记、推广用户自助与计费系统回调
type Handler struct {
	*provider.Container
}

func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

var payoutRequestErrorRules = handlershared.ConcatMappedErrors(handlershared.PayoutErrorRules, handlershared.AffiliateErrorRules)

// failAffiliate 推广账户相关错误
func (h *Handler) failAffiliate(c *gin.Context, err error) {
	respondMappedError(c, err, handlershared.AffiliateErrorRules, response.CodeInternal, "error.internal")
}

// failPayout 结算申请错误；未达门槛时在 data 中返回差额
func (h *Handler) failPayout(c *gin.Context, err error) {
	var shortfall *service.PayoutShortfallError
	if errors.As(err, &shortfall) {
		msg := i18n.Sprintf(i18n.ResolveLocale(c), "error.payout_below_threshold", shortfall.Formatted())
		response.ErrorWithData(c, response.CodeBadRequest, msg, gin.H{
			"shortfall": shortfall.Shortfall,
			"currency":  shortfall.Currency,
		})
		return
	}
	respondMappedError(c, err, payoutRequestErrorRules, response.CodeInternal, "error.internal")
}
