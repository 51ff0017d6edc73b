package admin

import (
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "admin_id", "error.admin_id_invalid", "error.admin_id_type_invalid")
}

func currentUsername(c *gin.Context) string {
	return handlershared.ContextString(c, "username")
}

func currentRequestID(c *gin.Context) string {
	return handlershared.ContextString(c, "request_id")
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
	}
	return id, ok
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

func respondMappedError(c *gin.Context, err error, rules []handlershared.MappedError) {
	handlershared.RespondMappedError(c, err, rules, response.CodeInternal, "error.internal")
}
