package admin

import (
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 结算后台接口，权限由路由层 RBAC 中间件把关
type Handler struct {
	*provider.Container
}

func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// auditLog 记录后台写操作，统一带上操作人
func (h *Handler) auditLog(c *gin.Context, event string, kv ...interface{}) {
	fields := append([]interface{}{"operator", currentUsername(c)}, kv...)
	if adminID, ok := c.Get("admin_id"); ok {
		fields = append(fields, "admin_id", adminID)
	}
	handlershared.RequestLog(c).Infow(event, fields...)
}
