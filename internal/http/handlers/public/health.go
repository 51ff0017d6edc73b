package public

import (
	"context"
	"net/http"
	"time"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/models"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck 存活与依赖检查
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "disabled"}
	if err := pingDatabase(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}
	if cache.Enabled() {
		checks["redis"] = "ok"
		if err := cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

func pingDatabase(ctx context.Context) error {
	if models.DB == nil {
		return errDatabaseNotReady
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
