package router

import (
	"sort"
	"strings"

	"github.com/botdesk-next/internal/authz"
	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	adminhandlers "github.com/botdesk-next/internal/http/handlers/admin"
	publichandlers "github.com/botdesk-next/internal/http/handlers/public"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisClient := cache.Client()
	loginRule := NewRateLimitRule("admin_login", cfg.Security.LoginRateLimit)
	referralRule := NewRateLimitRule("referral_track", cfg.Security.ReferralRateLimit)
	payoutRule := NewRateLimitRule("payout_request", cfg.Security.PayoutRateLimit)

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.POST("/referrals", RateLimitMiddleware(redisClient, referralRule, KeyByIP), publicHandler.TrackReferral)
		}

		// 推广用户接口
		affiliate := apiV1.Group("/affiliate")
		affiliate.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			affiliate.POST("", publicHandler.CreateAffiliate)
			affiliate.GET("/stats", publicHandler.GetAffiliateStats)
			affiliate.PUT("/payment-info", publicHandler.UpdatePaymentInfo)
			affiliate.GET("/payouts", publicHandler.ListMyPayouts)
			affiliate.POST("/payouts", RateLimitMiddleware(redisClient, payoutRule, KeyByUserID), publicHandler.RequestPayout)
		}

		// 计费系统回调
		internal := apiV1.Group("/internal")
		internal.Use(ServiceTokenMiddleware(cfg.Billing))
		{
			internal.POST("/conversions", publicHandler.ConvertReferral)
		}

		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				// 角色管理只开放给超级管理员
				authzGroup := authorized.Group("/authz")
				authzGroup.Use(SuperAdminMiddleware())
				{
					authzGroup.GET("/roles", adminHandler.ListAuthzRoles)
					authzGroup.GET("/admins/:id/roles", adminHandler.GetAdminRoles)
					authzGroup.PUT("/admins/:id/roles", adminHandler.SetAdminRoles)
					authzGroup.GET("/audit-logs", adminHandler.ListAuthzAuditLogs)
					authzGroup.GET("/permissions/catalog", func(ctx *gin.Context) {
						response.Success(ctx, buildAdminPermissionCatalog(r))
					})
				}

				rbac := authorized.Group("")
				rbac.Use(AdminRBACMiddleware(c.AuthzService))
				{
					rbac.GET("/affiliates", adminHandler.ListAffiliates)
					rbac.PATCH("/affiliates/:id/status", adminHandler.UpdateAffiliateStatus)
					rbac.GET("/referrals", adminHandler.ListReferrals)

					rbac.GET("/payouts", adminHandler.ListPayouts)
					rbac.GET("/payouts/pending", adminHandler.ListPendingPayouts)
					rbac.POST("/payouts/:id/process", adminHandler.ProcessPayout)
					rbac.POST("/payouts/:id/fail", adminHandler.FailPayout)
					rbac.GET("/payouts/:id/gateway-status", adminHandler.GetPayoutGatewayStatus)

					rbac.POST("/payout-runs", adminHandler.TriggerPayoutRun)
					rbac.GET("/payout-runs", adminHandler.ListPayoutRuns)
					rbac.GET("/payout-runs/schedule", adminHandler.GetPayoutSchedule)
					rbac.GET("/payout-runs/:id", adminHandler.GetPayoutRun)

					rbac.GET("/notifications/usage", adminHandler.GetNotificationUsage)
				}
			}
		}
	}

	r.GET("/healthz", publicHandler.HealthCheck)
	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// buildAdminPermissionCatalog 从已注册路由生成可授权资源清单
func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}
	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))
	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") || item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		if strings.HasPrefix(object, "/admin/authz/") {
			continue
		}
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Module != items[j].Module {
			return items[i].Module < items[j].Module
		}
		if items[i].Object != items[j].Object {
			return items[i].Object < items[j].Object
		}
		return items[i].Method < items[j].Method
	})
	return items
}

func deriveAdminPermissionModule(object string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(object), "/"), "/")
	if len(segments) < 2 || segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
