package router

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/botdesk-next/internal/authz"
	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/i18n"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/repository"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey           = "request_id"
	requestIDHeader        = "X-Request-ID"
	serviceTokenHeader     = "X-Service-Token"
	adminIsSuperContextKey = "admin_is_super"
)

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Authorization",
			"Accept-Language",
			"X-Locale",
			requestIDHeader,
			serviceTokenHeader,
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials); allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = zap.L()
	}
	sugar := base.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	if value, ok := c.Get(requestIDKey); ok {
		if requestID, ok := value.(string); ok {
			return requestID
		}
	}
	return ""
}

// abortUnauthorized 以当前语言返回 401 业务码并中断
func abortUnauthorized(c *gin.Context, key string) {
	response.Unauthorized(c, i18n.T(i18n.ResolveLocale(c), key))
	c.Abort()
}

func abortForbidden(c *gin.Context, key string) {
	response.Forbidden(c, i18n.T(i18n.ResolveLocale(c), key))
	c.Abort()
}

// parseBearer 校验 Authorization 头并解析 HS256 签名的声明
func parseBearer(c *gin.Context, secretKey string, claims jwt.Claims) bool {
	if secretKey == "" {
		abortUnauthorized(c, "error.jwt_secret_missing")
		return false
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		abortUnauthorized(c, "error.auth_header_missing")
		return false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		abortUnauthorized(c, "error.auth_header_invalid")
		return false
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil || !token.Valid {
		abortUnauthorized(c, "error.token_invalid")
		return false
	}
	return true
}

// JWTAuthMiddleware 管理员 JWT 鉴权，令牌版本与失效时间优先读缓存快照
func JWTAuthMiddleware(secretKey string, adminRepo repository.AdminRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminRepo == nil {
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		claims := &service.JWTClaims{}
		if !parseBearer(c, secretKey, claims) {
			return
		}
		if claims.AdminID == 0 {
			abortUnauthorized(c, "error.token_invalid")
			return
		}

		state, hit, cacheErr := cache.GetAdminAuthState(c.Request.Context(), claims.AdminID)
		if cacheErr != nil || !hit || state == nil {
			admin, err := adminRepo.GetByID(claims.AdminID)
			if err != nil || admin == nil {
				abortUnauthorized(c, "error.token_invalid")
				return
			}
			state = cache.BuildAdminAuthState(admin)
			_ = cache.SetAdminAuthState(c.Request.Context(), state)
		}
		if claims.TokenVersion != state.TokenVersion || !isIssuedAfter(claims.IssuedAt, state.TokenInvalidBefore) {
			abortUnauthorized(c, "error.token_revoked")
			return
		}

		c.Set("admin_id", claims.AdminID)
		c.Set("username", claims.Username)
		c.Set(adminIsSuperContextKey, state.IsSuper)
		c.Next()
	}
}

func isSuperAdmin(c *gin.Context) bool {
	value, ok := c.Get(adminIsSuperContextKey)
	if !ok {
		return false
	}
	isSuper, _ := value.(bool)
	return isSuper
}

func contextAdminID(c *gin.Context) uint {
	value, ok := c.Get("admin_id")
	if !ok {
		return 0
	}
	switch v := value.(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}

// AdminRBACMiddleware 管理端 RBAC 鉴权，按路由模板与请求方法判定
func AdminRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("admin_rbac_service_unavailable")
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		if isSuperAdmin(c) {
			c.Next()
			return
		}
		adminID := contextAdminID(c)
		if adminID == 0 {
			abortUnauthorized(c, "error.unauthorized")
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceAdmin(adminID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("admin_rbac_enforce_failed",
				"admin_id", adminID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("admin_rbac_permission_denied",
				"admin_id", adminID,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			abortForbidden(c, "error.forbidden")
			return
		}
		c.Next()
	}
}

// SuperAdminMiddleware 仅超级管理员可访问
func SuperAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSuperAdmin(c) {
			logger.Warnw("admin_super_required", "admin_id", contextAdminID(c), "path", c.Request.URL.Path)
			abortForbidden(c, "error.super_admin_required")
			return
		}
		c.Next()
	}
}

// UserJWTAuthMiddleware 推广用户 JWT 鉴权，停用用户直接拒绝
func UserJWTAuthMiddleware(secretKey string, userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userRepo == nil {
			abortUnauthorized(c, "error.token_invalid")
			return
		}
		claims := &service.UserJWTClaims{}
		if !parseBearer(c, secretKey, claims) {
			return
		}
		if claims.UserID == 0 {
			abortUnauthorized(c, "error.token_invalid")
			return
		}

		state, hit, cacheErr := cache.GetUserAuthState(c.Request.Context(), claims.UserID)
		if cacheErr != nil || !hit || state == nil {
			user, err := userRepo.GetByID(claims.UserID)
			if err != nil || user == nil {
				abortUnauthorized(c, "error.token_invalid")
				return
			}
			state = cache.BuildUserAuthState(user)
			_ = cache.SetUserAuthState(c.Request.Context(), state)
		}
		if !models.IsActiveUserStatus(state.Status) {
			abortUnauthorized(c, "error.user_disabled")
			return
		}
		if claims.TokenVersion != state.TokenVersion || !isIssuedAfter(claims.IssuedAt, state.TokenInvalidBefore) {
			abortUnauthorized(c, "error.token_revoked")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}

// ServiceTokenMiddleware 计费系统回调鉴权，未配置令牌时一律拒绝
func ServiceTokenMiddleware(cfg config.BillingConfig) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(cfg.ServiceToken))
	return func(c *gin.Context) {
		provided := []byte(strings.TrimSpace(c.GetHeader(serviceTokenHeader)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			logger.Warnw("service_token_rejected", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			abortUnauthorized(c, "error.service_token_invalid")
			return
		}
		c.Next()
	}
}

func isIssuedAfter(issuedAt *jwt.NumericDate, invalidBeforeUnix int64) bool {
	if invalidBeforeUnix <= 0 {
		return true
	}
	if issuedAt == nil {
		return false
	}
	return issuedAt.Time.Unix() >= invalidBeforeUnix
}
