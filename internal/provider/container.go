package provider

import (
	"time"

	"github.com/botdesk-next/internal/authz"
	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/payment/paypal"
	"github.com/botdesk-next/internal/queue"
	"github.com/botdesk-next/internal/repository"
	"github.com/botdesk-next/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	PayPal      *paypal.Client

	// Repositories
	AdminRepo         repository.AdminRepository
	UserRepo          repository.UserRepository
	AffiliateRepo     repository.AffiliateRepository
	ReferralRepo      repository.ReferralRepository
	PayoutRepo        repository.PayoutRepository
	PayoutRunRepo     repository.PayoutRunRepository
	NotificationRepo  repository.NotificationRepository
	RunLeaseRepo      repository.RunLeaseRepository
	AuthzAuditLogRepo repository.AuthzAuditLogRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	AdminRoleService    *service.AdminRoleService
	EmailService        *service.EmailService
	SendGovernor        *service.SendGovernor
	NotificationService *service.NotificationService
	AffiliateService    *service.AffiliateService
	PayoutService       *service.PayoutService
	PayoutBatchService  *service.PayoutBatchService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端，未启用时为空操作客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	return NewContainerWithDB(cfg, models.DB, queueClient)
}

// NewContainerWithDB 基于给定数据库连接装配仓储与服务
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *Container {
	if queueClient == nil {
		queueClient, _ = queue.NewClient(nil)
	}
	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		PayPal:      NewPayPalClient(&cfg.PayPal),
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices(db)

	return c
}

// NewPayPalClient 按配置创建付款网关客户端
func NewPayPalClient(cfg *config.PayPalConfig) *paypal.Client {
	client := paypal.NewClient(paypal.Config{
		Mode:            cfg.Mode,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		BaseURL:         cfg.BaseURL,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		AllowSimulation: cfg.AllowSimulation,
	})
	if err := client.Ready(); err != nil {
		logger.Warnw("provider_paypal_not_ready", "mode", client.Mode(), "error", err)
	} else if !client.Configured() {
		logger.Warnw("provider_paypal_simulation_enabled", "mode", client.Mode())
	}
	return client
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.PayoutRunRepo = repository.NewPayoutRunRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
	c.RunLeaseRepo = repository.NewRunLeaseRepository(db)
	c.AuthzAuditLogRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initServices(db *gorm.DB) {
	authzService, err := authz.NewService(db)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	cfg := c.Config
	c.EmailService = service.NewEmailService(&cfg.Email)
	c.SendGovernor = service.NewSendGovernor(cfg.Notification)
	c.NotificationService = service.NewNotificationService(cfg.Notification, c.NotificationRepo, c.EmailService, c.SendGovernor, c.QueueClient)
	c.AuthService = service.NewAuthService(cfg, c.AdminRepo, c.UserRepo)
	c.AdminRoleService = service.NewAdminRoleService(c.AuthzService, c.AdminRepo, c.AuthzAuditLogRepo)
	c.AffiliateService = service.NewAffiliateService(cfg.Affiliate, c.AffiliateRepo, c.ReferralRepo, c.PayoutRepo, c.UserRepo, c.NotificationService)
	c.PayoutService = service.NewPayoutService(cfg.Payout, cfg.Affiliate, c.AffiliateRepo, c.PayoutRepo, c.ReferralRepo, c.UserRepo, c.PayPal, c.NotificationService)
	c.PayoutBatchService = service.NewPayoutBatchService(
		cfg.Payout,
		cfg.Affiliate,
		c.AffiliateRepo,
		c.PayoutRepo,
		c.ReferralRepo,
		c.PayoutRunRepo,
		c.UserRepo,
		c.PayPal,
		service.NewRunLocker(constants.LeaseNamePayoutBatch, c.RunLeaseRepo),
		c.NotificationService,
		c.QueueClient,
	)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
