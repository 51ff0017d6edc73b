package main

import (
	"errors"
	"fmt"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/provider"
	"github.com/botdesk-next/internal/service"
)

type demoAdmin struct {
	Username string
	Password string
	Roles    []string
}

type demoAffiliate struct {
	Email       string
	PayPalEmail string
	BankAccount string
	// 每个被推荐用户的订阅金额，0 表示尚未转化
	Conversions []models.Cents
}

var demoAdmins = []demoAdmin{
	{Username: "finance", Password: "Finance#2026", Roles: []string{"finance"}},
	{Username: "manager", Password: "Manager#2026", Roles: []string{"affiliate_manager"}},
	{Username: "auditor", Password: "Auditor#2026", Roles: []string{"readonly_auditor"}},
}

var demoAffiliates = []demoAffiliate{
	{Email: "alice@example.com", PayPalEmail: "alice@example.com", Conversions: []models.Cents{4900, 4900, 9900, 0}},
	{Email: "bob@example.com", BankAccount: "DE89370400440532013000", Conversions: []models.Cents{2900, 0}},
	{Email: "carol@example.com", PayPalEmail: "carol.payouts@example.com", Conversions: []models.Cents{19900}},
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Fatalf("Failed to create default admin: %v", err)
	}

	// 种子数据不投递队列，通知留在发件箱由 worker 补发
	container := provider.NewContainerWithDB(cfg, models.DB, nil)

	for _, item := range demoAdmins {
		if err := seedAdmin(container, item); err != nil {
			stdLog.Fatalf("Failed to seed admin %s: %v", item.Username, err)
		}
	}
	for i, item := range demoAffiliates {
		if err := seedAffiliate(container, i, item); err != nil {
			stdLog.Fatalf("Failed to seed affiliate %s: %v", item.Email, err)
		}
	}
	logger.Infow("seed_finished", "admins", len(demoAdmins), "affiliates", len(demoAffiliates))
}

func seedAdmin(c *provider.Container, item demoAdmin) error {
	admin, err := c.AdminRepo.GetByUsername(item.Username)
	if err != nil {
		return err
	}
	if admin == nil {
		hash, err := service.HashPassword(item.Password)
		if err != nil {
			return err
		}
		admin = &models.Admin{Username: item.Username, PasswordHash: hash}
		if err := c.AdminRepo.Create(admin); err != nil {
			return err
		}
	}
	_, err = c.AuthzService.SetAdminRoles(admin.ID, item.Roles)
	return err
}

func seedUser(c *provider.Container, email string) (*models.User, error) {
	user, err := c.UserRepo.GetByEmail(email)
	if err != nil || user != nil {
		return user, err
	}
	user = &models.User{Email: email, Status: constants.UserStatusActive}
	if err := c.UserRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func seedAffiliate(c *provider.Container, index int, item demoAffiliate) error {
	owner, err := seedUser(c, item.Email)
	if err != nil {
		return err
	}
	affiliate, err := c.AffiliateService.CreateAffiliate(service.CreateAffiliateInput{
		UserID:      owner.ID,
		PayPalEmail: item.PayPalEmail,
		BankAccount: item.BankAccount,
	})
	if errors.Is(err, service.ErrAffiliateExists) {
		logger.Infow("seed_affiliate_exists", "email", item.Email)
		return nil
	}
	if err != nil {
		return err
	}

	for j, amount := range item.Conversions {
		referred, err := seedUser(c, fmt.Sprintf("referred-%d-%d@example.com", index+1, j+1))
		if err != nil {
			return err
		}
		if _, err := c.AffiliateService.TrackReferral(service.TrackReferralInput{
			AffiliateCode:  affiliate.AffiliateCode,
			ReferredUserID: referred.ID,
			ReferredEmail:  referred.Email,
		}); err != nil {
			return err
		}
		if amount <= 0 {
			continue
		}
		if _, err := c.AffiliateService.ConvertReferral(referred.ID, amount); err != nil {
			return err
		}
	}
	return nil
}
