package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/payment/paypal"
	"github.com/botdesk-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type ledgerTestEnv struct {
	db         *gorm.DB
	sender     *recordingSender
	gateway    *fakeGateway
	governor   *SendGovernor
	notifier   *NotificationService
	affiliates *AffiliateService
	payouts    *PayoutService
	batch      *PayoutBatchService
	locker     *RunLocker
}

func newLedgerTestConfig() *config.Config {
	return &config.Config{
		JWT:     config.JWTConfig{SecretKey: "admin-secret", ExpireHours: 1},
		UserJWT: config.JWTConfig{SecretKey: "user-secret", ExpireHours: 1},
		Affiliate: config.AffiliateConfig{
			DefaultCommissionRate: "0.50",
			MinimumPayoutCents:    5000,
			Currency:              "EUR",
			CodeLength:            8,
		},
		Payout: config.PayoutConfig{
			Cron:                  "0 2 1 * *",
			Timezone:              "UTC",
			InterItemDelayMS:      -1,
			LockTTLSeconds:        60,
			GatewayTimeoutSeconds: 5,
		},
		Notification: config.NotificationConfig{
			DailyLimit:          100,
			WarnRatio:           0.8,
			CriticalRatio:       0.9,
			AdminEmail:          "finance@example.com",
			MaxAttempts:         3,
			SendTimeoutSeconds:  2,
			SendingStaleSeconds: 60,
		},
	}
}

func setupLedgerServiceTest(t *testing.T) *ledgerTestEnv {
	t.Helper()
	return setupLedgerServiceTestWithGateway(t, newFakeGateway())
}

func setupLedgerServiceTestWithGateway(t *testing.T, gateway PayoutGateway) *ledgerTestEnv {
	t.Helper()
	cache.Reset()
	t.Cleanup(cache.Reset)

	dsn := fmt.Sprintf("file:ledger_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := newLedgerTestConfig()
	affiliateRepo := repository.NewAffiliateRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	userRepo := repository.NewUserRepository(db)

	env := &ledgerTestEnv{db: db, sender: &recordingSender{}}
	if fake, ok := gateway.(*fakeGateway); ok {
		env.gateway = fake
	}
	env.governor = NewSendGovernor(cfg.Notification)
	env.notifier = NewNotificationService(cfg.Notification, repository.NewNotificationRepository(db), env.sender, env.governor, nil)
	env.affiliates = NewAffiliateService(cfg.Affiliate, affiliateRepo, referralRepo, payoutRepo, userRepo, env.notifier)
	env.payouts = NewPayoutService(cfg.Payout, cfg.Affiliate, affiliateRepo, payoutRepo, referralRepo, userRepo, gateway, env.notifier)
	env.locker = NewRunLocker(constants.LeaseNamePayoutBatch, repository.NewRunLeaseRepository(db))
	env.batch = NewPayoutBatchService(cfg.Payout, cfg.Affiliate, affiliateRepo, payoutRepo, referralRepo,
		repository.NewPayoutRunRepository(db), userRepo, gateway, env.locker, env.notifier, nil)
	return env
}

func createServiceTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	row := models.User{
		Email:     email,
		Status:    constants.UserStatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return row
}

// createServiceTestAffiliate 开通推广账户，paypal 为空时不配置收款邮箱
func createServiceTestAffiliate(t *testing.T, env *ledgerTestEnv, email, paypalEmail string) *models.Affiliate {
	t.Helper()
	user := createServiceTestUser(t, env.db, email)
	affiliate, err := env.affiliates.CreateAffiliate(CreateAffiliateInput{UserID: user.ID, PayPalEmail: paypalEmail})
	if err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return affiliate
}

// convertServiceTestReferral 注册一个被推荐用户并以指定订阅金额完成转化
func convertServiceTestReferral(t *testing.T, env *ledgerTestEnv, affiliate *models.Affiliate, referredEmail string, amount models.Cents) *ConversionResult {
	t.Helper()
	referred := createServiceTestUser(t, env.db, referredEmail)
	if _, err := env.affiliates.TrackReferral(TrackReferralInput{
		AffiliateCode:  affiliate.AffiliateCode,
		ReferredUserID: referred.ID,
		ReferredEmail:  referredEmail,
	}); err != nil {
		t.Fatalf("track referral failed: %v", err)
	}
	result, err := env.affiliates.ConvertReferral(referred.ID, amount)
	if err != nil {
		t.Fatalf("convert referral failed: %v", err)
	}
	return result
}

func reloadServiceTestAffiliate(t *testing.T, db *gorm.DB, id uint) models.Affiliate {
	t.Helper()
	var affiliate models.Affiliate
	if err := db.First(&affiliate, id).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !affiliate.Balanced() {
		t.Fatalf("ledger imbalanced: total=%d pending=%d paid=%d",
			affiliate.TotalEarnings, affiliate.PendingEarnings, affiliate.PaidEarnings)
	}
	return affiliate
}

func countServiceTestRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *recordingSender) SendText(_ context.Context, toEmail, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{To: toEmail, Subject: subject, Body: body})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var errFakeGatewayDown = errors.New("fake gateway: receiver unavailable")

type fakeGateway struct {
	mu       sync.Mutex
	calls    []paypal.PayoutInput
	failFor  map[string]bool
	panicFor map[string]bool
	onSend   func(input paypal.PayoutInput)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: map[string]bool{}, panicFor: map[string]bool{}}
}

func (g *fakeGateway) SendPayout(_ context.Context, input paypal.PayoutInput) (*paypal.PayoutResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, input)
	fail := g.failFor[input.Receiver]
	shouldPanic := g.panicFor[input.Receiver]
	hook := g.onSend
	g.mu.Unlock()

	if hook != nil {
		hook(input)
	}
	if shouldPanic {
		panic("fake gateway exploded for " + input.Receiver)
	}
	if fail {
		return nil, fmt.Errorf("%w: %s", errFakeGatewayDown, input.Receiver)
	}
	return &paypal.PayoutResult{
		BatchID:     "BATCH-" + strings.ToUpper(input.SenderBatchID),
		BatchStatus: "PENDING",
	}, nil
}

func (g *fakeGateway) GetPayoutStatus(_ context.Context, batchID string) (*paypal.PayoutStatus, error) {
	return &paypal.PayoutStatus{
		BatchID:     batchID,
		BatchStatus: "SUCCESS",
		Items: []paypal.PayoutItemStatus{
			{TransactionID: "TXN-" + batchID, TransactionStatus: "SUCCESS"},
		},
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
