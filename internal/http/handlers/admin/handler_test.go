package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/provider"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type adminEnvelope struct {
	StatusCode int                 `json:"status_code"`
	Msg        string              `json:"msg"`
	Data       json.RawMessage     `json:"data"`
	Pagination response.Pagination `json:"pagination"`
}

func setupAdminHandlerTest(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cache.Reset()
	t.Cleanup(cache.Reset)

	dsn := fmt.Sprintf("file:admin_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		JWT:       config.JWTConfig{SecretKey: "admin-handler-test-secret", ExpireHours: 1},
		Affiliate: config.AffiliateConfig{DefaultCommissionRate: "0.50", MinimumPayoutCents: 5000, Currency: "EUR", CodeLength: 8},
		PayPal:    config.PayPalConfig{Mode: "sandbox", AllowSimulation: true},
		Payout:    config.PayoutConfig{Cron: "0 2 1 * *", Timezone: "UTC", InterItemDelayMS: -1, LockTTLSeconds: 60},
	}
	return New(provider.NewContainerWithDB(cfg, db, nil)), db
}

func seedAdmin(t *testing.T, db *gorm.DB, username, password string, super bool) models.Admin {
	t.Helper()
	hash, err := service.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := models.Admin{Username: username, PasswordHash: hash, IsSuper: super}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	return admin
}

// seedPendingPayout 开通推广账户、写入余额并申请一笔人工结算
func seedPendingPayout(t *testing.T, h *Handler, db *gorm.DB, email string, pending models.Cents) *models.Payout {
	t.Helper()
	user := models.User{Email: email, Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate, err := h.AffiliateService.CreateAffiliate(service.CreateAffiliateInput{UserID: user.ID, BankAccount: "DE89370400440532013000"})
	if err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	if err := db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
		Updates(map[string]interface{}{"total_earnings": pending, "pending_earnings": pending}).Error; err != nil {
		t.Fatalf("seed earnings failed: %v", err)
	}
	payout, err := h.PayoutService.RequestPayout(user.ID, constants.PayoutMethodBank)
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}
	return payout
}

// asAdmin 模拟后台鉴权中间件写入的上下文
func asAdmin(admin models.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("admin_id", admin.ID)
		c.Set("username", admin.Username)
		c.Set("request_id", "req-test")
		c.Next()
	}
}

func perform(t *testing.T, router *gin.Engine, method, target, body string) adminEnvelope {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("business errors must use http 200, got %d: %s", w.Code, w.Body.String())
	}
	var env adminEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return env
}

func TestAdminLogin(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	seedAdmin(t, db, "finance", "Finance#2026", false)
	router := gin.New()
	router.POST("/login", h.AdminLogin)

	env := perform(t, router, http.MethodPost, "/login", `{"username":"finance","password":"wrong"}`)
	if env.StatusCode != response.CodeUnauthorized {
		t.Fatalf("wrong password must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodPost, "/login", `{"username":"finance"}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("missing password must be a bad request, got %+v", env)
	}

	env = perform(t, router, http.MethodPost, "/login", `{"username":"finance","password":"Finance#2026"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("login failed: %+v", env)
	}
	var data LoginResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login failed: %v", err)
	}
	if data.Token == "" || data.ExpiresAt == "" || data.User["username"] != "finance" {
		t.Fatalf("unexpected login payload: %+v", data)
	}
}

func TestAdminProcessAndFailPayout(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	operator := seedAdmin(t, db, "finance", "Finance#2026", false)
	paid := seedPendingPayout(t, h, db, "paid@example.com", 6000)
	rejected := seedPendingPayout(t, h, db, "rejected@example.com", 7000)

	router := gin.New()
	group := router.Group("/admin", asAdmin(operator))
	group.GET("/payouts", h.ListPayouts)
	group.GET("/payouts/pending", h.ListPendingPayouts)
	group.POST("/payouts/:id/process", h.ProcessPayout)
	group.POST("/payouts/:id/fail", h.FailPayout)
	group.GET("/payouts/:id/gateway-status", h.GetPayoutGatewayStatus)

	env := perform(t, router, http.MethodGet, "/admin/payouts/pending", "")
	if env.StatusCode != response.CodeOK || env.Pagination.Total != 2 {
		t.Fatalf("expected two pending payouts, got %+v", env)
	}

	env = perform(t, router, http.MethodPost, fmt.Sprintf("/admin/payouts/%d/process", paid.ID), `{"transaction_id":"BANK-778","notes":"wire sent"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("process payout failed: %+v", env)
	}
	var processed models.Payout
	if err := json.Unmarshal(env.Data, &processed); err != nil {
		t.Fatalf("decode payout failed: %v", err)
	}
	if processed.Status != constants.PayoutStatusPaid || processed.TransactionID != "BANK-778" {
		t.Fatalf("unexpected processed payout: %+v", processed)
	}
	env = perform(t, router, http.MethodPost, fmt.Sprintf("/admin/payouts/%d/process", paid.ID), "")
	if env.StatusCode != response.CodeConflict {
		t.Fatalf("paid payout must not be processed twice, got %+v", env)
	}

	env = perform(t, router, http.MethodPost, fmt.Sprintf("/admin/payouts/%d/fail", rejected.ID), `{}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("fail without notes must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodPost, fmt.Sprintf("/admin/payouts/%d/fail", rejected.ID), `{"notes":"iban closed"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("fail payout failed: %+v", env)
	}
	var affiliate models.Affiliate
	if err := db.First(&affiliate, rejected.AffiliateID).Error; err != nil {
		t.Fatalf("load affiliate failed: %v", err)
	}
	if affiliate.PendingEarnings != 7000 {
		t.Fatalf("failed payout must restore pending earnings, got %d", affiliate.PendingEarnings)
	}

	env = perform(t, router, http.MethodGet, "/admin/payouts?status=paid", "")
	if env.StatusCode != response.CodeOK || env.Pagination.Total != 1 {
		t.Fatalf("expected one paid payout, got %+v", env)
	}
	env = perform(t, router, http.MethodGet, "/admin/payouts?affiliate_id=abc", "")
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("bad filter must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodGet, fmt.Sprintf("/admin/payouts/%d/gateway-status", paid.ID), "")
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("manual payout has no gateway batch, got %+v", env)
	}
	env = perform(t, router, http.MethodPost, "/admin/payouts/999/fail", `{"notes":"x"}`)
	if env.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown payout must be not found, got %+v", env)
	}
}

func TestAdminAffiliateStatusAndReferrals(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	operator := seedAdmin(t, db, "manager", "Manager#2026", false)
	payout := seedPendingPayout(t, h, db, "promoter@example.com", 6000)

	router := gin.New()
	group := router.Group("/admin", asAdmin(operator))
	group.GET("/affiliates", h.ListAffiliates)
	group.PATCH("/affiliates/:id/status", h.UpdateAffiliateStatus)
	group.GET("/referrals", h.ListReferrals)

	target := fmt.Sprintf("/admin/affiliates/%d/status", payout.AffiliateID)
	env := perform(t, router, http.MethodPatch, target, `{"status":"archived"}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("unknown status must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodPatch, target, `{"status":"suspended"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("suspend failed: %+v", env)
	}
	env = perform(t, router, http.MethodGet, "/admin/affiliates?status=suspended", "")
	if env.StatusCode != response.CodeOK || env.Pagination.Total != 1 {
		t.Fatalf("expected one suspended affiliate, got %+v", env)
	}
	env = perform(t, router, http.MethodPatch, "/admin/affiliates/x/status", `{"status":"active"}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("bad id must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodGet, "/admin/referrals?page=1&page_size=5", "")
	if env.StatusCode != response.CodeOK || env.Pagination.PageSize != 5 {
		t.Fatalf("unexpected referral list: %+v", env)
	}
}

func TestAdminPayoutRuns(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	operator := seedAdmin(t, db, "finance", "Finance#2026", false)

	user := models.User{Email: "batch@example.com", Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate, err := h.AffiliateService.CreateAffiliate(service.CreateAffiliateInput{UserID: user.ID, PayPalEmail: user.Email})
	if err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
		Updates(map[string]interface{}{"total_earnings": 9000, "pending_earnings": 9000})
	run, err := h.PayoutBatchService.Run(t.Context(), constants.PayoutTriggerManual)
	if err != nil {
		t.Fatalf("run batch failed: %v", err)
	}

	router := gin.New()
	group := router.Group("/admin", asAdmin(operator))
	group.GET("/payout-runs", h.ListPayoutRuns)
	group.GET("/payout-runs/schedule", h.GetPayoutSchedule)
	group.GET("/payout-runs/:id", h.GetPayoutRun)
	group.GET("/notifications/usage", h.GetNotificationUsage)

	env := perform(t, router, http.MethodGet, "/admin/payout-runs?trigger=manual", "")
	if env.StatusCode != response.CodeOK || env.Pagination.Total != 1 {
		t.Fatalf("expected one run, got %+v", env)
	}
	env = perform(t, router, http.MethodGet, fmt.Sprintf("/admin/payout-runs/%d", run.ID), "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("get run failed: %+v", env)
	}
	var detail struct {
		Run     models.PayoutRun `json:"run"`
		Payouts []models.Payout  `json:"payouts"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode run failed: %v", err)
	}
	if detail.Run.ID != run.ID || len(detail.Payouts) != 1 || detail.Payouts[0].Amount != 9000 {
		t.Fatalf("unexpected run detail: %+v", detail)
	}
	env = perform(t, router, http.MethodGet, "/admin/payout-runs/9999", "")
	if env.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown run must be not found, got %+v", env)
	}

	env = perform(t, router, http.MethodGet, "/admin/payout-runs/schedule", "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("schedule failed: %+v", env)
	}
	var schedule service.PayoutSchedule
	if err := json.Unmarshal(env.Data, &schedule); err != nil {
		t.Fatalf("decode schedule failed: %v", err)
	}
	if schedule.Cron != "0 2 1 * *" || schedule.NextRunAt.Day() != 1 || schedule.LatestRun == nil {
		t.Fatalf("unexpected schedule: %+v", schedule)
	}

	env = perform(t, router, http.MethodGet, "/admin/notifications/usage", "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("usage failed: %+v", env)
	}
}

func TestAdminAuthzRoleManagement(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	root := seedAdmin(t, db, "root", "Root#2026", true)
	target := seedAdmin(t, db, "finance", "Finance#2026", false)

	router := gin.New()
	group := router.Group("/admin/authz", asAdmin(root))
	group.GET("/roles", h.ListAuthzRoles)
	group.GET("/admins/:id/roles", h.GetAdminRoles)
	group.PUT("/admins/:id/roles", h.SetAdminRoles)
	group.GET("/audit-logs", h.ListAuthzAuditLogs)

	env := perform(t, router, http.MethodGet, "/admin/authz/roles", "")
	var roles []roleView
	if err := json.Unmarshal(env.Data, &roles); err != nil {
		t.Fatalf("decode roles failed: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("expected three builtin roles, got %+v", roles)
	}

	rolesPath := fmt.Sprintf("/admin/authz/admins/%d/roles", target.ID)
	env = perform(t, router, http.MethodPut, rolesPath, `{"roles":["superuser"]}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("unknown role must be rejected, got %+v", env)
	}
	env = perform(t, router, http.MethodPut, rolesPath, `{"roles":["finance"]}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("set roles failed: %+v", env)
	}
	env = perform(t, router, http.MethodGet, rolesPath, "")
	var view service.AdminRoleView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode role view failed: %v", err)
	}
	if len(view.Roles) != 1 || view.Roles[0] != "role:finance" {
		t.Fatalf("unexpected roles: %+v", view)
	}
	env = perform(t, router, http.MethodGet, "/admin/authz/admins/404/roles", "")
	if env.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown admin must be not found, got %+v", env)
	}

	env = perform(t, router, http.MethodGet, fmt.Sprintf("/admin/authz/audit-logs?target_admin_id=%d", target.ID), "")
	if env.StatusCode != response.CodeOK || env.Pagination.Total != 1 {
		t.Fatalf("expected one audit row, got %+v", env)
	}
}
