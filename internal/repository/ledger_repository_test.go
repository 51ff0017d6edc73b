package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupLedgerRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createLedgerTestAffiliate(t *testing.T, db *gorm.DB, email string, pending models.Cents, paypal string) *models.Affiliate {
	t.Helper()
	user := models.User{Email: email, Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate := models.Affiliate{
		UserID:          user.ID,
		AffiliateCode:   fmt.Sprintf("CODE%04d", user.ID),
		PayPalEmail:     paypal,
		CommissionRate:  models.MustRate("0.50"),
		MinimumPayout:   5000,
		TotalEarnings:   pending,
		PendingEarnings: pending,
		Status:          constants.AffiliateStatusActive,
	}
	if err := db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return &affiliate
}

func reloadAffiliate(t *testing.T, db *gorm.DB, id uint) models.Affiliate {
	t.Helper()
	var affiliate models.Affiliate
	if err := db.First(&affiliate, id).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	return affiliate
}

func TestAffiliateRepositoryCreditAndReserve(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewAffiliateRepository(db)
	affiliate := createLedgerTestAffiliate(t, db, "credit@example.com", 0, "")
	now := time.Now()

	if rows, err := repo.CreditEarnings(affiliate.ID, 1500, now); err != nil || rows != 1 {
		t.Fatalf("credit failed: rows=%d err=%v", rows, err)
	}
	if rows, err := repo.CreditEarnings(affiliate.ID, 4000, now); err != nil || rows != 1 {
		t.Fatalf("second credit failed: rows=%d err=%v", rows, err)
	}
	got := reloadAffiliate(t, db, affiliate.ID)
	if got.TotalEarnings != 5500 || got.PendingEarnings != 5500 || !got.Balanced() {
		t.Fatalf("unexpected balances after credit: %+v", got)
	}

	// 快照不一致时不得扣减
	if rows, err := repo.ReservePending(affiliate.ID, 1500, now); err != nil || rows != 0 {
		t.Fatalf("stale reservation should not apply: rows=%d err=%v", rows, err)
	}
	if rows, err := repo.ReservePending(affiliate.ID, 5500, now); err != nil || rows != 1 {
		t.Fatalf("reservation failed: rows=%d err=%v", rows, err)
	}
	got = reloadAffiliate(t, db, affiliate.ID)
	if got.PendingEarnings != 0 || got.PaidEarnings != 5500 || !got.Balanced() {
		t.Fatalf("unexpected balances after reserve: %+v", got)
	}
	if rows, _ := repo.ReservePending(affiliate.ID, 5500, now); rows != 0 {
		t.Fatalf("second reservation must not double spend")
	}

	if rows, err := repo.RestoreReserved(affiliate.ID, 5500, now); err != nil || rows != 1 {
		t.Fatalf("restore failed: rows=%d err=%v", rows, err)
	}
	got = reloadAffiliate(t, db, affiliate.ID)
	if got.PendingEarnings != 5500 || got.PaidEarnings != 0 || !got.Balanced() {
		t.Fatalf("unexpected balances after restore: %+v", got)
	}
}

func TestAffiliateRepositorySettlePendingKeepsLateConversions(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewAffiliateRepository(db)
	affiliate := createLedgerTestAffiliate(t, db, "settle@example.com", 6000, "payee@example.com")
	now := time.Now()

	// 结算进行中又入账一笔
	if _, err := repo.CreditEarnings(affiliate.ID, 700, now); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if rows, err := repo.SettlePending(affiliate.ID, 6000, now); err != nil || rows != 1 {
		t.Fatalf("settle failed: rows=%d err=%v", rows, err)
	}
	got := reloadAffiliate(t, db, affiliate.ID)
	if got.PendingEarnings != 700 || got.PaidEarnings != 6000 || got.TotalEarnings != 6700 {
		t.Fatalf("unexpected balances after settle: %+v", got)
	}
	if got.LastPayoutDate == nil {
		t.Fatalf("expected last payout date")
	}
	if rows, _ := repo.SettlePending(affiliate.ID, 6000, now); rows != 0 {
		t.Fatalf("settle beyond pending must not apply")
	}
}

func TestAffiliateRepositoryListBatchEligible(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewAffiliateRepository(db)
	eligible := createLedgerTestAffiliate(t, db, "eligible@example.com", 5000, "a@example.com")
	createLedgerTestAffiliate(t, db, "below@example.com", 4999, "b@example.com")
	createLedgerTestAffiliate(t, db, "nopaypal@example.com", 9000, "")
	suspended := createLedgerTestAffiliate(t, db, "suspended@example.com", 9000, "c@example.com")
	if _, err := repo.UpdateStatus(suspended.ID, constants.AffiliateStatusSuspended, time.Now()); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}

	rows, err := repo.ListBatchEligible()
	if err != nil {
		t.Fatalf("list eligible failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != eligible.ID {
		t.Fatalf("unexpected eligible rows: %+v", rows)
	}
}

func TestAffiliateRepositoryListKeyword(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewAffiliateRepository(db)
	createLedgerTestAffiliate(t, db, "alice@example.com", 0, "alice-pp@example.com")
	createLedgerTestAffiliate(t, db, "bob@example.com", 0, "")

	rows, total, err := repo.List(AffiliateListFilter{Page: 1, PageSize: 10, Keyword: "alice"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].User.Email != "alice@example.com" {
		t.Fatalf("unexpected keyword result: total=%d rows=%+v", total, rows)
	}
}

func TestReferralRepositoryConvertOnceAndCapture(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewReferralRepository(db)
	affiliate := createLedgerTestAffiliate(t, db, "owner@example.com", 0, "")
	now := time.Now()

	first := models.Referral{AffiliateID: affiliate.ID, ReferredUserID: 101, ReferredEmail: "r1@example.com", Status: constants.ReferralStatusPending}
	second := models.Referral{AffiliateID: affiliate.ID, ReferredUserID: 102, ReferredEmail: "r2@example.com", Status: constants.ReferralStatusPending}
	for _, item := range []*models.Referral{&first, &second} {
		if err := repo.Create(item); err != nil {
			t.Fatalf("create referral failed: %v", err)
		}
	}
	duplicate := models.Referral{AffiliateID: affiliate.ID, ReferredUserID: 101, ReferredEmail: "dup@example.com", Status: constants.ReferralStatusPending}
	if err := repo.Create(&duplicate); err == nil {
		t.Fatalf("expected unique violation for duplicate referred user")
	}

	if rows, err := repo.MarkConverted(first.ID, 1500, now); err != nil || rows != 1 {
		t.Fatalf("convert failed: rows=%d err=%v", rows, err)
	}
	if rows, err := repo.MarkConverted(first.ID, 9999, now); err != nil || rows != 0 {
		t.Fatalf("second convert must not apply: rows=%d err=%v", rows, err)
	}
	reloaded, err := repo.GetByID(first.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload referral failed: %v", err)
	}
	if reloaded.CommissionAmount == nil || *reloaded.CommissionAmount != 1500 {
		t.Fatalf("commission must stay frozen at first conversion: %+v", reloaded.CommissionAmount)
	}

	if rows, err := repo.CaptureForPayout(affiliate.ID, 77); err != nil || rows != 1 {
		t.Fatalf("capture failed: rows=%d err=%v", rows, err)
	}
	// 之后转化的记录不属于该结算单
	if _, err := repo.MarkConverted(second.ID, 800, now); err != nil {
		t.Fatalf("convert second failed: %v", err)
	}
	if rows, _ := repo.MarkPaidByPayout(77); rows != 1 {
		t.Fatalf("expected exactly one captured referral marked paid, got %d", rows)
	}
	late, _ := repo.GetByID(second.ID)
	if late.CommissionPaid || late.PayoutID != nil {
		t.Fatalf("late conversion must remain unpaid and unbound: %+v", late)
	}

	stats, err := repo.StatsByAffiliate(affiliate.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCount != 2 || stats.ConvertedCount != 2 || stats.UnpaidCount != 1 || stats.PendingCount != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReferralRepositoryReleaseByPayout(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewReferralRepository(db)
	affiliate := createLedgerTestAffiliate(t, db, "release@example.com", 0, "")
	referral := models.Referral{AffiliateID: affiliate.ID, ReferredUserID: 201, ReferredEmail: "r@example.com", Status: constants.ReferralStatusPending}
	if err := repo.Create(&referral); err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	if _, err := repo.MarkConverted(referral.ID, 500, time.Now()); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if rows, _ := repo.CaptureForPayout(affiliate.ID, 5); rows != 1 {
		t.Fatalf("expected capture")
	}
	if rows, _ := repo.CaptureForPayout(affiliate.ID, 6); rows != 0 {
		t.Fatalf("already captured referral must not be captured twice")
	}
	if rows, _ := repo.ReleaseByPayout(5); rows != 1 {
		t.Fatalf("expected release")
	}
	if rows, _ := repo.CaptureForPayout(affiliate.ID, 6); rows != 1 {
		t.Fatalf("released referral should be capturable again")
	}
}

func TestPayoutRepositoryTransitIsConditional(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewPayoutRepository(db)
	affiliate := createLedgerTestAffiliate(t, db, "payout@example.com", 0, "")
	payout := models.Payout{
		AffiliateID: affiliate.ID,
		Amount:      5000,
		Currency:    "EUR",
		Method:      constants.PayoutMethodPayPal,
		Status:      constants.PayoutStatusPending,
		Reserved:    true,
	}
	if err := repo.Create(&payout); err != nil {
		t.Fatalf("create payout failed: %v", err)
	}

	if rows, err := repo.Transit(payout.ID, constants.PayoutStatusPending, constants.PayoutStatusFailed, nil); err != nil || rows != 0 {
		t.Fatalf("pending payout must not fail directly: rows=%d err=%v", rows, err)
	}
	if rows, err := repo.Transit(payout.ID, constants.PayoutStatusPending, constants.PayoutStatusProcessing, nil); err != nil || rows != 1 {
		t.Fatalf("transit failed: rows=%d err=%v", rows, err)
	}
	if rows, _ := repo.Transit(payout.ID, constants.PayoutStatusPending, constants.PayoutStatusProcessing, nil); rows != 0 {
		t.Fatalf("stale transit must not apply")
	}

	reserved, err := repo.SumReserved(affiliate.ID)
	if err != nil || reserved != 5000 {
		t.Fatalf("unexpected reserved sum: %d err=%v", reserved, err)
	}
	inFlight, err := repo.CountInFlight(affiliate.ID, []string{constants.PayoutStatusProcessing})
	if err != nil || inFlight != 1 {
		t.Fatalf("unexpected in-flight count: %d err=%v", inFlight, err)
	}

	paidAt := time.Now()
	if rows, err := repo.Transit(payout.ID, constants.PayoutStatusProcessing, constants.PayoutStatusPaid, map[string]interface{}{
		"transaction_id": "TXN-1",
		"paid_at":        paidAt,
	}); err != nil || rows != 1 {
		t.Fatalf("transit to paid failed: rows=%d err=%v", rows, err)
	}
	got, err := repo.GetByID(payout.ID)
	if err != nil || got == nil {
		t.Fatalf("reload payout failed: %v", err)
	}
	if got.Status != constants.PayoutStatusPaid || got.TransactionID != "TXN-1" || got.PaidAt == nil {
		t.Fatalf("unexpected payout: %+v", got)
	}
	if got.Affiliate == nil || got.Affiliate.ID != affiliate.ID {
		t.Fatalf("expected affiliate preload")
	}

	rows, total, err := repo.List(PayoutListFilter{Status: constants.PayoutStatusPaid, Page: 1, PageSize: 10})
	if err != nil || total != 1 || len(rows) != 1 {
		t.Fatalf("unexpected list result: total=%d err=%v", total, err)
	}
}

func TestAffiliateColumnsMatchRawQueries(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	for _, column := range []string{"paypal_email", "bank_account", "pending_earnings", "affiliate_code"} {
		if !db.Migrator().HasColumn(&models.Affiliate{}, column) {
			t.Fatalf("affiliates table missing column %s", column)
		}
	}

	createLedgerTestAffiliate(t, db, "columns@example.com", 6000, "columns-paypal@example.com")
	repo := NewAffiliateRepository(db)
	rows, total, err := repo.List(AffiliateListFilter{Page: 1, PageSize: 10, Keyword: "columns-paypal"})
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected keyword hit on paypal email, total=%d rows=%d", total, len(rows))
	}
}
