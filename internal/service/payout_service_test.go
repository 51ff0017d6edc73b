package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/repository"
)

func TestRequestPayoutBelowThresholdReportsShortfall(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 6000)

	_, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	var shortfall *PayoutShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected PayoutShortfallError, got %v", err)
	}
	if shortfall.Shortfall != 2000 || !errors.Is(err, ErrPayoutBelowThreshold) {
		t.Fatalf("unexpected shortfall: %+v", shortfall)
	}
	if !strings.Contains(err.Error(), "€20.00") {
		t.Fatalf("message should carry the exact amount, got %q", err.Error())
	}
	if got := countServiceTestRows(t, env.db, &models.Payout{}, ""); got != 0 {
		t.Fatalf("rejected request must not create payouts, got %d", got)
	}
	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PendingEarnings != 3000 {
		t.Fatalf("rejected request must not touch the balance, got %d", reloaded.PendingEarnings)
	}
}

func TestRequestPayoutRequiresDestination(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 20000)

	for _, method := range []string{constants.PayoutMethodPayPal, constants.PayoutMethodBank} {
		if _, err := env.payouts.RequestPayout(affiliate.UserID, method); !errors.Is(err, ErrPayoutDestinationMissing) {
			t.Fatalf("method %s: expected ErrPayoutDestinationMissing, got %v", method, err)
		}
	}
	if _, err := env.payouts.RequestPayout(affiliate.UserID, "crypto"); !errors.Is(err, ErrPayoutMethodInvalid) {
		t.Fatalf("expected ErrPayoutMethodInvalid, got %v", err)
	}
	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PendingEarnings != 10000 {
		t.Fatalf("balance must be untouched, got %d", reloaded.PendingEarnings)
	}
}

func TestRequestPayoutReservesPendingBalance(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	conversion := convertServiceTestReferral(t, env, affiliate, "friend@example.com", 12000)

	payout, err := env.payouts.RequestPayout(affiliate.UserID, "")
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}
	if payout.Amount != 6000 || payout.Status != constants.PayoutStatusPending || !payout.Reserved {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if payout.Method != constants.PayoutMethodPayPal || payout.Destination != "promoter@paypal.test" || payout.Currency != "EUR" {
		t.Fatalf("unexpected payout destination: %+v", payout)
	}

	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PendingEarnings != 0 || reloaded.PaidEarnings != 6000 || reloaded.TotalEarnings != 6000 {
		t.Fatalf("pending must be reserved atomically: %+v", reloaded)
	}

	var referral models.Referral
	if err := env.db.First(&referral, conversion.Referral.ID).Error; err != nil {
		t.Fatalf("reload referral failed: %v", err)
	}
	if referral.PayoutID == nil || *referral.PayoutID != payout.ID || referral.CommissionPaid {
		t.Fatalf("referral should be captured but unpaid: %+v", referral)
	}

	_, err = env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	if !errors.Is(err, ErrPayoutBelowThreshold) {
		t.Fatalf("second request must not reserve the same funds, got %v", err)
	}
	if got := countServiceTestRows(t, env.db, &models.Payout{}, ""); got != 1 {
		t.Fatalf("expected exactly one payout, got %d", got)
	}

	stats, err := env.affiliates.GetAffiliateStats(affiliate.UserID)
	if err != nil {
		t.Fatalf("get stats failed: %v", err)
	}
	if stats.ReservedAmount != 6000 {
		t.Fatalf("expected reserved amount 6000, got %d", stats.ReservedAmount)
	}
}

func TestRequestPayoutRejectsSuspendedAffiliate(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 20000)
	if _, err := env.affiliates.UpdateAffiliateStatus(affiliate.ID, constants.AffiliateStatusSuspended); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if _, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal); !errors.Is(err, ErrAffiliateSuspended) {
		t.Fatalf("expected ErrAffiliateSuspended, got %v", err)
	}
}

func TestRequestPayoutBlockedWhileBatchPayoutInFlight(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 20000)
	inFlight := models.Payout{
		AffiliateID: affiliate.ID,
		Amount:      10000,
		Currency:    "EUR",
		Method:      constants.PayoutMethodPayPal,
		Status:      constants.PayoutStatusProcessing,
	}
	if err := env.db.Create(&inFlight).Error; err != nil {
		t.Fatalf("create in-flight payout failed: %v", err)
	}
	if _, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal); !errors.Is(err, ErrPayoutInFlight) {
		t.Fatalf("expected ErrPayoutInFlight, got %v", err)
	}
}

func TestProcessPayoutSettlesCapturedReferralsOnly(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	first := convertServiceTestReferral(t, env, affiliate, "first@example.com", 12000)

	payout, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}
	late := convertServiceTestReferral(t, env, affiliate, "late@example.com", 2000)

	pending, total, err := env.payouts.GetPendingPayouts(1, 20)
	if err != nil {
		t.Fatalf("get pending payouts failed: %v", err)
	}
	if total != 1 || pending[0].ID != payout.ID {
		t.Fatalf("unexpected pending payouts: total=%d", total)
	}

	processed, err := env.payouts.ProcessPayout(ProcessPayoutInput{
		PayoutID:      payout.ID,
		AdminID:       7,
		TransactionID: " PP-TXN-1 ",
		Notes:         "paid manually",
	})
	if err != nil {
		t.Fatalf("process payout failed: %v", err)
	}
	if processed.Status != constants.PayoutStatusPaid || processed.TransactionID != "PP-TXN-1" || processed.PaidAt == nil {
		t.Fatalf("unexpected processed payout: %+v", processed)
	}
	if processed.ProcessedBy == nil || *processed.ProcessedBy != 7 {
		t.Fatalf("processed_by not recorded: %+v", processed)
	}

	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PaidEarnings != 6000 || reloaded.PendingEarnings != 1000 || reloaded.LastPayoutDate == nil {
		t.Fatalf("unexpected ledger after processing: %+v", reloaded)
	}

	var firstRow, lateRow models.Referral
	env.db.First(&firstRow, first.Referral.ID)
	env.db.First(&lateRow, late.Referral.ID)
	if !firstRow.CommissionPaid {
		t.Fatalf("captured referral must be marked paid")
	}
	if lateRow.CommissionPaid || lateRow.PayoutID != nil {
		t.Fatalf("late conversion must stay unpaid and unbound: %+v", lateRow)
	}

	if _, err := env.payouts.ProcessPayout(ProcessPayoutInput{PayoutID: payout.ID}); !errors.Is(err, ErrPayoutStatusInvalid) {
		t.Fatalf("terminal payout must not be processed again, got %v", err)
	}
	if _, err := env.payouts.ProcessPayout(ProcessPayoutInput{PayoutID: 9999}); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
	if got := countServiceTestRows(t, env.db, &models.NotificationEvent{}, "event_type = ?", constants.NotificationEventPayoutPaid); got != 1 {
		t.Fatalf("expected one payout paid notification, got %d", got)
	}
}

func TestProcessUnreservedPayoutSettlesPending(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 12000)

	stuck := models.Payout{
		AffiliateID: affiliate.ID,
		Amount:      6000,
		Currency:    "EUR",
		Method:      constants.PayoutMethodPayPal,
		Status:      constants.PayoutStatusProcessing,
	}
	if err := env.db.Create(&stuck).Error; err != nil {
		t.Fatalf("create stuck payout failed: %v", err)
	}
	if _, err := env.payouts.ProcessPayout(ProcessPayoutInput{PayoutID: stuck.ID, TransactionID: "RECONCILED"}); err != nil {
		t.Fatalf("process stuck payout failed: %v", err)
	}
	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PendingEarnings != 0 || reloaded.PaidEarnings != 6000 {
		t.Fatalf("unreserved payout must settle pending on completion: %+v", reloaded)
	}
}

func TestFailPayoutRestoresReservedBalance(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	conversion := convertServiceTestReferral(t, env, affiliate, "friend@example.com", 12000)

	payout, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}
	failed, err := env.payouts.FailPayout(FailPayoutInput{PayoutID: payout.ID, AdminID: 3, Notes: "paypal account closed"})
	if err != nil {
		t.Fatalf("fail payout failed: %v", err)
	}
	if failed.Status != constants.PayoutStatusFailed || failed.Notes != "paypal account closed" {
		t.Fatalf("unexpected failed payout: %+v", failed)
	}
	if failed.ProcessedBy == nil || *failed.ProcessedBy != 3 {
		t.Fatalf("rejecting admin must be recorded: %+v", failed)
	}

	reloaded := reloadServiceTestAffiliate(t, env.db, affiliate.ID)
	if reloaded.PendingEarnings != 6000 || reloaded.PaidEarnings != 0 {
		t.Fatalf("reserved balance must be restored: %+v", reloaded)
	}
	var referral models.Referral
	env.db.First(&referral, conversion.Referral.ID)
	if referral.PayoutID != nil || referral.CommissionPaid {
		t.Fatalf("referral must be released: %+v", referral)
	}

	if _, err := env.payouts.FailPayout(FailPayoutInput{PayoutID: payout.ID}); !errors.Is(err, ErrPayoutStatusInvalid) {
		t.Fatalf("failed payout must not regress, got %v", err)
	}

	again, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	if err != nil {
		t.Fatalf("restored balance must be requestable again: %v", err)
	}
	if again.Amount != 6000 {
		t.Fatalf("unexpected amount on retry: %d", again.Amount)
	}
}

func TestListPayoutsAndGatewayStatus(t *testing.T) {
	env := setupLedgerServiceTest(t)
	affiliate := createServiceTestAffiliate(t, env, "promoter@example.com", "promoter@paypal.test")
	convertServiceTestReferral(t, env, affiliate, "friend@example.com", 12000)
	payout, err := env.payouts.RequestPayout(affiliate.UserID, constants.PayoutMethodPayPal)
	if err != nil {
		t.Fatalf("request payout failed: %v", err)
	}

	if _, _, err := env.payouts.ListPayouts(repository.PayoutListFilter{Status: "unknown"}); !errors.Is(err, ErrPayoutStatusInvalid) {
		t.Fatalf("expected ErrPayoutStatusInvalid, got %v", err)
	}
	own, total, err := env.payouts.ListAffiliatePayouts(affiliate.UserID, 1, 10)
	if err != nil || total != 1 || own[0].ID != payout.ID {
		t.Fatalf("unexpected own payouts: total=%d err=%v", total, err)
	}

	if _, err := env.payouts.GetGatewayStatus(t.Context(), payout.ID); !errors.Is(err, ErrPayoutNoBatch) {
		t.Fatalf("manual payout has no gateway batch, got %v", err)
	}
	if err := env.db.Model(&models.Payout{}).Where("id = ?", payout.ID).Update("batch_id", "B-1").Error; err != nil {
		t.Fatalf("set batch id failed: %v", err)
	}
	status, err := env.payouts.GetGatewayStatus(t.Context(), payout.ID)
	if err != nil {
		t.Fatalf("gateway status failed: %v", err)
	}
	if status.BatchID != "B-1" || len(status.Items) != 1 {
		t.Fatalf("unexpected gateway status: %+v", status)
	}
}
