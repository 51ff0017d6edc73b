package repository

import (
	"testing"
	"time"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"
)

func TestNotificationRepositoryLifecycle(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	event := models.NotificationEvent{
		EventType:     constants.NotificationEventPayoutPaid,
		DedupeKey:     "payout_paid:1",
		Recipient:     "a@example.com",
		Subject:       "paid",
		Status:        constants.NotificationStatusPending,
		NextAttemptAt: now,
	}
	created, err := repo.Create(&event)
	if err != nil || !created {
		t.Fatalf("create event failed: created=%v err=%v", created, err)
	}
	again := event
	again.ID = 0
	created, err = repo.Create(&again)
	if err != nil || created {
		t.Fatalf("duplicate dedupe key must be ignored: created=%v err=%v", created, err)
	}

	if rows, err := repo.Claim(event.ID, now.Add(-time.Minute)); err != nil || rows != 0 {
		t.Fatalf("claim before due must not apply: rows=%d err=%v", rows, err)
	}
	if rows, err := repo.Claim(event.ID, now); err != nil || rows != 1 {
		t.Fatalf("claim failed: rows=%d err=%v", rows, err)
	}
	if rows, _ := repo.Claim(event.ID, now); rows != 0 {
		t.Fatalf("double claim must not apply")
	}

	reclaimed, err := repo.ReclaimStale(now.Add(time.Hour), now.Add(time.Hour))
	if err != nil || reclaimed != 1 {
		t.Fatalf("reclaim failed: rows=%d err=%v", reclaimed, err)
	}
	due, err := repo.ListDue(now.Add(time.Hour), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected reclaimed event due: %d err=%v", len(due), err)
	}
	if due[0].Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", due[0].Attempts)
	}

	if _, err := repo.Claim(event.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("reclaim claim failed: %v", err)
	}
	if err := repo.MarkSent(event.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	counts, err := repo.CountByStatus()
	if err != nil {
		t.Fatalf("count by status failed: %v", err)
	}
	if counts[constants.NotificationStatusSent] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestRunLeaseRepositoryExclusive(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRunLeaseRepository(db)
	now := time.Now().UTC()

	ok, err := repo.TryAcquire(constants.LeaseNamePayoutBatch, "holder-a", time.Minute, now)
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	ok, err = repo.TryAcquire(constants.LeaseNamePayoutBatch, "holder-b", time.Minute, now)
	if err != nil || ok {
		t.Fatalf("second holder must not acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Refresh(constants.LeaseNamePayoutBatch, "holder-b", time.Minute, now); ok {
		t.Fatalf("non-holder must not refresh")
	}
	if ok, _ := repo.Refresh(constants.LeaseNamePayoutBatch, "holder-a", time.Minute, now); !ok {
		t.Fatalf("holder should refresh")
	}

	// 过期后可被接管
	ok, err = repo.TryAcquire(constants.LeaseNamePayoutBatch, "holder-b", time.Minute, now.Add(2*time.Minute))
	if err != nil || !ok {
		t.Fatalf("expired lease should be taken over: ok=%v err=%v", ok, err)
	}
	if err := repo.Release(constants.LeaseNamePayoutBatch, "holder-a"); err != nil {
		t.Fatalf("release by stale holder failed: %v", err)
	}
	ok, _ = repo.TryAcquire(constants.LeaseNamePayoutBatch, "holder-c", time.Minute, now.Add(2*time.Minute))
	if ok {
		t.Fatalf("stale holder release must not drop current lease")
	}
	if err := repo.Release(constants.LeaseNamePayoutBatch, "holder-b"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, _ = repo.TryAcquire(constants.LeaseNamePayoutBatch, "holder-c", time.Minute, now.Add(2*time.Minute))
	if !ok {
		t.Fatalf("released lease should be acquirable")
	}
}
