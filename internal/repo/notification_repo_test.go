package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/research-review-backend/internal/domain"
)

func TestPendingNotifications_RetryCapAndOrder(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	mk := func(offset time.Duration, status domain.NotificationStatus, retries int) string {
		n := &domain.NotificationRecord{
			ID: uuid.NewString(), ToAddress: "x@example.org", Subject: "s", Category: "status_changed",
			Status: status, RetryCount: retries, CreatedAt: base.Add(offset),
		}
		if err := CreateNotification(ctx, db, n); err != nil {
			t.Fatalf("create: %v", err)
		}
		return n.ID
	}
	first := mk(0, domain.NotificationPending, 0)
	retry := mk(time.Minute, domain.NotificationFailed, 2)
	mk(2*time.Minute, domain.NotificationFailed, 3)
	mk(3*time.Minute, domain.NotificationSent, 0)

	got, err := PendingNotifications(ctx, db, 10, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(got) != 2 || got[0].ID != first || got[1].ID != retry {
		t.Fatalf("unexpected eligible set: %+v", got)
	}

	limited, err := PendingNotifications(ctx, db, 1, 3)
	if err != nil || len(limited) != 1 || limited[0].ID != first {
		t.Fatalf("limit not applied: %+v err=%v", limited, err)
	}
}

func TestMarkNotification_SentAndFailed(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	n := &domain.NotificationRecord{
		ID: uuid.NewString(), ToAddress: "x@example.org", Subject: "s",
		Category: "review_assigned", Status: domain.NotificationPending,
	}
	if err := CreateNotification(ctx, db, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := MarkNotificationFailed(ctx, db, n.ID, "smtp down"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}
	got, err := GetNotification(ctx, db, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.NotificationFailed || got.RetryCount != 3 || got.LastError != "smtp down" {
		t.Fatalf("unexpected failed record: %+v", got)
	}
	if pending, _ := PendingNotifications(ctx, db, 10, 3); len(pending) != 0 {
		t.Fatalf("record at the cap is still eligible")
	}

	at := time.Now().UTC()
	if err := MarkNotificationSent(ctx, db, n.ID, at); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, _ = GetNotification(ctx, db, n.ID)
	if got.Status != domain.NotificationSent || got.SentAt == nil || got.LastError != "" {
		t.Fatalf("unexpected sent record: %+v", got)
	}
}

func TestListNotificationsForResearch(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	rid := "r1"
	for _, id := range []*string{&rid, nil} {
		n := &domain.NotificationRecord{
			ID: uuid.NewString(), ToAddress: "x@example.org", Subject: "s",
			Category: "submission_received", Status: domain.NotificationPending, ResearchID: id,
		}
		if err := CreateNotification(ctx, db, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := ListNotificationsForResearch(ctx, db, rid)
	if err != nil || len(got) != 1 {
		t.Fatalf("want 1 record, got %d err=%v", len(got), err)
	}
}
