package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

func newWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// fakeTransport fails every send addressed to one of fail.
type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func newFakeTransport(fail ...string) *fakeTransport {
	f := &fakeTransport{fail: map[string]bool{}, calls: map[string]int{}}
	for _, a := range fail {
		f.fail[a] = true
	}
	return f
}

func (f *fakeTransport) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to]++
	if f.fail[to] {
		return errors.New("550 mailbox unavailable")
	}
	return nil
}

func (f *fakeTransport) count(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[to]
}

func enqueue(t *testing.T, ob *outbox.Outbox, email string) *domain.NotificationRecord {
	t.Helper()
	rec, err := ob.Enqueue(context.Background(), outbox.Message{
		Category: outbox.CategorySubmissionReceived,
		To:       domain.Identity{ID: email, DisplayName: "User", Email: email},
		View:     outbox.View{ResearchTitle: "T"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return rec
}

func TestDispatcher_RetryCapExcludesRecord(t *testing.T) {
	db := newWorkerDB(t)
	ctx := context.Background()
	ob := outbox.New(db)
	good := enqueue(t, ob, "good@x.com")
	bad := enqueue(t, ob, "bad@x.com")

	tr := newFakeTransport("bad@x.com")
	d := &Dispatcher{DB: db, Transport: tr}
	failedBefore := testutil.ToFloat64(dispatched.WithLabelValues("failed"))

	res, err := d.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("first tick: %+v", res)
	}
	got, _ := repo.GetNotification(ctx, db, good.ID)
	if got.Status != domain.NotificationSent || got.SentAt == nil {
		t.Fatalf("good record not stamped: %+v", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := d.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+2, err)
		}
	}
	if n := tr.count("bad@x.com"); n != 3 {
		t.Fatalf("bad record attempted %d times, want 3", n)
	}
	if n := tr.count("good@x.com"); n != 1 {
		t.Fatalf("sent record re-sent: %d", n)
	}
	got, _ = repo.GetNotification(ctx, db, bad.ID)
	if got.Status != domain.NotificationFailed || got.RetryCount != 3 || got.LastError == "" {
		t.Fatalf("bad record: %+v", got)
	}
	if d := testutil.ToFloat64(dispatched.WithLabelValues("failed")) - failedBefore; d != 3 {
		t.Fatalf("failed metric delta = %v, want 3", d)
	}
}

func TestDispatcher_BatchSize(t *testing.T) {
	db := newWorkerDB(t)
	ob := outbox.New(db)
	for i := 0; i < 4; i++ {
		enqueue(t, ob, "u@x.com")
	}
	d := &Dispatcher{DB: db, Transport: newFakeTransport(), BatchSize: 3}
	res, err := d.Tick(context.Background())
	if err != nil || res.Sent != 3 {
		t.Fatalf("want 3 sent, got %+v err=%v", res, err)
	}
	res, _ = d.Tick(context.Background())
	if res.Sent != 1 {
		t.Fatalf("want remaining 1, got %+v", res)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("héllo", 2) != "hé" || truncate("ok", 5) != "ok" {
		t.Fatalf("truncate misbehaves")
	}
}

type mapDirectory map[string]domain.Identity

func (m mapDirectory) Lookup(_ context.Context, id string) (domain.Identity, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return domain.Identity{}, repo.ErrNotFound
}

func seedResearch(t *testing.T, db *gorm.DB, id string, status domain.Status) {
	t.Helper()
	now := time.Now().UTC()
	r := &domain.Research{
		ID: id, Title: "Paper " + id, Type: "original", Language: "en",
		Status: status, SubmittedBy: "alice", SubmittedAt: now,
		Version: 1, CreatedBy: "alice", UpdatedBy: "alice",
	}
	if err := repo.CreateResearch(context.Background(), db, r); err != nil {
		t.Fatalf("seed research: %v", err)
	}
}

func seedReview(t *testing.T, db *gorm.DB, researchID, reviewerID string, deadline time.Time) {
	t.Helper()
	rv := &domain.Review{
		ID: uuid.NewString(), ResearchID: researchID, ReviewerID: reviewerID,
		Decision: domain.DecisionNotReviewed, AssignedAt: deadline.AddDate(0, 0, -14),
		Deadline: deadline, AssignedBy: "mgr",
	}
	if err := repo.CreateReview(context.Background(), db, rv); err != nil {
		t.Fatalf("seed review: %v", err)
	}
}

func TestDeadlineMonitor_UpcomingAndOverdue(t *testing.T) {
	db := newWorkerDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seedResearch(t, db, "r1", domain.StatusUnderReview)
	seedResearch(t, db, "r2", domain.StatusRejected)
	seedReview(t, db, "r1", "rev1", time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)) // tomorrow
	seedReview(t, db, "r1", "rev2", time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC))  // overdue
	seedReview(t, db, "r1", "rev3", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))  // later
	seedReview(t, db, "r2", "rev1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))   // terminal research
	seedReview(t, db, "r1", "ghost", time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)) // unknown reviewer

	dir := mapDirectory{
		"rev1": {ID: "rev1", DisplayName: "Rita", Email: "rita@x.com", Role: domain.RoleReviewer},
		"rev2": {ID: "rev2", DisplayName: "Ravi", Email: "ravi@x.com", Role: domain.RoleReviewer},
		"rev3": {ID: "rev3", DisplayName: "Rosa", Email: "rosa@x.com", Role: domain.RoleReviewer},
	}
	ob := outbox.New(db)
	m := &DeadlineMonitor{DB: db, Directory: dir, Outbox: ob, Now: func() time.Time { return now }}

	upBefore := testutil.ToFloat64(reminders.WithLabelValues("upcoming"))
	res, err := m.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Upcoming != 1 || res.Overdue != 1 {
		t.Fatalf("scan result %+v", res)
	}
	if d := testutil.ToFloat64(reminders.WithLabelValues("upcoming")) - upBefore; d != 1 {
		t.Fatalf("upcoming metric delta = %v", d)
	}

	recs, err := repo.ListNotificationsForResearch(ctx, db, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byAddr := map[string]string{}
	for _, r := range recs {
		byAddr[r.ToAddress] = r.Category
	}
	if byAddr["rita@x.com"] != string(outbox.CategoryDeadlineUpcoming) ||
		byAddr["ravi@x.com"] != string(outbox.CategoryDeadlineOverdue) || len(byAddr) != 2 {
		t.Fatalf("unexpected reminders: %v", byAddr)
	}

	// Every scan re-raises.
	res, _ = m.Tick(ctx)
	if res.Upcoming != 1 || res.Overdue != 1 {
		t.Fatalf("second scan %+v", res)
	}
}

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedisLockClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = l.Close() })
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "outbox", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.Acquire(ctx, "outbox", time.Minute); ok {
		t.Fatalf("second acquire should be refused")
	}
	if _, ok, _ := l.Acquire(ctx, "deadlines", time.Minute); !ok {
		t.Fatalf("independent names must not contend")
	}
	release()
	if _, ok, _ := l.Acquire(ctx, "outbox", time.Minute); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestRedisLock_ReleaseKeepsForeignHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedisLockClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = l.Close() })
	ctx := context.Background()

	stale, ok, _ := l.Acquire(ctx, "outbox", time.Second)
	if !ok {
		t.Fatalf("acquire")
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := l.Acquire(ctx, "outbox", time.Minute); !ok {
		t.Fatalf("expired lock should be re-acquirable")
	}
	stale()
	if !mr.Exists("review:worker:lock:outbox") {
		t.Fatalf("stale release removed the new holder's lock")
	}
}

func TestNewRedisLock_RequiresAddr(t *testing.T) {
	if _, err := NewRedisLock(" ", ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

type refusingLock struct{}

func (refusingLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, false, nil
}

func TestLoop_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	l := Loop{
		Name:     "test",
		Interval: time.Hour,
		Tick: func(tctx context.Context) error {
			calls++
			cancel()
			if tctx.Err() != nil {
				t.Errorf("tick context must not observe cancellation")
			}
			return nil
		},
	}
	l.Run(ctx)
	if calls != 1 {
		t.Fatalf("tick calls = %d, want 1", calls)
	}
}

func TestLoop_SkipsWhenLockHeld(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	l := Loop{Name: "test", Interval: time.Hour, Lock: refusingLock{}, Tick: func(context.Context) error {
		calls++
		return nil
	}}
	l.runOnce(ctx, time.Minute)
	cancel()
	l.Run(ctx)
	if calls != 0 {
		t.Fatalf("tick ran without the lock")
	}
}
