package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// memFiles is an in-memory FileStore that records deletions.
type memFiles struct {
	mu      sync.Mutex
	n       int
	blobs   map[string][]byte
	deleted []string
	failOn  string
}

func newMemFiles() *memFiles { return &memFiles{blobs: map[string][]byte{}} }

func (m *memFiles) Store(_ context.Context, data []byte, name, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && name == m.failOn {
		return "", errors.New("disk full")
	}
	m.n++
	p := fmt.Sprintf("blob/%d/%s", m.n, name)
	m.blobs[p] = append([]byte(nil), data...)
	return p, nil
}

func (m *memFiles) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// failingNotifier always fails to enqueue.
type failingNotifier struct{ calls int }

func (f *failingNotifier) Enqueue(context.Context, outbox.Message) (*domain.NotificationRecord, error) {
	f.calls++
	return nil, errors.New("outbox unavailable")
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time         { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	db       *gorm.DB
	unit     *repo.Unit
	files    *memFiles
	clock    *testClock
	workflow *Workflow
	research *ResearchService
	tracks   *TrackService
	reviews  *ReviewService
}

// newEnv builds every service over a fresh migrated database with a fixed
// cast: alice and bob (researchers), mgr (track manager of "ai"), admin,
// rev1..rev3 (reviewers).
func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
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

	ai := "ai"
	users := []domain.User{
		{ID: "alice", DisplayName: "Alice", Email: "alice@example.org", Role: domain.RoleResearcher},
		{ID: "bob", DisplayName: "Bob", Email: "bob@example.org", Role: domain.RoleResearcher},
		{ID: "mgr", DisplayName: "Mia", Email: "mia@example.org", Role: domain.RoleTrackManager, ManagedTrack: &ai},
		{ID: "admin", DisplayName: "Ada", Email: "ada@example.org", Role: domain.RoleAdministrator},
		{ID: "rev1", DisplayName: "Rex", Email: "rex@example.org", Role: domain.RoleReviewer, Expertise: "graphs,machine learning"},
		{ID: "rev2", DisplayName: "Ria", Email: "ria@example.org", Role: domain.RoleReviewer, Expertise: "databases"},
		{ID: "rev3", DisplayName: "Ray", Email: "ray@example.org", Role: domain.RoleReviewer, Expertise: "graphs"},
	}
	for i := range users {
		if err := repo.UpsertUser(context.Background(), db, &users[i]); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	unit := repo.NewUnit(db)
	dir := repo.UserDirectory{DB: db}
	ob := &outbox.Outbox{DB: db, Now: clock.now}
	files := newMemFiles()

	wf := &Workflow{Unit: unit, Directory: dir, Notifier: ob, Now: clock.now}
	return &env{
		db: db, unit: unit, files: files, clock: clock, workflow: wf,
		research: &ResearchService{Unit: unit, Directory: dir, Files: files, Notifier: ob, Now: clock.now},
		tracks:   &TrackService{Unit: unit, Directory: dir, Notifier: ob, Now: clock.now},
		reviews: &ReviewService{Unit: unit, Directory: dir, Files: files, Notifier: ob, Workflow: wf,
			Now: clock.now, DeadlineDays: 14, ScorePrecision: 2},
	}
}

func sampleInput() ResearchInput {
	return ResearchInput{
		Title:    "T",
		Keywords: []string{"graphs", "machine learning"},
		Type:     "original",
		Language: "en",
		Authors: []AuthorInput{{
			FirstName: "Ali", LastName: "Hassan", Email: "a@x.com", Order: 1,
		}},
	}
}

func sampleFile(name string) Upload {
	return Upload{Name: name, ContentType: "application/pdf", Data: []byte("%PDF-1.7 " + name)}
}

// submit creates a research owned by alice and fails the test on error.
func (e *env) submit(t *testing.T) *domain.Research {
	t.Helper()
	r, err := e.research.SubmitResearch(context.Background(), sampleInput(), []Upload{sampleFile("paper.pdf")}, "alice")
	if err != nil {
		t.Fatalf("SubmitResearch: %v", err)
	}
	return r
}

// assignTrack puts r in track "ai" as admin.
func (e *env) assignTrack(t *testing.T, id string) {
	t.Helper()
	if _, err := e.tracks.AssignTrack(context.Background(), id, "ai", "admin", ""); err != nil {
		t.Fatalf("AssignTrack: %v", err)
	}
}

func (e *env) status(t *testing.T, id string) domain.Status {
	t.Helper()
	r, err := repo.GetResearchIncludingDeleted(context.Background(), e.db, id)
	if err != nil {
		t.Fatalf("reload research: %v", err)
	}
	return r.Status
}

func (e *env) notifications(t *testing.T, id string) []domain.NotificationRecord {
	t.Helper()
	out, err := repo.ListNotificationsForResearch(context.Background(), e.db, id)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return out
}

// failWritesTo makes every insert into table fail until the test ends.
func failWritesTo(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	name := "test:fail_" + table
	if err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement != nil && tx.Statement.Table == table {
			tx.AddError(errors.New("forced failure on " + table))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Create().Remove(name) })
}

func wantKind(t *testing.T, err error, k Kind) {
	t.Helper()
	if got := KindOf(err); got != k {
		t.Fatalf("want kind %q, got %q (err=%v)", k, got, err)
	}
}

func hasCategory(recs []domain.NotificationRecord, cat outbox.Category, to string) bool {
	for _, r := range recs {
		if r.Category == string(cat) && strings.EqualFold(r.ToAddress, to) {
			return true
		}
	}
	return false
}
