package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// newRepoDB opens a migrated, file-backed SQLite database unique to the test.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// seedResearch inserts a submitted research owned by owner.
func seedResearch(t *testing.T, db *gorm.DB, id, owner string) *domain.Research {
	t.Helper()
	now := time.Now().UTC()
	r := &domain.Research{
		ID: id, Title: "T", Type: "original", Language: "en",
		Status: domain.StatusSubmitted, SubmittedBy: owner, SubmittedAt: now,
		Version: 1, CreatedBy: owner, UpdatedBy: owner,
	}
	if err := CreateResearch(context.Background(), db, r); err != nil {
		t.Fatalf("seed research: %v", err)
	}
	return r
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpen_SQLiteSetsPragmasAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(Options{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	var busyMS int
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range Models() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestTranslate(t *testing.T) {
	if translate(nil) != nil {
		t.Fatalf("translate(nil) should be nil")
	}
	if translate(gorm.ErrRecordNotFound) != ErrNotFound {
		t.Fatalf("not found not mapped")
	}
	if translate(gorm.ErrDuplicatedKey) != ErrDuplicate {
		t.Fatalf("gorm duplicate not mapped")
	}
	if translate(errString("UNIQUE constraint failed: research_authors.position")) != ErrDuplicate {
		t.Fatalf("sqlite unique not mapped")
	}
	if translate(errString("Error 1062: Duplicate entry 'x' for key")) != ErrDuplicate {
		t.Fatalf("mysql duplicate not mapped")
	}
	if translate(errString("database is locked (5) (SQLITE_BUSY)")) != ErrConflict {
		t.Fatalf("sqlite busy not mapped")
	}
	if translate(errString("ERROR: could not serialize access due to concurrent update")) != ErrConflict {
		t.Fatalf("postgres serialization failure not mapped")
	}
	other := errString("boom")
	if translate(other) != other {
		t.Fatalf("unknown errors must pass through")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
