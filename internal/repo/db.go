// Package repo implements the persistence gateway for the review lifecycle
// engine, backed by GORM. This file contains database bootstrapping helpers
// for SQLite (pure Go driver), PostgreSQL and MySQL, plus schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// Options selects and tunes the database connection.
type Options struct {
	Driver  string // sqlite|postgres|mysql
	DSN     string // postgres/mysql connection string
	Path    string // sqlite file path
	Tracing bool   // register the OpenTelemetry GORM plugin
	LogSQL  bool   // log every statement (development only)
}

// Open connects to the configured database, applies driver specific tuning
// and optionally enables tracing.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite":
		db, err = OpenSQLite(opts.Path)
	case "postgres", "postgresql":
		if db, err = gorm.Open(postgres.Open(opts.DSN), gormConfig(opts)); err == nil {
			tunePool(db, 25)
		}
	case "mysql":
		if db, err = gorm.Open(mysql.Open(opts.DSN), gormConfig(opts)); err == nil {
			tunePool(db, 25)
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("enable gorm tracing: %w", err)
		}
	}
	return db, nil
}

func gormConfig(opts Options) *gorm.Config {
	lvl := logger.Warn
	if opts.LogSQL {
		lvl = logger.Info
	}
	return &gorm.Config{Logger: logger.Default.LogMode(lvl)}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
// PRAGMAs are also passed through the DSN so every pooled connection gets
// them, not only the one that ran the Exec.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	tunePool(db, 10)
	return db, nil
}

func tunePool(db *gorm.DB, maxConns int) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// Models lists every persisted type, parents first.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Research{},
		&domain.Author{},
		&domain.Review{},
		&domain.File{},
		&domain.StatusHistory{},
		&domain.TrackHistory{},
		&domain.NotificationRecord{},
	}
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
