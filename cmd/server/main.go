// Command server runs the research review API together with the outbox
// dispatcher and the review deadline monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/config"
	httpapi "github.com/tbourn/research-review-backend/internal/http"
	"github.com/tbourn/research-review-backend/internal/mailer"
	"github.com/tbourn/research-review-backend/internal/observability"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
	"github.com/tbourn/research-review-backend/internal/services"
	"github.com/tbourn/research-review-backend/internal/storage"
	"github.com/tbourn/research-review-backend/internal/sysutil"
	"github.com/tbourn/research-review-backend/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config: %v\n", err)
		os.Exit(1)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		DSN:     cfg.DB.DSN,
		Path:    cfg.DB.Path,
		Tracing: cfg.OTEL.Enabled,
		LogSQL:  cfg.DB.LogSQL,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	files, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	transport, err := openTransport(cfg.SMTP)
	if err != nil {
		return err
	}
	lock, closeLock, err := openLock(cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLock()

	unit := repo.NewUnit(db)
	directory := repo.UserDirectory{DB: db}
	ob := outbox.New(db)
	wf := &services.Workflow{Unit: unit, Directory: directory, Notifier: ob}
	svc := httpapi.Services{
		Research: &services.ResearchService{
			Unit: unit, Directory: directory, Files: files, Notifier: ob,
			MaxFileBytes: cfg.Storage.MaxFileBytes,
		},
		Workflow: wf,
		Tracks:   &services.TrackService{Unit: unit, Directory: directory, Notifier: ob},
		Reviews: &services.ReviewService{
			Unit: unit, Directory: directory, Files: files, Notifier: ob, Workflow: wf,
			DeadlineDays:   cfg.Workflow.ReviewDeadlineDays,
			ScorePrecision: cfg.Workflow.ScorePrecision,
		},
	}

	var limiter *rate.Limiter
	if cfg.SMTP.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SMTP.RatePerSec), 1)
	}
	dispatcher := &worker.Dispatcher{
		DB:         db,
		Transport:  transport,
		BatchSize:  cfg.Workers.OutboxBatchSize,
		MaxRetries: cfg.Workers.OutboxMaxRetries,
		Limiter:    limiter,
	}
	monitor := &worker.DeadlineMonitor{DB: db, Directory: directory, Outbox: ob}

	var wg sync.WaitGroup
	for _, l := range []worker.Loop{
		dispatcher.Loop(cfg.Workers.OutboxInterval, lock),
		monitor.Loop(cfg.Workers.DeadlineScanInterval, lock),
	} {
		wg.Add(1)
		go func(l worker.Loop) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("listen: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	return nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (services.FileStore, error) {
	switch cfg.Driver {
	case "minio":
		m := cfg.Minio
		st, err := storage.NewMinioStore(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio storage: %w", err)
		}
		return st, nil
	default:
		st, err := storage.NewDiskStore(cfg.UploadPath)
		if err != nil {
			return nil, fmt.Errorf("disk storage: %w", err)
		}
		return st, nil
	}
}

// openTransport returns the SMTP transport, or a logging transport when no
// SMTP host is configured.
func openTransport(cfg config.SMTPConfig) (worker.MailTransport, error) {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; notifications will be logged, not sent")
		return mailer.LogTransport{}, nil
	}
	t, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Pass:          cfg.Pass,
		From:          cfg.From,
		SkipTLSVerify: cfg.SkipTLSVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return t, nil
}

// openLock returns a Redis tick lock so only one replica runs each worker
// tick. Without Redis every replica ticks.
func openLock(cfg config.RedisConfig) (worker.TickLock, func(), error) {
	if cfg.Addr == "" {
		return worker.NoopLock{}, func() {}, nil
	}
	l, err := worker.NewRedisLock(cfg.Addr, cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("redis lock: %w", err)
	}
	return l, func() {
		if err := l.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}, nil
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("database close")
	}
}
