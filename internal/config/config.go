// Package config loads application settings from environment variables,
// applying defaults, normalization and validation. It covers the HTTP
// server, logging, database, blob storage, mail delivery, the background
// workers and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/research-review-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string // sqlite|postgres|mysql
	DSN    string // postgres/mysql only
	Path   string // sqlite file
	LogSQL bool
}

// MinioConfig holds object storage credentials.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects where uploaded files live.
type StorageConfig struct {
	Driver       string // disk|minio
	UploadPath   string // disk root
	MaxFileBytes int64
	Minio        MinioConfig
}

// SMTPConfig configures outbound mail. An empty Host selects the log
// transport.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	SkipTLSVerify bool
	RatePerSec    float64 // sends per second; 0 disables pacing
}

// RedisConfig configures the worker tick lock. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
}

// WorkflowConfig tunes review orchestration.
type WorkflowConfig struct {
	ReviewDeadlineDays int
	ScorePrecision     int
}

// WorkerConfig tunes the background loops.
type WorkerConfig struct {
	OutboxInterval       time.Duration
	OutboxBatchSize      int
	OutboxMaxRetries     int
	DeadlineScanInterval time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s; uploads need headroom
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	APIBasePath       string        // base path for API routes
	SwaggerEnabled    bool          // serve API docs at /swagger
	GzipEnabled       bool          // compress JSON responses

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	DB       DatabaseConfig
	Storage  StorageConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
	Workflow WorkflowConfig
	Workers  WorkerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		SwaggerEnabled:    getbool("SWAGGER_ENABLED", false),
		GzipEnabled:       getbool("GZIP_ENABLED", true),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DB: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:    getenv("DB_DSN", ""),
			Path:   getenv("DB_PATH", "review.db"),
			LogSQL: getbool("DB_LOG_SQL", false),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(getenv("STORAGE_DRIVER", "disk")),
			UploadPath:   getenv("UPLOAD_PATH", "uploads"),
			MaxFileBytes: int64(getint("MAX_FILE_BYTES", 20<<20)),
			Minio: MinioConfig{
				Endpoint:  getenv("MINIO_ENDPOINT", ""),
				AccessKey: getenv("MINIO_ACCESS_KEY", ""),
				SecretKey: getenv("MINIO_SECRET_KEY", ""),
				Bucket:    getenv("MINIO_BUCKET", "research-files"),
				UseSSL:    getbool("MINIO_USE_SSL", false),
			},
		},
		SMTP: SMTPConfig{
			Host:          getenv("SMTP_HOST", ""),
			Port:          getint("SMTP_PORT", 587),
			User:          getenv("SMTP_USER", ""),
			Pass:          getenv("SMTP_PASS", ""),
			From:          getenv("SMTP_FROM", ""),
			SkipTLSVerify: getbool("SMTP_SKIP_TLS_VERIFY", false),
			RatePerSec:    getfloat("MAIL_RATE_PER_SEC", 2),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
		},
		Workflow: WorkflowConfig{
			ReviewDeadlineDays: getint("REVIEW_DEADLINE_DAYS", 14),
			ScorePrecision:     getint("SCORE_PRECISION", 2),
		},
		Workers: WorkerConfig{
			OutboxInterval:       getdur("OUTBOX_INTERVAL", 5*time.Minute),
			OutboxBatchSize:      getint("OUTBOX_BATCH_SIZE", 10),
			OutboxMaxRetries:     getint("OUTBOX_MAX_RETRIES", 3),
			DeadlineScanInterval: getdur("DEADLINE_SCAN_INTERVAL", 12*time.Hour),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "research-review-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required for " + cfg.DB.Driver)
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	switch cfg.Storage.Driver {
	case "disk":
		if strings.TrimSpace(cfg.Storage.UploadPath) == "" {
			return cfg, errors.New("UPLOAD_PATH must not be empty")
		}
	case "minio":
		if cfg.Storage.Minio.Endpoint == "" || cfg.Storage.Minio.Bucket == "" {
			return cfg, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for minio storage")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: disk, minio")
	}
	if cfg.Storage.MaxFileBytes <= 0 {
		return cfg, errors.New("MAX_FILE_BYTES must be > 0")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.From == "" {
		return cfg, errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.SMTP.RatePerSec < 0 {
		return cfg, errors.New("MAIL_RATE_PER_SEC must be >= 0")
	}
	if cfg.Workflow.ReviewDeadlineDays < 1 {
		return cfg, errors.New("REVIEW_DEADLINE_DAYS must be >= 1")
	}
	if cfg.Workflow.ScorePrecision < 0 || cfg.Workflow.ScorePrecision > 6 {
		return cfg, errors.New("SCORE_PRECISION must be in [0,6]")
	}
	if cfg.Workers.OutboxInterval <= 0 || cfg.Workers.DeadlineScanInterval <= 0 {
		return cfg, errors.New("worker intervals must be positive durations")
	}
	if cfg.Workers.OutboxBatchSize < 1 {
		return cfg, errors.New("OUTBOX_BATCH_SIZE must be >= 1")
	}
	if cfg.Workers.OutboxMaxRetries < 1 {
		return cfg, errors.New("OUTBOX_MAX_RETRIES must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
