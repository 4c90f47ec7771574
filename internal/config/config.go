// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"libraryms/internal/maintenance"
	"libraryms/internal/store"
	"libraryms/internal/store/sqlstore"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	DBDriver     string
	DatabaseURL  string
	AutoMigrate  bool
	MaxOpenConns int
	Tx           store.TxConfig

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthRatePerMin  int

	SweepTimeout time.Duration
	Schedule     maintenance.Schedule
	Scheduler    bool

	ReportDir string

	LogLevel  string
	LogFormat string

	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Load reads envFile when it exists and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	p := &parser{}
	defaults := maintenance.DefaultSchedule()
	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		DBDriver:     getEnv("DB_DRIVER", sqlstore.DriverSQLite),
		DatabaseURL:  getEnv("DATABASE_URL", sqlstore.SQLiteDSN("libraryms.db")),
		AutoMigrate:  p.bool("AUTO_MIGRATE", true),
		MaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 10),
		Tx: store.TxConfig{
			Timeout:     p.duration("STORE_TIMEOUT", store.DefaultTxConfig().Timeout),
			MaxAttempts: p.int("STORE_MAX_ATTEMPTS", store.DefaultTxConfig().MaxAttempts),
			BaseDelay:   p.duration("STORE_RETRY_DELAY", store.DefaultTxConfig().BaseDelay),
		},

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  p.duration("ACCESS_TOKEN_TTL", 5*time.Minute),
		RefreshTokenTTL: p.duration("REFRESH_TOKEN_TTL", 24*time.Hour),
		AuthRatePerMin:  p.int("AUTH_RATE_PER_MINUTE", 20),

		SweepTimeout: p.duration("SWEEP_TIMEOUT", 5*time.Minute),
		Schedule: maintenance.Schedule{
			maintenance.SweepExpire:    getEnv("SCHEDULE_EXPIRE", defaults[maintenance.SweepExpire]),
			maintenance.SweepAvailable: getEnv("SCHEDULE_AVAILABLE", defaults[maintenance.SweepAvailable]),
			maintenance.SweepDueSoon:   getEnv("SCHEDULE_DUE_SOON", defaults[maintenance.SweepDueSoon]),
			maintenance.SweepOverdue:   getEnv("SCHEDULE_OVERDUE", defaults[maintenance.SweepOverdue]),
		},
		Scheduler: p.bool("SCHEDULER_ENABLED", true),

		ReportDir: getEnv("REPORT_DIR", "reports"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: p.float("OTEL_TRACES_SAMPLE_RATIO", 1),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := sqlstore.DialectFor(c.DBDriver); err != nil {
		return err
	}
	if c.Tx.MaxAttempts < 1 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be at least 1, got %d", c.Tx.MaxAttempts)
	}
	if c.AuthRatePerMin < 1 {
		return fmt.Errorf("AUTH_RATE_PER_MINUTE must be at least 1, got %d", c.AuthRatePerMin)
	}
	return nil
}

// RequireJWTSecret reports an error when no signing secret is configured.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so all bad variables are reported at once.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}
