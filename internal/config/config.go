// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port             string
	Env              string // "development", "staging", "production"
	LogLevel         string
	LogFormat        string // "json" or "text"
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	MaxRequestBytes  int64

	// Database (optional, uses in-memory stores if not set)
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	AutoMigrate    bool

	// Vault
	CustodyAddress  string        // account holding escrowed deposits
	SignatureMaxAge time.Duration // accepted clock skew for signed requests
	MonitorInterval time.Duration // stale-booking scan period
	NotifyQueueSize int
	WebhookURL      string // optional event webhook
	WebhookSecret   string
	OTLPEndpoint    string // optional trace exporter

	// Edge
	RateLimitPerMinute int
	RateLimitBurst     int
	CORSOrigins        []string
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultCustodyAddress  = "0x00000000000000000000000000000000000c0de5"
	DefaultSignatureMaxAge = 5 * time.Minute
	DefaultMonitorInterval = time.Minute
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultMaxRequestBytes = 64 << 10
	DefaultNotifyQueueSize = 1024
	DefaultRateLimitRPM    = 120
	DefaultRateLimitBurst  = 20
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", DefaultEnv)
	defaultFormat := "text"
	if env == "production" {
		defaultFormat = "json"
	}

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              env,
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", defaultFormat),
		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", DefaultReadTimeout),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultWriteTimeout),
		MaxRequestBytes:  getEnvInt64("MAX_REQUEST_BYTES", DefaultMaxRequestBytes),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxOpenConns:   int(getEnvInt64("DB_MAX_OPEN_CONNS", DefaultMaxOpenConns)),
		DBMaxIdleConns:   int(getEnvInt64("DB_MAX_IDLE_CONNS", DefaultMaxIdleConns)),
		AutoMigrate:      getEnvBool("AUTO_MIGRATE", true),
		CustodyAddress:   strings.ToLower(getEnv("CUSTODY_ADDRESS", DefaultCustodyAddress)),
		SignatureMaxAge:  getEnvDuration("SIGNATURE_MAX_AGE", DefaultSignatureMaxAge),
		MonitorInterval:  getEnvDuration("MONITOR_INTERVAL", DefaultMonitorInterval),
		NotifyQueueSize:  int(getEnvInt64("NOTIFY_QUEUE_SIZE", DefaultNotifyQueueSize)),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_PER_MINUTE", DefaultRateLimitRPM)),
		RateLimitBurst:     int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		CORSOrigins:        getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if !strings.HasPrefix(c.CustodyAddress, "0x") || !common.IsHexAddress(c.CustodyAddress) {
		return fmt.Errorf("CUSTODY_ADDRESS must be a 0x-prefixed 20-byte hex address")
	}
	if c.SignatureMaxAge <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_AGE must be positive")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", c.DBMaxIdleConns, c.DBMaxOpenConns)
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must be an http(s) URL")
	}
	if c.IsProduction() && c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required for webhooks in production")
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
