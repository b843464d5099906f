package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the explicit startup configuration. It is loaded once in the CLI and
// passed into constructors; nothing reads the environment after startup.
type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFile     string `mapstructure:"LOG_FILE"`

	PendingBookingTTL time.Duration `mapstructure:"PENDING_BOOKING_TTL"`
	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBatch        int           `mapstructure:"SWEEP_BATCH"`

	PaymeLogin     string        `mapstructure:"PAYME_LOGIN"`
	PaymeKey       string        `mapstructure:"PAYME_KEY"`
	PaymeTxTimeout time.Duration `mapstructure:"PAYME_TX_TIMEOUT"`

	ClickServiceID int    `mapstructure:"CLICK_SERVICE_ID"`
	ClickSecretKey string `mapstructure:"CLICK_SECRET_KEY"`

	CORSOrigins      string        `mapstructure:"CORS_ORIGINS"`
	BookingRateLimit string        `mapstructure:"BOOKING_RATE_LIMIT"`
	PaymentRateLimit string        `mapstructure:"PAYMENT_RATE_LIMIT"`
	ContentionWindow time.Duration `mapstructure:"CONTENTION_WINDOW"`
}

var defaults = map[string]any{
	"PORT":                "8081",
	"ENV":                 "development",
	"DATABASE_URL":        "",
	"REDIS_URL":           "",
	"JWT_SECRET":          "",
	"LOG_LEVEL":           "info",
	"LOG_FILE":            "",
	"PENDING_BOOKING_TTL": "30m",
	"SWEEP_INTERVAL":      "1m",
	"SWEEP_BATCH":         200,
	"PAYME_LOGIN":         "Paycom",
	"PAYME_KEY":           "",
	"PAYME_TX_TIMEOUT":    "12h",
	"CLICK_SERVICE_ID":    0,
	"CLICK_SECRET_KEY":    "",
	"CORS_ORIGINS":        "*",
	"BOOKING_RATE_LIMIT":  "10-1m",
	"PAYMENT_RATE_LIMIT":  "600-1m",
	"CONTENTION_WINDOW":   "15m",
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// Origins splits CORS_ORIGINS on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports settings the HTTP server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.PaymeKey == "" {
		errs = append(errs, errors.New("PAYME_KEY not set"))
	}
	if c.ClickSecretKey == "" {
		errs = append(errs, errors.New("CLICK_SECRET_KEY not set"))
	}
	if c.PendingBookingTTL <= 0 {
		errs = append(errs, errors.New("PENDING_BOOKING_TTL must be positive"))
	}
	return errors.Join(errs...)
}
