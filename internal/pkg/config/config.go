// Package config loads gateway settings with viper: built-in defaults,
// overridden by an optional file named in CONFIG_FILE, overridden by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MemoryStoreURL selects the in-memory data service.
const MemoryStoreURL = "memory://"

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	StoreURL             string        `mapstructure:"STORE_URL"`
	StoreTimeout         time.Duration `mapstructure:"STORE_TIMEOUT"`
	StoreBreakerFailures uint32        `mapstructure:"STORE_BREAKER_FAILURES"`
	StoreBreakerCooldown time.Duration `mapstructure:"STORE_BREAKER_COOLDOWN"`

	// RedisAddr enables checkout replay by idempotency key when set.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// CheckoutLogPath is the SQLite file of the checkout log. Empty disables
	// the log and the reconciler.
	CheckoutLogPath   string        `mapstructure:"CHECKOUT_LOG_PATH"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`

	// KafkaBrokers enables order events when non-empty.
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	OrdersTopic  string   `mapstructure:"ORDERS_TOPIC"`

	// PaymentDeclineAbove makes the simulated gateway decline larger
	// amounts. Zero approves everything.
	PaymentDeclineAbove float64 `mapstructure:"PAYMENT_DECLINE_ABOVE"`

	DisplayRate int64  `mapstructure:"DISPLAY_RATE"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint enables tracing when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8080",
	"STORE_URL":                   MemoryStoreURL,
	"STORE_TIMEOUT":               "5s",
	"STORE_BREAKER_FAILURES":      5,
	"STORE_BREAKER_COOLDOWN":      "30s",
	"REDIS_ADDR":                  "",
	"CHECKOUT_LOG_PATH":           "./data/checkout.db",
	"RECONCILE_INTERVAL":          "1m",
	"KAFKA_BROKERS":               []string{},
	"ORDERS_TOPIC":                "orders.completed",
	"PAYMENT_DECLINE_ABOVE":       0,
	"DISPLAY_RATE":                85,
	"LOG_LEVEL":                   "info",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_SERVICE_NAME":           "storefront-gateway",
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.StoreURL == "" {
		errs = append(errs, errors.New("STORE_URL is required"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.StoreBreakerFailures == 0 {
		errs = append(errs, errors.New("STORE_BREAKER_FAILURES must be at least 1"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	if c.PaymentDeclineAbove < 0 {
		errs = append(errs, errors.New("PAYMENT_DECLINE_ABOVE must not be negative"))
	}
	if c.DisplayRate <= 0 {
		errs = append(errs, errors.New("DISPLAY_RATE must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UsesMemoryStore reports whether the in-memory data service is selected.
func (c *Config) UsesMemoryStore() bool {
	return c.StoreURL == MemoryStoreURL
}

// splitList trims entries and drops empty ones, so "a, b," and [a b] agree.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
