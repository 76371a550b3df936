// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/paycore/domain/billing"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. It is read once at startup
// and never mutated afterwards.
type Config struct {
	Processor ProcessorConfig `yaml:"processor"`
	Billing   BillingConfig   `yaml:"billing"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ProcessorConfig configures the payment processor client.
type ProcessorConfig struct {
	Mode              string        `yaml:"mode"` // "stripe" or "memory"
	APIKey            string        `yaml:"api_key,omitempty"`
	MaxNetworkRetries int64         `yaml:"max_network_retries"` // 0 = no SDK retries
	RateLimit         float64       `yaml:"rate_limit"`          // requests per second, 0 = unlimited
	RateBurst         int           `yaml:"rate_burst"`
	Timeout           time.Duration `yaml:"timeout"`
	URL               string        `yaml:"url,omitempty"` // API endpoint override (stripe-mock)
}

// BillingConfig configures money handling and ledger dates.
type BillingConfig struct {
	Currency            string `yaml:"currency"`
	MinorUnitMultiplier int64  `yaml:"minor_unit_multiplier"`
	Timezone            string `yaml:"timezone"` // IANA name, "" = Local
}

// CatalogConfig declares the products and plans to provision.
type CatalogConfig struct {
	SyncOnStart bool            `yaml:"sync_on_start"`
	Products    []ProductConfig `yaml:"products"`
	Plans       []PlanConfig    `yaml:"plans"`
}

// ProductConfig declares a product.
type ProductConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// PlanConfig declares a recurring plan. Amount is in major units.
type PlanConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Amount    float64 `yaml:"amount"`
	Interval  string  `yaml:"interval"` // day, week, month, year
	ProductID string  `yaml:"product_id"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AuthSecret signs API bearer tokens. Empty leaves /billing open.
	AuthSecret string        `yaml:"auth_secret,omitempty"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// DatabaseConfig configures the local customer-record store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	PAYCORE_PROCESSOR_MODE        - stripe or memory (default: stripe if an API key is set, else memory)
//	PAYCORE_PROCESSOR_API_KEY     - Stripe secret key
//	PAYCORE_PROCESSOR_RETRIES     - SDK network retries (default: 0)
//	PAYCORE_PROCESSOR_RATE_LIMIT  - requests per second (default: 25)
//	PAYCORE_PROCESSOR_URL         - API endpoint override
//	PAYCORE_BILLING_CURRENCY      - settlement currency (default: eur)
//	PAYCORE_BILLING_MULTIPLIER    - major to minor unit factor (default: 100)
//	PAYCORE_BILLING_TIMEZONE      - ledger date timezone (default: Local)
//	PAYCORE_SERVER_HOST           - Server host (default: 0.0.0.0)
//	PAYCORE_SERVER_PORT           - Server port (default: 8080)
//	PAYCORE_SERVER_AUTH_SECRET    - API token signing secret (default: API open)
//	PAYCORE_DATABASE_DSN          - Database path (default: paycore.db)
//	PAYCORE_LOG_LEVEL             - Log level (default: info)
//	PAYCORE_LOG_FORMAT            - json or console (default: json)
//	PAYCORE_METRICS_ENABLED       - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists, otherwise the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies PAYCORE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Processor configuration
	if v := os.Getenv("PAYCORE_PROCESSOR_MODE"); v != "" {
		cfg.Processor.Mode = v
	}
	if v := os.Getenv("PAYCORE_PROCESSOR_API_KEY"); v != "" {
		cfg.Processor.APIKey = v
	}
	if v := os.Getenv("PAYCORE_PROCESSOR_RETRIES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Processor.MaxNetworkRetries = n
		}
	}
	if v := os.Getenv("PAYCORE_PROCESSOR_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Processor.RateLimit = f
		}
	}
	if v := os.Getenv("PAYCORE_PROCESSOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Processor.Timeout = d
		}
	}
	if v := os.Getenv("PAYCORE_PROCESSOR_URL"); v != "" {
		cfg.Processor.URL = v
	}

	// Billing configuration
	if v := os.Getenv("PAYCORE_BILLING_CURRENCY"); v != "" {
		cfg.Billing.Currency = v
	}
	if v := os.Getenv("PAYCORE_BILLING_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Billing.MinorUnitMultiplier = n
		}
	}
	if v := os.Getenv("PAYCORE_BILLING_TIMEZONE"); v != "" {
		cfg.Billing.Timezone = v
	}

	// Server configuration
	if v := os.Getenv("PAYCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PAYCORE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PAYCORE_SERVER_AUTH_SECRET"); v != "" {
		cfg.Server.AuthSecret = v
	}

	// Database configuration
	if v := os.Getenv("PAYCORE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("PAYCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PAYCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("PAYCORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("PAYCORE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Processor.Mode == "" {
		if cfg.Processor.APIKey != "" {
			cfg.Processor.Mode = "stripe"
		} else {
			cfg.Processor.Mode = "memory"
		}
	}
	cfg.Processor.Mode = strings.ToLower(cfg.Processor.Mode)
	if cfg.Processor.RateLimit == 0 {
		cfg.Processor.RateLimit = 25
	}
	if cfg.Processor.RateBurst == 0 {
		cfg.Processor.RateBurst = 5
	}
	if cfg.Processor.Timeout == 0 {
		cfg.Processor.Timeout = 30 * time.Second
	}

	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "eur"
	}
	cfg.Billing.Currency = strings.ToLower(cfg.Billing.Currency)
	if cfg.Billing.MinorUnitMultiplier == 0 {
		cfg.Billing.MinorUnitMultiplier = billing.DefaultMinorUnitMultiplier
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = 30 * 24 * time.Hour
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "paycore.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	switch cfg.Processor.Mode {
	case "stripe":
		if cfg.Processor.APIKey == "" {
			return fmt.Errorf("processor.api_key is required when processor.mode is 'stripe'")
		}
	case "memory":
	default:
		return fmt.Errorf("processor.mode must be 'stripe' or 'memory', got %q", cfg.Processor.Mode)
	}
	if cfg.Processor.MaxNetworkRetries < 0 {
		return fmt.Errorf("processor.max_network_retries must not be negative")
	}
	if cfg.Processor.RateLimit < 0 {
		return fmt.Errorf("processor.rate_limit must not be negative")
	}

	if len(cfg.Billing.Currency) != 3 {
		return fmt.Errorf("billing.currency must be a 3-letter ISO code, got %q", cfg.Billing.Currency)
	}
	if cfg.Billing.MinorUnitMultiplier < 1 {
		return fmt.Errorf("billing.minor_unit_multiplier must be positive")
	}
	if _, err := cfg.Billing.Location(); err != nil {
		return err
	}

	if cfg.Server.AuthSecret != "" && len(cfg.Server.AuthSecret) < 16 {
		return fmt.Errorf("server.auth_secret must be at least 16 characters")
	}

	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "memory" {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	products := make(map[string]bool, len(cfg.Catalog.Products))
	for i, p := range cfg.Catalog.Products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("catalog.products[%d]: id and name are required", i)
		}
		products[p.ID] = true
	}
	for i, p := range cfg.Catalog.Plans {
		if p.ID == "" {
			return fmt.Errorf("catalog.plans[%d].id is required", i)
		}
		if !products[p.ProductID] {
			return fmt.Errorf("catalog.plans[%d]: unknown product %q", i, p.ProductID)
		}
		if _, err := billing.ParseInterval(p.Interval); err != nil {
			return fmt.Errorf("catalog.plans[%d]: %w", i, err)
		}
	}

	return nil
}

// Money returns the configured settlement currency and multiplier.
func (b BillingConfig) Money() billing.Money {
	return billing.NewMoney(b.Currency, b.MinorUnitMultiplier)
}

// Location resolves the ledger timezone. Empty means Local.
func (b BillingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" || strings.EqualFold(b.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("billing.timezone: %w", err)
	}
	return loc, nil
}

// ProductRefs returns the declared catalog products.
func (c CatalogConfig) ProductRefs() []billing.ProductRef {
	out := make([]billing.ProductRef, 0, len(c.Products))
	for _, p := range c.Products {
		out = append(out, billing.ProductRef{ID: p.ID, Name: p.Name})
	}
	return out
}

// PlanSpecs returns the declared catalog plans.
func (c CatalogConfig) PlanSpecs() []billing.PlanSpec {
	out := make([]billing.PlanSpec, 0, len(c.Plans))
	for _, p := range c.Plans {
		out = append(out, billing.PlanSpec{
			ID:        p.ID,
			Name:      p.Name,
			Amount:    p.Amount,
			Interval:  billing.Interval(p.Interval),
			ProductID: p.ProductID,
		})
	}
	return out
}
