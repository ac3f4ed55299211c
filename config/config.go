// Package config loads the runtime configuration for the core from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime configuration for the core.
type Config struct {
	Environment string          `yaml:"environment"`
	Database    DatabaseConfig  `yaml:"database"`
	Fees        FeeConfig       `yaml:"fees"`
	Quota       QuotaConfig     `yaml:"quota"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// FeeConfig controls the handling fee on aggregate claims.
type FeeConfig struct {
	RateBps    int    `yaml:"rate_bps"`
	MinimumFee string `yaml:"minimum_fee"`
}

// QuotaConfig controls the paid campaign slot pricing.
type QuotaConfig struct {
	PaidSlotPrice string `yaml:"paid_slot_price"`
}

// TelemetryConfig controls the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// Load reads configuration from the supplied path, applying defaults and
// validating the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "fundcore.db"
	}
	if cfg.Fees.RateBps == 0 {
		cfg.Fees.RateBps = 100
	}
	if cfg.Fees.MinimumFee == "" {
		cfg.Fees.MinimumFee = "1.00"
	}
	if cfg.Quota.PaidSlotPrice == "" {
		cfg.Quota.PaidSlotPrice = "25.00"
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn must be configured")
	}
	if cfg.Fees.RateBps < 0 || cfg.Fees.RateBps > 10_000 {
		return fmt.Errorf("fee rate_bps %d out of range", cfg.Fees.RateBps)
	}
	if _, err := decimal.NewFromString(cfg.Fees.MinimumFee); err != nil {
		return fmt.Errorf("parse minimum_fee %q: %w", cfg.Fees.MinimumFee, err)
	}
	if _, err := decimal.NewFromString(cfg.Quota.PaidSlotPrice); err != nil {
		return fmt.Errorf("parse paid_slot_price %q: %w", cfg.Quota.PaidSlotPrice, err)
	}
	return nil
}

// FeeRate returns the claim fee rate as a decimal fraction.
func (c FeeConfig) FeeRate() decimal.Decimal {
	return decimal.New(int64(c.RateBps), -4)
}

// Minimum returns the minimum claim fee.
func (c FeeConfig) Minimum() decimal.Decimal {
	minimum, err := decimal.NewFromString(c.MinimumFee)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return minimum
}

// SlotPrice returns the price charged per purchasable campaign slot.
func (c QuotaConfig) SlotPrice() decimal.Decimal {
	price, err := decimal.NewFromString(c.PaidSlotPrice)
	if err != nil {
		return decimal.NewFromInt(25)
	}
	return price
}
