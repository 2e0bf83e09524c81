package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"logLevel"`
	DatabaseURL      string `yaml:"databaseURL"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	BuyerJWTSecret   string `yaml:"buyerJWTSecret"`
	BuyerJWTIssuer   string `yaml:"buyerJWTIssuer"`
	BuyerJWTAudience string `yaml:"buyerJWTAudience"`
	InternalToken    string `yaml:"internalToken"`
	MinIncrement     string `yaml:"minIncrement"`
	MinAuctionWindow string `yaml:"minAuctionWindow"`
	BidRateLimit     int    `yaml:"bidRateLimit"`
	BidRateWindow    string `yaml:"bidRateWindow"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("PUBLISHELF_BUYER_JWT_SECRET"); v != "" {
		cfg.BuyerJWTSecret = v
	}
	if v := os.Getenv("PUBLISHELF_INTERNAL_TOKEN"); v != "" {
		cfg.InternalToken = v
	}
	if v := os.Getenv("AUCTION_MIN_INCREMENT"); v != "" {
		cfg.MinIncrement = v
	}
	if v := os.Getenv("AUCTION_MIN_WINDOW"); v != "" {
		cfg.MinAuctionWindow = v
	}
	if v := os.Getenv("AUCTION_BID_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BidRateLimit = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.BuyerJWTSecret == "" {
		return errors.New("config: buyerJWTSecret is required (set in config.yaml or PUBLISHELF_BUYER_JWT_SECRET)")
	}
	if cfg.InternalToken == "" {
		return errors.New("config: internalToken is required (set in config.yaml or PUBLISHELF_INTERNAL_TOKEN)")
	}
	return nil
}

// ParseMinIncrement parses the configured increment, defaulting to zero
// (which the app maps to its built-in default).
func ParseMinIncrement(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	inc, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid minIncrement %q: %w", raw, err)
	}
	if !inc.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: minIncrement must be positive, got %q", raw)
	}
	return inc, nil
}

// ParseMinAuctionWindow parses the configured window, defaulting to zero
// (which the app maps to its built-in default).
func ParseMinAuctionWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid minAuctionWindow %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: minAuctionWindow must be positive, got %q", raw)
	}
	return d, nil
}

// ParseBidRateWindow parses the rate-limit window, defaulting to one minute.
func ParseBidRateWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid bidRateWindow %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: bidRateWindow must be positive, got %q", raw)
	}
	return d, nil
}
