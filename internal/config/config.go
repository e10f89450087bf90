package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type MarketConfig struct {
	ID          string   `yaml:"id"`
	TicketSizes []string `yaml:"ticket_sizes"`
}

type Config struct {
	Port              int            `yaml:"port"`
	FeedURL           string         `yaml:"feed_url"`
	FeedName          string         `yaml:"feed_name"`
	DefaultMarket     string         `yaml:"default_market"`
	Markets           []MarketConfig `yaml:"markets"`
	RefreshIntervalMs int            `yaml:"refresh_interval_ms"`
	LogLevel          string         `yaml:"log_level"`
	MetricsEnabled    bool           `yaml:"metrics_enabled"`
}

func defaults() Config {
	return Config{
		Port:          8086,
		FeedURL:       "wss://www.cryptofacilities.com/ws/v1",
		FeedName:      "book_ui_1",
		DefaultMarket: "PI_XBTUSD",
		Markets: []MarketConfig{
			{ID: "PI_XBTUSD", TicketSizes: []string{"0.5", "1", "2.5"}},
			{ID: "PI_ETHUSD", TicketSizes: []string{"0.05", "0.1", "0.25"}},
		},
		RefreshIntervalMs: 300,
		LogLevel:          "info",
		MetricsEnabled:    true,
	}
}

// Default returns the built-in configuration, for runs without config.yaml.
func Default() Config { return defaults() }

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if v := os.Getenv("ORDERBOOK_FEED_URL"); v != "" {
		cfg.FeedURL = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks and normalizes the configuration in place.
func (cfg *Config) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("invalid port")
	}
	if cfg.FeedURL == "" {
		return errors.New("feed_url required")
	}
	if cfg.FeedName == "" {
		return errors.New("feed_name required")
	}
	if cfg.RefreshIntervalMs < 1 {
		return errors.New("refresh_interval_ms must be >=1")
	}
	if len(cfg.Markets) == 0 {
		return errors.New("at least one market required")
	}
	seen := map[string]bool{}
	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		m.ID = strings.ToUpper(strings.TrimSpace(m.ID))
		if m.ID == "" {
			return fmt.Errorf("markets[%d]: id required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("markets[%d]: duplicate id %s", i, m.ID)
		}
		seen[m.ID] = true
		if len(m.TicketSizes) == 0 {
			return fmt.Errorf("market %s: ticket_sizes required", m.ID)
		}
		for _, s := range m.TicketSizes {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("market %s: ticket size %q: %w", m.ID, s, err)
			}
			if !d.IsPositive() {
				return fmt.Errorf("market %s: ticket size %s must be > 0", m.ID, s)
			}
		}
	}
	cfg.DefaultMarket = strings.ToUpper(strings.TrimSpace(cfg.DefaultMarket))
	if cfg.DefaultMarket != "" && !seen[cfg.DefaultMarket] {
		return fmt.Errorf("default_market %s not in markets", cfg.DefaultMarket)
	}
	return nil
}

// Sizes returns the parsed ticket sizes. Call after Validate.
func (m MarketConfig) Sizes() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(m.TicketSizes))
	for _, s := range m.TicketSizes {
		out = append(out, decimal.RequireFromString(s))
	}
	return out
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
