package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"orderbook_go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: test\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.WSURL != DefaultFeedURL {
		t.Errorf("Expected default feed URL, got %s", cfg.Feed.WSURL)
	}
	if cfg.Book.Depth != 50 {
		t.Errorf("Expected depth 50, got %d", cfg.Book.Depth)
	}
	if cfg.Book.PricePrecision != 2 {
		t.Errorf("Expected precision 2, got %d", cfg.Book.PricePrecision)
	}
	if cfg.AckTimeout() != 5*time.Second {
		t.Errorf("Expected 5s ack timeout, got %s", cfg.AckTimeout())
	}
	if cfg.Feed.DefaultInstrument != "BTC" {
		t.Errorf("Expected BTC default, got %s", cfg.Feed.DefaultInstrument)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
feed:
  ws_url: "ws://localhost:9000/ws"
  default_instrument: eth
  ack_timeout_ms: 250
book:
  depth: 25
logging:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.WSURL != "ws://localhost:9000/ws" {
		t.Errorf("Expected file URL, got %s", cfg.Feed.WSURL)
	}
	if cfg.Book.Depth != 25 {
		t.Errorf("Expected depth 25, got %d", cfg.Book.Depth)
	}
	if cfg.AckTimeout() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.AckTimeout())
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "feed:\n  ws_url: wss://example.com/ws\n")
	t.Setenv("ORDERBOOK_FEED_URL", "ws://127.0.0.1:1/ws")
	t.Setenv("ORDERBOOK_LOG_LEVEL", "WARN")
	t.Setenv("ORDERBOOK_LISTEN", ":9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.WSURL != "ws://127.0.0.1:1/ws" {
		t.Errorf("Expected env URL, got %s", cfg.Feed.WSURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected warn, got %s", cfg.Logging.Level)
	}
	if cfg.API.Listen != ":9999" {
		t.Errorf("Expected :9999, got %s", cfg.API.Listen)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Feed.WSURL = "http://x" }, "feed.ws_url"},
		{"bad instrument", func(c *Config) { c.Feed.DefaultInstrument = "DOGE" }, "feed.default_instrument"},
		{"negative depth", func(c *Config) { c.Book.Depth = -1 }, "book.depth"},
		{"precision", func(c *Config) { c.Book.PricePrecision = 12 }, "book.price_precision"},
		{"precision below eth tick", func(c *Config) { c.Book.PricePrecision = 1 }, "book.price_precision"},
		{"precision below btc tick", func(c *Config) { c.Book.PricePrecision = 0 }, "book.price_precision"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cfgErr.Field)
			}
			if domain.IsRetriable(err) {
				t.Error("Config errors must not be retriable")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}

	wide := DefaultConfig()
	wide.Book.PricePrecision = 4
	if err := wide.Validate(); err != nil {
		t.Errorf("Expected precision 4 to hold every tick, got %v", err)
	}
}

func TestConfig_ValidatePrecisionWrapsInvalidTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Book.PricePrecision = 1

	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidTick) {
		t.Errorf("Expected ErrInvalidTick, got %v", err)
	}
}
