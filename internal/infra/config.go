package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"orderbook_go/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL       = "wss://www.cryptofacilities.com/ws/v1"
	DefaultAckTimeoutMS  = 5000
	DefaultMaxAckRetries = 5
	DefaultInboxSize     = 1024
	DefaultDepth         = 50
	DefaultPrecision     = 2
	DefaultListen        = ":8080"
	DefaultStoragePath   = "data/orderbook.db"
	DefaultLogDir        = "logs"
)

// Config holds every application setting.
// After LoadConfig reads the file, environment variables override deployment values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		WSURL             string `yaml:"ws_url"`
		DefaultInstrument string `yaml:"default_instrument"`
		AckTimeoutMS      int    `yaml:"ack_timeout_ms"`
		MaxAckRetries     int    `yaml:"max_ack_retries"`
		InboxSize         int    `yaml:"inbox_size"`
	} `yaml:"feed"`

	Book struct {
		Depth          int   `yaml:"depth"`
		PricePrecision int32 `yaml:"price_precision"`
	} `yaml:"book"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"api"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration that works without a file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.API.Enabled = true
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "orderbook"
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultFeedURL
	}
	if c.Feed.DefaultInstrument == "" {
		c.Feed.DefaultInstrument = domain.InstrumentBTC.String()
	}
	if c.Feed.AckTimeoutMS == 0 {
		c.Feed.AckTimeoutMS = DefaultAckTimeoutMS
	}
	if c.Feed.MaxAckRetries == 0 {
		c.Feed.MaxAckRetries = DefaultMaxAckRetries
	}
	if c.Feed.InboxSize == 0 {
		c.Feed.InboxSize = DefaultInboxSize
	}
	if c.Book.Depth == 0 {
		c.Book.Depth = DefaultDepth
	}
	if c.Book.PricePrecision == 0 {
		c.Book.PricePrecision = DefaultPrecision
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://") {
		return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("not a websocket URL: %q", c.Feed.WSURL)}
	}
	if _, err := domain.ParseInstrument(c.Feed.DefaultInstrument); err != nil {
		return &domain.ConfigError{Field: "feed.default_instrument", Err: err}
	}
	if c.Feed.AckTimeoutMS < 0 {
		return &domain.ConfigError{Field: "feed.ack_timeout_ms", Err: errors.New("must be positive")}
	}
	if c.Feed.MaxAckRetries < 0 {
		return &domain.ConfigError{Field: "feed.max_ack_retries", Err: errors.New("must be positive")}
	}
	if c.Feed.InboxSize < 0 {
		return &domain.ConfigError{Field: "feed.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Book.Depth < 0 {
		return &domain.ConfigError{Field: "book.depth", Err: errors.New("must be positive")}
	}
	if c.Book.PricePrecision < 0 || c.Book.PricePrecision > 8 {
		return &domain.ConfigError{Field: "book.price_precision", Err: fmt.Errorf("out of range: %d", c.Book.PricePrecision)}
	}
	// Every tick must survive rounding or the grid walk rejects all deltas.
	for _, inst := range domain.Instruments() {
		tick := inst.TickIncrement()
		if !tick.Round(c.Book.PricePrecision).Equal(tick) {
			return &domain.ConfigError{
				Field: "book.price_precision",
				Err:   fmt.Errorf("%w: %s tick %s at precision %d", domain.ErrInvalidTick, inst, tick, c.Book.PricePrecision),
			}
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// AckTimeout returns the acknowledgement timeout as a duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Feed.AckTimeoutMS) * time.Millisecond
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// ApplyEnv applies environment overrides to a config built without LoadConfig.
func (c *Config) ApplyEnv() {
	overrideWithEnv(c)
}

// overrideWithEnv overwrites deployment values from the environment when set.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("ORDERBOOK_FEED_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if inst := os.Getenv("ORDERBOOK_INSTRUMENT"); inst != "" {
		cfg.Feed.DefaultInstrument = inst
	}
	if level := os.Getenv("ORDERBOOK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if listen := os.Getenv("ORDERBOOK_LISTEN"); listen != "" {
		cfg.API.Listen = listen
	}
	if path := os.Getenv("ORDERBOOK_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
}
