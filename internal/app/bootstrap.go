package app

import (
	"errors"
	"io/fs"
	"log/slog"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"
	"orderbook_go/internal/infra/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config   *infra.Config
	Storage  *storage.Storage
	Metrics  *infra.Metrics
	Registry *prometheus.Registry
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (env, config, logger, DB, metrics)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping order book service...")

	// 1. Load .env (optional)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", slog.Any("error", err))
	}

	// 2. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	switch {
	case errors.Is(err, domain.ErrConfigNotFound):
		slog.Warn("Config file not found, using defaults", slog.String("path", b.ConfigPath))
		cfg = infra.DefaultConfig()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}
	case err != nil:
		return err // Let main handle the error
	}
	b.Config = cfg

	// 3. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 4. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 5. Metrics
	b.Metrics = infra.GlobalMetrics
	b.Registry = infra.NewMetricsRegistry(b.Metrics)

	return nil
}

// InitialInstrument is the last persisted instrument, falling back to the configured default.
func (b *Bootstrap) InitialInstrument() domain.Instrument {
	if b.Storage != nil {
		inst, ok, err := b.Storage.LastInstrument()
		if err != nil {
			slog.Warn("Failed to read saved instrument", slog.Any("error", err))
		}
		if ok {
			return inst
		}
	}
	inst, err := domain.ParseInstrument(b.Config.Feed.DefaultInstrument)
	if err != nil {
		return domain.InstrumentBTC
	}
	return inst
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
