package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"orderbook_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists small user preferences. Book history is never stored.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, &domain.ConfigError{Field: "storage.path", Err: errors.New("empty path")}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// SaveInstrument remembers the tracked instrument across restarts.
func (s *Storage) SaveInstrument(inst domain.Instrument) error {
	if !inst.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, inst)
	}
	return s.SaveConfig(domain.ConfigKeyInstrument, inst.String())
}

// LastInstrument returns the saved instrument, or false if none (or an unknown one) is stored.
func (s *Storage) LastInstrument() (domain.Instrument, bool, error) {
	var config domain.AppConfig
	err := s.db.Where(&domain.AppConfig{Key: domain.ConfigKeyInstrument}).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil // Not found is not an error
	}
	if err != nil {
		return "", false, err
	}
	inst, err := domain.ParseInstrument(config.Value)
	if err != nil {
		return "", false, nil
	}
	return inst, true, nil
}

var _ domain.PreferenceStore = (*Storage)(nil)
