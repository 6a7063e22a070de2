package badgerengine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

var ErrPathRequired = errors.New("path is required for a persistent database")

// Config holds the settings for a badger-backed engine.
type Config struct {
	// Path is the directory for the database files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps all data in memory, losing it on Close.
	InMemory bool

	// SyncWrites makes every commit hit disk before returning.
	SyncWrites bool

	// GCInterval is how often the value log garbage collector runs.
	// Zero disables the collector. Ignored for in-memory databases.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum share of discardable data in the value
	// log before the collector rewrites it.
	GCDiscardRatio float64

	// BadgerLogger receives badger's internal log lines.
	// When nil, badger's internal logging is disabled.
	BadgerLogger *slog.Logger
}

// DefaultConfig returns the settings for a persistent database:
// synchronous writes and a five-minute garbage collection interval.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns the settings for tests: no disk, no collector.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Validate reports whether the configuration can open a database.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return ErrPathRequired
	}

	return nil
}

// fileConfig is the yaml shape of Config; durations are given as strings
// parseable by time.ParseDuration.
type fileConfig struct {
	Path           string   `yaml:"path"`
	InMemory       bool     `yaml:"in_memory"`
	SyncWrites     *bool    `yaml:"sync_writes"`
	GCInterval     string   `yaml:"gc_interval"`
	GCDiscardRatio *float64 `yaml:"gc_discard_ratio"`
}

// LoadConfig reads a yaml configuration file on top of DefaultConfig.
// Absent fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Path = file.Path
	cfg.InMemory = file.InMemory
	if file.SyncWrites != nil {
		cfg.SyncWrites = *file.SyncWrites
	}
	if file.GCInterval != "" {
		interval, err := time.ParseDuration(file.GCInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse gc_interval: %w", err)
		}
		cfg.GCInterval = interval
	}
	if file.GCDiscardRatio != nil {
		cfg.GCDiscardRatio = *file.GCDiscardRatio
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func openDB(cfg Config) (*badger.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.BadgerLogger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.BadgerLogger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return db, nil
}
