package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration. Defaults are overridden first by
// an optional YAML file and then by environment variables.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Matching MatchingConfig `yaml:"matching"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig holds datastore parameters.
type StorageConfig struct {
	// Path is the location of the single datastore file.
	Path string `yaml:"path"`
	// AutoBackup snapshots the datastore file before schema migrations.
	AutoBackup bool `yaml:"auto_backup"`
	// BusyTimeout bounds how long a statement waits on a locked file.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MatchingConfig holds the fuzzy-match thresholds.
type MatchingConfig struct {
	// VenueThreshold is the minimum similarity for an incoming venue name
	// to merge into an existing venue row.
	VenueThreshold float64 `yaml:"venue_threshold"`
	// TitleThreshold is the minimum title similarity for the cross-source
	// event pass.
	TitleThreshold float64 `yaml:"title_threshold"`
	// CrossSource enables fuzzy title matching across sources.
	CrossSource bool `yaml:"cross_source"`
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level `yaml:"-"`
	Format string     `yaml:"format"`

	// LevelName is the textual form used in YAML files.
	LevelName string `yaml:"level"`
}

const (
	defaultDatastorePath  = "data/events.db"
	defaultBusyTimeout    = 5 * time.Second
	defaultVenueThreshold = 0.85
	defaultTitleThreshold = 0.75
	defaultLogFormat      = "json"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path:        defaultDatastorePath,
			AutoBackup:  true,
			BusyTimeout: defaultBusyTimeout,
		},
		Matching: MatchingConfig{
			VenueThreshold: defaultVenueThreshold,
			TitleThreshold: defaultTitleThreshold,
			CrossSource:    true,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
	}
}

// Load reads configuration from environment variables over the defaults.
func Load() (Config, error) {
	return loadEnv(Default())
}

// LoadFile reads a YAML configuration file over the defaults, then applies
// environment variable overrides on top.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if cfg.Logging.LevelName != "" {
		level, err := parseLogLevel(cfg.Logging.LevelName)
		if err != nil {
			return Config{}, fmt.Errorf("invalid logging.level: %w", err)
		}
		cfg.Logging.Level = level
	}

	return loadEnv(cfg)
}

func loadEnv(cfg Config) (Config, error) {
	if v := os.Getenv("DATASTORE_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	if v := os.Getenv("AUTO_BACKUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_BACKUP: %w", err)
		}
		cfg.Storage.AutoBackup = b
	}

	if v := os.Getenv("DATASTORE_BUSY_TIMEOUT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			return Config{}, fmt.Errorf("invalid DATASTORE_BUSY_TIMEOUT_SECONDS: must be a non-negative integer")
		}
		cfg.Storage.BusyTimeout = time.Duration(seconds) * time.Second
	}

	if v := os.Getenv("VENUE_MATCH_THRESHOLD"); v != "" {
		f, err := parseThreshold(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid VENUE_MATCH_THRESHOLD: %w", err)
		}
		cfg.Matching.VenueThreshold = f
	}

	if v := os.Getenv("TITLE_MATCH_THRESHOLD"); v != "" {
		f, err := parseThreshold(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TITLE_MATCH_THRESHOLD: %w", err)
		}
		cfg.Matching.TitleThreshold = f
	}

	if v := os.Getenv("CROSS_SOURCE_MATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CROSS_SOURCE_MATCH: %w", err)
		}
		cfg.Matching.CrossSource = b
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

func parseThreshold(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("must be a number within [0,1]")
	}
	return f, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO":
		return slog.LevelInfo, nil
	case "warn", "WARN":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", raw)
	}
}
