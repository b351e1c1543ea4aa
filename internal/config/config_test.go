package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Path != "data/events.db" {
		t.Fatalf("unexpected default path: %q", cfg.Storage.Path)
	}
	if !cfg.Storage.AutoBackup {
		t.Fatal("auto backup should default on")
	}
	if cfg.Matching.VenueThreshold != 0.85 || cfg.Matching.TitleThreshold != 0.75 {
		t.Fatalf("unexpected default thresholds: %+v", cfg.Matching)
	}
	if !cfg.Matching.CrossSource {
		t.Fatal("cross-source matching should default on")
	}
	if cfg.Logging.Level != slog.LevelInfo || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected default logging: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATASTORE_PATH", "/tmp/other.db")
	t.Setenv("AUTO_BACKUP", "false")
	t.Setenv("DATASTORE_BUSY_TIMEOUT_SECONDS", "30")
	t.Setenv("VENUE_MATCH_THRESHOLD", "0.9")
	t.Setenv("TITLE_MATCH_THRESHOLD", "0.8")
	t.Setenv("CROSS_SOURCE_MATCH", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Path != "/tmp/other.db" || cfg.Storage.AutoBackup {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Storage.BusyTimeout != 30*time.Second {
		t.Fatalf("busy timeout: %v", cfg.Storage.BusyTimeout)
	}
	if cfg.Matching.VenueThreshold != 0.9 || cfg.Matching.TitleThreshold != 0.8 || cfg.Matching.CrossSource {
		t.Fatalf("matching overrides not applied: %+v", cfg.Matching)
	}
	if cfg.Logging.Level != slog.LevelDebug || cfg.Logging.Format != "text" {
		t.Fatalf("logging overrides not applied: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"VENUE_MATCH_THRESHOLD", "1.5"},
		{"TITLE_MATCH_THRESHOLD", "not-a-number"},
		{"AUTO_BACKUP", "maybe"},
		{"DATASTORE_BUSY_TIMEOUT_SECONDS", "-1"},
		{"LOG_LEVEL", "verbose"},
		{"LOG_FORMAT", "xml"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
storage:
  path: /var/lib/localevents/events.db
  auto_backup: false
matching:
  venue_threshold: 0.92
  cross_source: false
logging:
  level: warn
  format: text
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}

	if cfg.Storage.Path != "/var/lib/localevents/events.db" || cfg.Storage.AutoBackup {
		t.Fatalf("storage not read from file: %+v", cfg.Storage)
	}
	if cfg.Matching.VenueThreshold != 0.92 || cfg.Matching.CrossSource {
		t.Fatalf("matching not read from file: %+v", cfg.Matching)
	}
	// Unset keys keep their defaults.
	if cfg.Matching.TitleThreshold != 0.75 {
		t.Fatalf("unset key lost default: %v", cfg.Matching.TitleThreshold)
	}
	if cfg.Logging.Level != slog.LevelWarn || cfg.Logging.Format != "text" {
		t.Fatalf("logging not read from file: %+v", cfg.Logging)
	}
}

func TestLoadFileEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  path: /from/file.db\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DATASTORE_PATH", "/from/env.db")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if cfg.Storage.Path != "/from/env.db" {
		t.Fatalf("environment should override the file, got %q", cfg.Storage.Path)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
