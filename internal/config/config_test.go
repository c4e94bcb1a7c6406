package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	t.Setenv("CALBOT_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"assistant":{"api_key":"sk-test","model":"gpt-4.1"},"run":{"poll_interval_ms":250}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.Model != "gpt-4.1" {
		t.Fatalf("model = %q", cfg.Assistant.Model)
	}
	if cfg.Run.PollIntervalMS != 250 {
		t.Fatalf("poll interval = %d", cfg.Run.PollIntervalMS)
	}
	// untouched fields keep their defaults
	if cfg.Run.InitialTimeoutMS != 30000 {
		t.Fatalf("initial timeout = %d", cfg.Run.InitialTimeoutMS)
	}
	if cfg.Calendar.CalendarID != "primary" {
		t.Fatalf("calendar id = %q", cfg.Calendar.CalendarID)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"assistant":{"api_key":"sk-file","model":"gpt-4o-mini"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CALBOT_API_KEY", "sk-env")
	t.Setenv("CALBOT_MODEL", "gpt-4.1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.APIKey != "sk-env" || cfg.Assistant.Model != "gpt-4.1" {
		t.Fatalf("env overrides not applied: %+v", cfg.Assistant)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("CALBOT_API_KEY", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing api key should fail")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config should fail")
	}
}
