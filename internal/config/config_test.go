package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != ModeMonitor {
		t.Errorf("Mode = %v, want %v", cfg.Mode, ModeMonitor)
	}
	if cfg.ListenAddr != ":5001" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.BackendURL != "http://127.0.0.1:5000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.SubmitPolicy != PolicyLatest {
		t.Errorf("SubmitPolicy = %q", cfg.SubmitPolicy)
	}
	if cfg.SubmitTimeout != 0 {
		t.Errorf("SubmitTimeout = %v, want no timeout", cfg.SubmitTimeout)
	}
	if cfg.DateLookbackDays != 7 {
		t.Errorf("DateLookbackDays = %d", cfg.DateLookbackDays)
	}
	if cfg.Storage != StorageSQLite {
		t.Errorf("Storage = %q", cfg.Storage)
	}

	f := cfg.Features()
	if !f.API || !f.Events || !f.Metrics || !f.Storage || !f.HealthCheck {
		t.Errorf("Features = %+v, want all enabled", f)
	}
}

func TestModeOff(t *testing.T) {
	t.Setenv("MODE", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage != StorageOff {
		t.Errorf("Storage = %q, want off for MODE=off", cfg.Storage)
	}
	if f := cfg.Features(); f != (Features{}) {
		t.Errorf("Features = %+v, want none", f)
	}
}

func TestFeatureSwitches(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("EVENTS_ENABLED", "0")
	t.Setenv("STORAGE", "memory")
	t.Setenv("HEALTH_CHECK_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	f := cfg.Features()
	if f.Metrics || f.Events || f.HealthCheck {
		t.Errorf("Features = %+v", f)
	}
	if !f.Storage || !f.API {
		t.Errorf("memory storage should stay enabled: %+v", f)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://poller.internal:8443/")
	t.Setenv("SUBMIT_POLICY", "reject")
	t.Setenv("SUBMIT_TIMEOUT", "2m")
	t.Setenv("DATE_LOOKBACK_DAYS", "30")
	t.Setenv("STORAGE_MAX_ROWS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "https://poller.internal:8443" {
		t.Errorf("BackendURL = %q, trailing slash should be trimmed", cfg.BackendURL)
	}
	if cfg.SubmitPolicy != PolicyReject || cfg.SubmitTimeout != 2*time.Minute || cfg.DateLookbackDays != 30 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StorageMaxRows != 3000 {
		t.Errorf("unparseable STORAGE_MAX_ROWS should fall back to default, got %d", cfg.StorageMaxRows)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Mode = "protect" }, "MODE"},
		{"relative backend", func(c *Config) { c.BackendURL = "/api" }, "BACKEND_URL"},
		{"ftp backend", func(c *Config) { c.BackendURL = "ftp://x" }, "scheme"},
		{"bad policy", func(c *Config) { c.SubmitPolicy = "queue" }, "SUBMIT_POLICY"},
		{"negative timeout", func(c *Config) { c.SubmitTimeout = -time.Second }, "SUBMIT_TIMEOUT"},
		{"zero lookback", func(c *Config) { c.DateLookbackDays = 0 }, "DATE_LOOKBACK_DAYS"},
		{"bad storage", func(c *Config) { c.Storage = "postgres" }, "STORAGE"},
		{"sqlite without path", func(c *Config) { c.StoragePath = " " }, "STORAGE_PATH"},
		{"few rows", func(c *Config) { c.StorageMaxRows = 10 }, "STORAGE_MAX_ROWS"},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }, "EVENT_BUFFER"},
		{"health path", func(c *Config) { c.HealthCheckPath = "health" }, "HEALTH_CHECK_PATH"},
		{"health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, "HEALTH_CHECK_TIMEOUT"},
		{"small response cap", func(c *Config) { c.ResponseMaxBytes = 10 }, "RESPONSE_MAX_BYTES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("SUBMIT_POLICY", "whatever")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for an invalid SUBMIT_POLICY")
	}
}
