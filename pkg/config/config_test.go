package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":8787" {
		t.Errorf("ListenAddr = %q, want :8787", cfg.ListenAddr)
	}
	if cfg.OriginURL != "http://localhost:3000" {
		t.Errorf("OriginURL = %q", cfg.OriginURL)
	}
	if cfg.Version != "v1" {
		t.Errorf("Version = %q, want v1", cfg.Version)
	}
	if cfg.APIPrefix != "/api/" {
		t.Errorf("APIPrefix = %q, want /api/", cfg.APIPrefix)
	}
	if cfg.OfflinePage != "/offline" {
		t.Errorf("OfflinePage = %q, want /offline", cfg.OfflinePage)
	}
	if cfg.NetworkTimeout != 5*time.Second {
		t.Errorf("NetworkTimeout = %v, want 5s", cfg.NetworkTimeout)
	}
	if cfg.RetryCeiling != 3 {
		t.Errorf("RetryCeiling = %d, want 3", cfg.RetryCeiling)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v, want 30s", cfg.ProbeInterval)
	}
	if cfg.PublicHost != "" {
		t.Errorf("PublicHost = %q, want empty (accept any host)", cfg.PublicHost)
	}
	if len(cfg.PrecacheRoutes) == 0 {
		t.Error("PrecacheRoutes is empty")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNCPROXY_VERSION", "v42")
	t.Setenv("SYNCPROXY_ORIGIN_URL", "http://planner.internal:4000")
	t.Setenv("SYNCPROXY_RETRY_CEILING", "5")
	t.Setenv("SYNCPROXY_NETWORK_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != "v42" {
		t.Errorf("Version = %q, want v42", cfg.Version)
	}
	if cfg.OriginURL != "http://planner.internal:4000" {
		t.Errorf("OriginURL = %q", cfg.OriginURL)
	}
	if cfg.RetryCeiling != 5 {
		t.Errorf("RetryCeiling = %d, want 5", cfg.RetryCeiling)
	}
	if cfg.NetworkTimeout != 2*time.Second {
		t.Errorf("NetworkTimeout = %v, want 2s", cfg.NetworkTimeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	content := `
listen_addr: ":9999"
version: "v7"
origin_url: "http://origin:3000"
precache_routes:
  - "/"
  - "/offline"
`
	path := filepath.Join(t.TempDir(), "syncproxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.Version != "v7" {
		t.Errorf("Version = %q, want v7", cfg.Version)
	}
	if len(cfg.PrecacheRoutes) != 2 {
		t.Errorf("PrecacheRoutes = %v", cfg.PrecacheRoutes)
	}
	// Unset keys keep their defaults.
	if cfg.RetryCeiling != 3 {
		t.Errorf("RetryCeiling = %d, want default 3", cfg.RetryCeiling)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/syncproxy.yaml"); err == nil {
		t.Error("Load succeeded with a missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			OriginURL:      "http://localhost:3000",
			Version:        "v1",
			APIPrefix:      "/api/",
			RetryCeiling:   3,
			NetworkTimeout: 5 * time.Second,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty version", func(c *Config) { c.Version = "" }},
		{"version with colon", func(c *Config) { c.Version = "v1:beta" }},
		{"relative origin url", func(c *Config) { c.OriginURL = "localhost:3000" }},
		{"empty origin url", func(c *Config) { c.OriginURL = "" }},
		{"api prefix without slash", func(c *Config) { c.APIPrefix = "api/" }},
		{"zero retry ceiling", func(c *Config) { c.RetryCeiling = 0 }},
		{"zero network timeout", func(c *Config) { c.NetworkTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}
