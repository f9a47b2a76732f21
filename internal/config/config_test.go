package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CAROLINA_API_TOKENS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 0 {
		t.Errorf("Expected idle session cleanup off by default, got %v", cfg.SessionTTL)
	}
	if len(cfg.APITokens) != 0 {
		t.Errorf("Expected no tokens, got %v", cfg.APITokens)
	}
}

func TestLoadTokens(t *testing.T) {
	t.Setenv("CAROLINA_API_TOKENS", "abc=alice, def ,ghi=bob")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := map[string]string{"abc": "alice", "def": "local", "ghi": "bob"}
	if len(cfg.APITokens) != len(want) {
		t.Fatalf("Expected %d tokens, got %v", len(want), cfg.APITokens)
	}
	for token, principal := range want {
		if cfg.APITokens[token] != principal {
			t.Errorf("Expected %s -> %s, got %s", token, principal, cfg.APITokens[token])
		}
	}
}

func TestLoadRejectsMalformedTokens(t *testing.T) {
	t.Setenv("CAROLINA_API_TOKENS", "=alice")
	if _, err := Load(); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestLoadDurationFallback(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("CLEANUP_INTERVAL", "90s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionTTL != 0 {
		t.Errorf("Expected fallback TTL, got %v", cfg.SessionTTL)
	}
	if cfg.CleanupInterval != 90*time.Second {
		t.Errorf("Expected 90s cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:            "8080",
			DBPath:          "x.db",
			SessionTTL:      time.Hour,
			CleanupInterval: time.Minute,
			RateLimit:       RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
			MaxRequestBody:  1024,
			ConversationLog: ConversationLogConfig{QueueSize: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"cleanup disabled", func(c *Config) {
			c.SessionTTL = 0
			c.CleanupInterval = 0
		}, false},
		{"negative ttl", func(c *Config) { c.SessionTTL = -time.Second }, true},
		{"ttl without interval", func(c *Config) { c.CleanupInterval = 0 }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }, true},
		{"log enabled without dir", func(c *Config) { c.ConversationLog.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("Expected wildcard, got %v", got)
	}
	cfg.FrontendURL = "https://carolina.example"
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://carolina.example" {
		t.Errorf("Expected single origin, got %v", got)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CAROLINA_DATA_DIR", t.TempDir())
	t.Setenv("CAROLINA_CORE_BACKEND", "sqlite")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.CoreBackend != "sqlite" {
		t.Errorf("Expected sqlite backend, got %s", cfg.CoreBackend)
	}
	if cfg.HistoryLimit != 500 {
		t.Errorf("Expected history limit 500, got %d", cfg.HistoryLimit)
	}

	t.Setenv("CAROLINA_CORE_BACKEND", "redis")
	if _, err := LoadClient(); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
