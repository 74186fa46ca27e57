package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.MaxMessageSize != 1<<20 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize != 256 {
		t.Errorf("SendBufferSize = %d", cfg.SendBufferSize)
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("AllowedOrigins empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("WS_SEND_BUFFER", "32")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.SendBufferSize != 32 {
		t.Errorf("SendBufferSize = %d", cfg.SendBufferSize)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestOriginAllowed(t *testing.T) {
	cfg := &Config{AllowedOrigins: []string{"http://localhost:4200"}}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // non-browser clients send no Origin
		{"http://localhost:4200", true},
		{"HTTP://LOCALHOST:4200", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		if got := cfg.OriginAllowed(tt.origin); got != tt.want {
			t.Errorf("OriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	wildcard := &Config{AllowedOrigins: []string{"*"}}
	if !wildcard.OriginAllowed("http://anywhere.example") {
		t.Error("wildcard should allow any origin")
	}
}

func TestProductionRequiresCredentials(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")

	defer func() {
		if recover() == nil {
			t.Error("expected panic without DATABASE_URL in production")
		}
	}()
	Load()
}
