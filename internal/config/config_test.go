package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validConfig = `
[server]
port = 9090
host = "127.0.0.1"
cors_allowed_origins = ["http://localhost:5173"]

[logging]
level = "debug"
format = "json"

[upstream]
api_key = "sk-test"
model = "gpt-4o-mini-transcribe"
language = "en"
silence_duration_ms = 700

[audio]
sample_rate_hz = 24000

[observability]
ring_size = 100
`

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Upstream.Model != "gpt-4o-mini-transcribe" || cfg.Upstream.Language != "en" {
		t.Errorf("upstream config = %+v", cfg.Upstream)
	}
	if cfg.Upstream.SilenceDurationMs != 700 {
		t.Errorf("silence_duration_ms = %d", cfg.Upstream.SilenceDurationMs)
	}
	if cfg.Audio.SampleRateHz != 24000 {
		t.Errorf("sample_rate_hz = %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Observability.RingSize != 100 {
		t.Errorf("ring_size = %d", cfg.Observability.RingSize)
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 8080

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Upstream.BaseURL != "https://api.openai.com" {
		t.Errorf("base_url default = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.SilenceDurationMs != 550 {
		t.Errorf("silence_duration_ms default = %d", cfg.Upstream.SilenceDurationMs)
	}
	if cfg.Upstream.MaxMessageBytes != 16*1024*1024 {
		t.Errorf("max_message_bytes default = %d", cfg.Upstream.MaxMessageBytes)
	}
	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("sample_rate_hz default = %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Observability.RingSize != 200 {
		t.Errorf("ring_size default = %d", cfg.Observability.RingSize)
	}
}

func TestValidateStripsTrailingSlash(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Upstream.BaseURL = "https://proxy.example/"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://proxy.example" {
		t.Errorf("base_url = %q", cfg.Upstream.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"negative sample rate", func(c *Config) { c.Audio.SampleRateHz = -1 }},
		{"negative ring size", func(c *Config) { c.Observability.RingSize = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Server.Port = 8080
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Upstream.APIKey = "sk-from-file"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want env override", cfg.Upstream.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}
