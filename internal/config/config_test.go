package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
	if cfg.Room.RedirectDelay != 3*time.Second {
		t.Errorf("Expected 3s redirect delay, got %v", cfg.Room.RedirectDelay)
	}
	if cfg.Reconnect.InitialInterval != 500*time.Millisecond {
		t.Errorf("Expected 500ms initial reconnect interval, got %v", cfg.Reconnect.InitialInterval)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty API base URL", func(c *Config) { c.API.BaseURL = "" }},
		{"zero API timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"empty WebSocket URL", func(c *Config) { c.WebSocket.URL = "" }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"max interval below initial", func(c *Config) {
			c.Reconnect.InitialInterval = time.Minute
			c.Reconnect.MaxInterval = time.Second
		}},
		{"empty journal path", func(c *Config) { c.Journal.Path = "" }},
		{"zero redirect delay", func(c *Config) { c.Room.RedirectDelay = 0 }},
		{"missing auth section", func(c *Config) { c.Auth = nil }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("ROOMSYNC_API_BASE_URL", "https://api.example.com/api")
	t.Setenv("ROOMSYNC_WS_URL", "wss://api.example.com/ws")
	t.Setenv("ROOMSYNC_RECONNECT_MAX_RETRIES", "3")
	t.Setenv("ROOMSYNC_ROOM_REDIRECT_DELAY", "5s")
	t.Setenv("ROOMSYNC_ACCESS_TOKEN", "env-token")

	cfg := LoadFromEnv()
	if cfg.API.BaseURL != "https://api.example.com/api" {
		t.Errorf("Expected env base URL, got %s", cfg.API.BaseURL)
	}
	if cfg.WebSocket.URL != "wss://api.example.com/ws" {
		t.Errorf("Expected env WS URL, got %s", cfg.WebSocket.URL)
	}
	if cfg.Reconnect.MaxRetries != 3 {
		t.Errorf("Expected 3 max retries, got %d", cfg.Reconnect.MaxRetries)
	}
	if cfg.Room.RedirectDelay != 5*time.Second {
		t.Errorf("Expected 5s redirect delay, got %v", cfg.Room.RedirectDelay)
	}
	if cfg.Auth.AccessToken != "env-token" {
		t.Errorf("Expected env token, got %s", cfg.Auth.AccessToken)
	}
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("ROOMSYNC_API_TIMEOUT", "not-a-duration")
	t.Setenv("ROOMSYNC_WS_BUFFER_SIZE", "lots")

	cfg := LoadFromEnv()
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Expected the default timeout to survive, got %v", cfg.API.Timeout)
	}
	if cfg.WebSocket.BufferSize != 100 {
		t.Errorf("Expected the default buffer size to survive, got %d", cfg.WebSocket.BufferSize)
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"api": {"base_url": "https://file.example.com/api", "timeout": "10s"},
		"websocket": {"url": "wss://file.example.com/ws", "buffer_size": 50},
		"reconnect": {"initial_interval": "250ms", "max_interval": "10s", "max_retries": 5},
		"room": {"redirect_delay": "1s"},
		"auth": {"access_token": "file-token"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.API.BaseURL != "https://file.example.com/api" {
		t.Errorf("Expected file base URL, got %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", cfg.API.Timeout)
	}
	if cfg.WebSocket.BufferSize != 50 {
		t.Errorf("Expected buffer size 50, got %d", cfg.WebSocket.BufferSize)
	}
	if cfg.Reconnect.MaxRetries != 5 {
		t.Errorf("Expected 5 max retries, got %d", cfg.Reconnect.MaxRetries)
	}
	if cfg.Room.RedirectDelay != time.Second {
		t.Errorf("Expected 1s redirect delay, got %v", cfg.Room.RedirectDelay)
	}
	if cfg.Auth.AccessToken != "file-token" {
		t.Errorf("Expected file token, got %s", cfg.Auth.AccessToken)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Journal.Path != "./roomsync.db" {
		t.Errorf("Expected default journal path, got %s", cfg.Journal.Path)
	}
}

func TestLoadFromFile_RejectsMissingOrBadFiles(t *testing.T) {
	if _, err := LoadFromFile("/does/not/exist.json"); err == nil {
		t.Error("Expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
}

func TestLoadConfigWithPrecedence_FileWins(t *testing.T) {
	t.Setenv("ROOMSYNC_API_BASE_URL", "https://env.example.com/api")

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"api": {"base_url": "https://file.example.com/api"}}`), 0o644)

	cfg := LoadConfigWithPrecedence(path)
	if cfg.API.BaseURL != "https://file.example.com/api" {
		t.Errorf("Expected the file to win, got %s", cfg.API.BaseURL)
	}

	// A broken file path falls back to the environment.
	cfg = LoadConfigWithPrecedence("/does/not/exist.json")
	if cfg.API.BaseURL != "https://env.example.com/api" {
		t.Errorf("Expected the environment fallback, got %s", cfg.API.BaseURL)
	}
}
