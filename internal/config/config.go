package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the system-wide settings coordinator. Clean separation between
// configuration management and engine logic.
type Config struct {
	API       *APIConfig       `json:"api"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Reconnect *ReconnectConfig `json:"reconnect"`
	Journal   *JournalConfig   `json:"journal"`
	Room      *RoomConfig      `json:"room"`
	Auth      *AuthConfig      `json:"auth"`
}

// APIConfig configures the collaborator REST client.
type APIConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// WebSocketConfig configures the live session channel.
type WebSocketConfig struct {
	URL          string        `json:"url"`
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// ReconnectConfig bounds the exponential backoff schedule used after a
// transport drop.
type ReconnectConfig struct {
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	MaxRetries      uint64        `json:"max_retries"`
}

// JournalConfig configures the local SQLite outbox.
type JournalConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// RoomConfig holds room controller behavior knobs. RedirectDelay is how
// long a terminal join error stays on screen before navigation fires.
type RoomConfig struct {
	RedirectDelay time.Duration `json:"redirect_delay"`
}

// AuthConfig carries the already-issued access token attached to every
// REST call and the WebSocket handshake. The engine never mints tokens.
type AuthConfig struct {
	AccessToken string `json:"access_token"`
}

// DefaultConfig returns production-ready defaults: local backend, 30s
// heartbeat, 3s error-redirect delay per the room UX contract.
func DefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			URL:          "ws://localhost:8080/ws",
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Reconnect: &ReconnectConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxRetries:      10,
		},
		Journal: &JournalConfig{
			Path:    "./roomsync.db",
			Timeout: 30 * time.Second,
		},
		Room: &RoomConfig{
			RedirectDelay: 3 * time.Second,
		},
		Auth: &AuthConfig{},
	}
}

// Validate prevents invalid configurations from reaching the components.
func (c *Config) Validate() error {
	if c.API == nil {
		return fmt.Errorf("API configuration is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.URL == "" {
		return fmt.Errorf("WebSocket URL cannot be empty")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Reconnect == nil {
		return fmt.Errorf("reconnect configuration is required")
	}
	if c.Reconnect.InitialInterval <= 0 {
		return fmt.Errorf("reconnect initial interval must be positive")
	}
	if c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		return fmt.Errorf("reconnect max interval must be >= initial interval")
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal path cannot be empty")
	}
	if c.Journal.Timeout <= 0 {
		return fmt.Errorf("journal timeout must be positive")
	}

	if c.Room == nil {
		return fmt.Errorf("room configuration is required")
	}
	if c.Room.RedirectDelay <= 0 {
		return fmt.Errorf("room redirect delay must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	return nil
}

// LoadFromEnv loads configuration from the environment with defaults as
// fallback. A .env file in the working directory is merged first; its
// absence is not an error.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	config := DefaultConfig()

	if base := os.Getenv("ROOMSYNC_API_BASE_URL"); base != "" {
		config.API.BaseURL = base
	}
	if timeout := os.Getenv("ROOMSYNC_API_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.API.Timeout = d
		}
	}

	if url := os.Getenv("ROOMSYNC_WS_URL"); url != "" {
		config.WebSocket.URL = url
	}
	if pingInterval := os.Getenv("ROOMSYNC_WS_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if readTimeout := os.Getenv("ROOMSYNC_WS_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if writeTimeout := os.Getenv("ROOMSYNC_WS_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if bufferSize := os.Getenv("ROOMSYNC_WS_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if initial := os.Getenv("ROOMSYNC_RECONNECT_INITIAL_INTERVAL"); initial != "" {
		if d, err := time.ParseDuration(initial); err == nil {
			config.Reconnect.InitialInterval = d
		}
	}
	if max := os.Getenv("ROOMSYNC_RECONNECT_MAX_INTERVAL"); max != "" {
		if d, err := time.ParseDuration(max); err == nil {
			config.Reconnect.MaxInterval = d
		}
	}
	if retries := os.Getenv("ROOMSYNC_RECONNECT_MAX_RETRIES"); retries != "" {
		if n, err := strconv.ParseUint(retries, 10, 64); err == nil {
			config.Reconnect.MaxRetries = n
		}
	}

	if path := os.Getenv("ROOMSYNC_JOURNAL_PATH"); path != "" {
		config.Journal.Path = path
	}
	if timeout := os.Getenv("ROOMSYNC_JOURNAL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Journal.Timeout = d
		}
	}

	if delay := os.Getenv("ROOMSYNC_ROOM_REDIRECT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Room.RedirectDelay = d
		}
	}

	if token := os.Getenv("ROOMSYNC_ACCESS_TOKEN"); token != "" {
		config.Auth.AccessToken = token
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration. Durations
// are strings so files stay human-editable.
type ConfigFile struct {
	API       *APIConfigFile       `json:"api"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Reconnect *ReconnectConfigFile `json:"reconnect"`
	Journal   *JournalConfigFile   `json:"journal"`
	Room      *RoomConfigFile      `json:"room"`
	Auth      *AuthConfig          `json:"auth"`
}

type APIConfigFile struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

type WebSocketConfigFile struct {
	URL          string `json:"url"`
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type ReconnectConfigFile struct {
	InitialInterval string `json:"initial_interval"`
	MaxInterval     string `json:"max_interval"`
	MaxRetries      uint64 `json:"max_retries"`
}

type JournalConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type RoomConfigFile struct {
	RedirectDelay string `json:"redirect_delay"`
}

// LoadFromFile reads a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.API != nil {
		if configFile.API.BaseURL != "" {
			config.API.BaseURL = configFile.API.BaseURL
		}
		if configFile.API.Timeout != "" {
			if d, err := time.ParseDuration(configFile.API.Timeout); err == nil {
				config.API.Timeout = d
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.URL != "" {
			config.WebSocket.URL = configFile.WebSocket.URL
		}
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = d
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = d
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = d
			}
		}
	}

	if configFile.Reconnect != nil {
		if configFile.Reconnect.MaxRetries > 0 {
			config.Reconnect.MaxRetries = configFile.Reconnect.MaxRetries
		}
		if configFile.Reconnect.InitialInterval != "" {
			if d, err := time.ParseDuration(configFile.Reconnect.InitialInterval); err == nil {
				config.Reconnect.InitialInterval = d
			}
		}
		if configFile.Reconnect.MaxInterval != "" {
			if d, err := time.ParseDuration(configFile.Reconnect.MaxInterval); err == nil {
				config.Reconnect.MaxInterval = d
			}
		}
	}

	if configFile.Journal != nil {
		if configFile.Journal.Path != "" {
			config.Journal.Path = configFile.Journal.Path
		}
		if configFile.Journal.Timeout != "" {
			if d, err := time.ParseDuration(configFile.Journal.Timeout); err == nil {
				config.Journal.Timeout = d
			}
		}
	}

	if configFile.Room != nil {
		if configFile.Room.RedirectDelay != "" {
			if d, err := time.ParseDuration(configFile.Room.RedirectDelay); err == nil {
				config.Room.RedirectDelay = d
			}
		}
	}

	if configFile.Auth != nil && configFile.Auth.AccessToken != "" {
		config.Auth.AccessToken = configFile.Auth.AccessToken
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are silently ignored so environment/defaults keep
// the client usable.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
