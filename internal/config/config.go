package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Upstream      UpstreamConfig      `toml:"upstream"`      // Realtime transcription provider settings
	Audio         AudioConfig         `toml:"audio"`         // Client audio stream settings
	Observability ObservabilityConfig `toml:"observability"` // Debug ring log settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, required for WebSocket streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// UpstreamConfig contains settings for the realtime transcription provider
type UpstreamConfig struct {
	APIKey  string `toml:"api_key"`  // API key for the transcription service (OPENAI_API_KEY env overrides)
	BaseURL string `toml:"base_url"` // Optional base URL override (e.g., for proxies). Defaults to https://api.openai.com
	Model   string `toml:"model"`    // Realtime transcription model (e.g., "gpt-4o-mini-transcribe")

	Language          string `toml:"language"`            // Primary language for transcription (e.g., "sv")
	SilenceDurationMs int    `toml:"silence_duration_ms"` // Milliseconds of silence the server VAD treats as end of speech

	HandshakeTimeoutSecs int `toml:"handshake_timeout_seconds"` // WebSocket dial handshake timeout in seconds
	MaxMessageBytes      int `toml:"max_message_bytes"`         // Read limit for upstream frames in bytes
}

// AudioConfig contains client audio stream settings. Input is raw PCM16
// mono at a fixed sample rate; no transcoding is performed.
type AudioConfig struct {
	SampleRateHz int `toml:"sample_rate_hz"` // Sample rate of inbound PCM16 audio in Hz
}

// ObservabilityConfig contains debug ring log settings
type ObservabilityConfig struct {
	RingSize int `toml:"ring_size"` // Capacity of each of the four debug ring logs
}

// Load loads the configuration from the given TOML file
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback attempts to load configuration from multiple standard locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	// Validate upstream config. The API key can be supplied via the
	// environment instead of the config file.
	if env := os.Getenv("OPENAI_API_KEY"); env != "" {
		c.Upstream.APIKey = env
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.openai.com"
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if c.Upstream.Model == "" {
		c.Upstream.Model = "gpt-4o-mini-transcribe"
	}
	if c.Upstream.Language == "" {
		c.Upstream.Language = "sv"
	}
	if c.Upstream.SilenceDurationMs <= 0 {
		c.Upstream.SilenceDurationMs = 550
	}
	if c.Upstream.HandshakeTimeoutSecs <= 0 {
		c.Upstream.HandshakeTimeoutSecs = 45
	}
	if c.Upstream.MaxMessageBytes <= 0 {
		c.Upstream.MaxMessageBytes = 16 * 1024 * 1024
	}

	// Validate audio config
	if c.Audio.SampleRateHz == 0 {
		c.Audio.SampleRateHz = 16000
	}
	if c.Audio.SampleRateHz < 0 {
		return fmt.Errorf("invalid sample rate: %d", c.Audio.SampleRateHz)
	}

	// Validate observability config
	if c.Observability.RingSize == 0 {
		c.Observability.RingSize = 200
	}
	if c.Observability.RingSize < 0 {
		return fmt.Errorf("invalid ring size: %d", c.Observability.RingSize)
	}

	return nil
}
