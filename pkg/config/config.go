// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine providers
const (
	ProviderGemini    = "gemini"
	ProviderWebSocket = "websocket"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Summary SummaryConfig `yaml:"summary"`
	Audio   AudioConfig   `yaml:"audio"`
	WebRTC  WebRTCConfig  `yaml:"webrtc"`
	Prompts PromptsConfig `yaml:"prompts"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	MaxSessions     int           `yaml:"max_sessions"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig selects and configures the realtime engine
type EngineConfig struct {
	Provider         string        `yaml:"provider"` // gemini or websocket
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"api_key"`
	URL              string        `yaml:"url"` // websocket provider only
	Voice            string        `yaml:"voice"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// SummaryConfig configures periodic note-taking
type SummaryConfig struct {
	Provider string        `yaml:"provider"` // gemini, openai or none
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Interval time.Duration `yaml:"interval"`
	MinChars int           `yaml:"min_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AudioConfig contains audio buffering parameters
type AudioConfig struct {
	SendQueue      int           `yaml:"send_queue"`     // outbound frames
	CaptureBuffer  int           `yaml:"capture_buffer"` // capture blocks
	PlaybackBuffer time.Duration `yaml:"playback_buffer"`
}

// WebRTCConfig configures browser microphones
type WebRTCConfig struct {
	ICEServers []string `yaml:"ice_servers"`
}

// PromptsConfig holds the system instructions of each session mode
type PromptsConfig struct {
	Tutor     string `yaml:"tutor"`
	NoteTaker string `yaml:"note_taker"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			MaxSessions:     100,
			ShutdownTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			Provider:         ProviderGemini,
			HandshakeTimeout: 10 * time.Second,
		},
		Summary: SummaryConfig{
			Provider: ProviderGemini,
			Interval: 15 * time.Second,
			MinChars: 100,
			Timeout:  60 * time.Second,
		},
		Audio: AudioConfig{
			SendQueue:      64,
			CaptureBuffer:  32,
			PlaybackBuffer: 100 * time.Millisecond,
		},
		WebRTC: WebRTCConfig{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Prompts: PromptsConfig{
			Tutor: "You are a friendly, patient tutor. Listen to the student's question, " +
				"explain concepts step by step and check their understanding.",
			NoteTaker: "You are listening to a lecture. Transcribe faithfully and answer " +
				"briefly only when directly asked.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads an optional .env file and YAML file over the defaults, applies
// environment overrides and validates the result. Empty paths are skipped.
func Load(path, envFile string) (*Config, error) {
	if err := LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// LoadDotEnv loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Server.Port, "APP_PORT", "PORT")
	str(&c.Engine.Provider, "ENGINE_PROVIDER")
	str(&c.Engine.Model, "ENGINE_MODEL")
	str(&c.Engine.URL, "ENGINE_URL")
	str(&c.Engine.Voice, "ENGINE_VOICE")
	str(&c.Summary.Provider, "SUMMARY_PROVIDER")
	str(&c.Summary.Model, "SUMMARY_MODEL")
	str(&c.Summary.BaseURL, "OPENAI_BASE_URL")
	str(&c.Logging.Level, "LOG_LEVEL")

	if c.Engine.APIKey == "" {
		str(&c.Engine.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	if c.Summary.APIKey == "" {
		switch c.Summary.Provider {
		case ProviderOpenAI:
			str(&c.Summary.APIKey, "OPENAI_API_KEY")
		case ProviderGemini:
			str(&c.Summary.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	}

	if v, ok := lookup("MAX_SESSIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.MaxSessions = n
		}
	}
	if v, ok := lookup("SUMMARY_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Summary.Interval = d
		}
	}
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", s.Port)
	}
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", s.ShutdownTimeout)
	}
	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	switch e.Provider {
	case ProviderGemini:
		if e.APIKey == "" {
			return fmt.Errorf("api_key is required for the gemini provider (or set GEMINI_API_KEY)")
		}
	case ProviderWebSocket:
		if !strings.HasPrefix(e.URL, "ws://") && !strings.HasPrefix(e.URL, "wss://") {
			return fmt.Errorf("url must be a ws:// or wss:// URL, got %q", e.URL)
		}
	default:
		return fmt.Errorf("unknown provider %q", e.Provider)
	}
	if e.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %v", e.HandshakeTimeout)
	}
	return nil
}

// Validate validates summary configuration
func (s *SummaryConfig) Validate() error {
	switch s.Provider {
	case ProviderNone:
		return nil
	case ProviderGemini, ProviderOpenAI:
		if s.APIKey == "" {
			return fmt.Errorf("api_key is required for the %s provider", s.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %v", s.Interval)
	}
	if s.MinChars < 1 {
		return fmt.Errorf("min_chars must be at least 1, got %d", s.MinChars)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", s.Timeout)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SendQueue < 1 {
		return fmt.Errorf("send_queue must be at least 1, got %d", a.SendQueue)
	}
	if a.CaptureBuffer < 1 {
		return fmt.Errorf("capture_buffer must be at least 1, got %d", a.CaptureBuffer)
	}
	if a.PlaybackBuffer <= 0 {
		return fmt.Errorf("playback_buffer must be positive, got %v", a.PlaybackBuffer)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text, got %q", l.Format)
	}
	return nil
}
