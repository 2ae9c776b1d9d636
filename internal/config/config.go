// Package config handles loading and validating the deskhand configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the deskhand daemon.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Backend   string          `mapstructure:"backend"` // "openai" or "local"
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Local     LocalConfig     `mapstructure:"local"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportConfig holds the configuration for the inbound transport layer.
type TransportConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// OpenAIConfig holds OpenAI API settings for the cloud backend.
type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	CompletionModel    string `mapstructure:"completion_model"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	Language           string `mapstructure:"language"` // ISO-639-1 hint for transcription
}

// LocalConfig holds self-hosted backend settings.
type LocalConfig struct {
	LLMEndpoint     string `mapstructure:"llm_endpoint"`     // Ollama-compatible /api/chat
	LLMModel        string `mapstructure:"llm_model"`        // e.g. "llama3"
	WhisperEndpoint string `mapstructure:"whisper_endpoint"` // OpenAI-compatible transcription endpoint
}

// AssistantConfig shapes the conversation behavior.
type AssistantConfig struct {
	SystemPrompt   string        `mapstructure:"system_prompt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AudioConfig configures the transcoding pipeline.
type AudioConfig struct {
	FFmpegPath string        `mapstructure:"ffmpeg_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CaptureConfig bounds the screen capture resolution.
type CaptureConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// A .env file in the working directory, when present, is loaded first so that
// "${OPENAI_API_KEY}"-style references resolve from it. If configFile is
// non-empty it is used directly; otherwise the standard search order applies:
// ./deskhand.yaml, ./configs/deskhand.yaml, /etc/deskhand/deskhand.yaml.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transport.http.enabled", true)
	v.SetDefault("transport.http.port", 8080)
	v.SetDefault("backend", "openai")
	v.SetDefault("openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.completion_model", "gpt-4o-mini")
	v.SetDefault("openai.transcription_model", "gpt-4o-transcribe")
	v.SetDefault("openai.language", "en")
	v.SetDefault("local.llm_endpoint", "http://localhost:11434/api/chat")
	v.SetDefault("local.llm_model", "llama3")
	v.SetDefault("local.whisper_endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("assistant.system_prompt",
		"You are my personal desktop AI assistant. Be concise, practical, and helpful.")
	v.SetDefault("assistant.request_timeout", 60*time.Second)
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.timeout", 30*time.Second)
	v.SetDefault("capture.max_width", 2560)
	v.SetDefault("capture.max_height", 1440)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("deskhand")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/deskhand")
	}

	// Environment variables: DESKHAND_BACKEND, DESKHAND_OPENAI_API_KEY, etc.
	v.SetEnvPrefix("DESKHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional; env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in the credential field (e.g., "${OPENAI_API_KEY}").
	// An unresolved reference collapses to empty: a missing credential is a
	// per-request condition, never a startup abort.
	cfg.OpenAI.APIKey = resolveEnvRef(cfg.OpenAI.APIKey)

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
