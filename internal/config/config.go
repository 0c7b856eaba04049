package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Signal      SignalConfig      `mapstructure:"signal"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Whisper     WhisperConfig     `mapstructure:"whisper"`
	History     HistoryConfig     `mapstructure:"history"`
	PrivateMode PrivateModeConfig `mapstructure:"privatemode"`
	Log         LogConfig         `mapstructure:"log"`
}

// SignalConfig holds the signal-cli-rest-api configuration
type SignalConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	Number            string        `mapstructure:"number"`
	ReceiveTimeout    int           `mapstructure:"receive_timeout"` // long-poll timeout, seconds
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	IgnoreAttachments bool          `mapstructure:"ignore_attachments"`
	IgnoreStories     bool          `mapstructure:"ignore_stories"`
}

// LLMConfig holds the completion backend configuration. Any
// OpenAI-compatible endpoint works: OpenAI itself, Ollama's /v1
// surface, or the PrivateMode proxy.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// WhisperConfig holds the speech-to-text configuration. An empty URL
// disables transcription entirely.
type WhisperConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// HistoryConfig holds the conversation store configuration
type HistoryConfig struct {
	Path       string `mapstructure:"path"`
	MaxHistory int    `mapstructure:"max_history"` // exchanges kept per user
}

// PrivateModeConfig holds the optional PrivateMode proxy configuration
type PrivateModeConfig struct {
	ProxyURL          string `mapstructure:"proxy_url"`
	VerifyAttestation bool   `mapstructure:"verify_attestation"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from config.yaml (or the file named by
// CONFIG_PATH) with SIGNALLAMA_-prefixed environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("signal.receive_timeout", 10)
	v.SetDefault("signal.poll_interval", time.Second)
	v.SetDefault("signal.ignore_attachments", false)
	v.SetDefault("signal.ignore_stories", true)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.request_timeout", 120*time.Second)
	v.SetDefault("whisper.request_timeout", 60*time.Second)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.max_history", 10)
	v.SetDefault("privatemode.verify_attestation", true)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("SIGNALLAMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces env values for keys viper already
	// knows; binding each key explicitly lets env-only values (api
	// keys and the like) reach Unmarshal without a file entry.
	for _, key := range []string{
		"signal.api_url", "signal.number", "signal.receive_timeout",
		"signal.poll_interval", "signal.ignore_attachments", "signal.ignore_stories",
		"llm.provider", "llm.base_url", "llm.api_key", "llm.model",
		"llm.system_prompt", "llm.request_timeout",
		"whisper.url", "whisper.request_timeout",
		"history.path", "history.max_history",
		"privatemode.proxy_url", "privatemode.verify_attestation",
		"log.level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Signal.APIURL == "" {
		return fmt.Errorf("signal.api_url is required")
	}
	if c.Signal.Number == "" {
		return fmt.Errorf("signal.number is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.History.MaxHistory < 1 {
		return fmt.Errorf("history.max_history must be at least 1, got %d", c.History.MaxHistory)
	}
	return nil
}
