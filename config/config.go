package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	AI        AIConfig        `yaml:"ai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Retry     RetryConfig     `yaml:"retry"`
	Storage   StorageConfig   `yaml:"storage"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	// TrustProxy keys rate limiting on X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

// AudioConfig selects the capture device and the optional inbox directory.
// Source is "microphone" or "none".
type AudioConfig struct {
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sample_rate"`
	Bitrate    int    `yaml:"bitrate"`
	InboxDir   string `yaml:"inbox_dir"`
}

// AIConfig picks a backend per stage: "gemini", "openai" (speech only)
// or "anthropic" (summary only).
type AIConfig struct {
	Speech  string `yaml:"speech"`
	Summary string `yaml:"summary"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	ImageModel string `yaml:"image_model"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type RetryConfig struct {
	Retries      int    `yaml:"retries"`
	InitialDelay string `yaml:"initial_delay"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references before decoding.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default is the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Bitrate == 0 {
		c.Audio.Bitrate = 48000
	}
	if c.AI.Speech == "" {
		c.AI.Speech = "gemini"
	}
	if c.AI.Summary == "" {
		c.AI.Summary = "gemini"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "pt"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Retry.Retries == 0 {
		c.Retry.Retries = 3
	}
	if c.Retry.InitialDelay == "" {
		c.Retry.InitialDelay = "2s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./voznote.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.AI.Speech {
	case "gemini", "openai":
	default:
		return fmt.Errorf("ai.speech: unknown backend %q", c.AI.Speech)
	}
	switch c.AI.Summary {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("ai.summary: unknown backend %q", c.AI.Summary)
	}
	if _, err := c.Retry.Delay(); err != nil {
		return err
	}
	return nil
}

// Delay parses InitialDelay.
func (r RetryConfig) Delay() (time.Duration, error) {
	d, err := time.ParseDuration(r.InitialDelay)
	if err != nil {
		return 0, fmt.Errorf("retry.initial_delay: %w", err)
	}
	return d, nil
}
