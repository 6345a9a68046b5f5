package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Supported LLM providers
const (
	ProviderAnthropic     = "anthropic"
	ProviderAnthropicHTTP = "anthropic-http"
)

// Supported state backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrMissingConfig is returned by Validate when required values are absent.
var ErrMissingConfig = errors.New("missing required config")

// Config holds all application configuration
type Config struct {
	Version       int                 `toml:"version"`
	Log           LogConfig           `toml:"log"`
	LLM           LLMConfig           `toml:"llm"`
	Agents        []AgentConfig       `toml:"agents"`
	PersonasFile  string              `toml:"personas_file"`
	Image         ImageConfig         `toml:"image"`
	Twitter       TwitterConfig       `toml:"twitter"`
	Telegram      TelegramConfig      `toml:"telegram"`
	Publish       PublishConfig       `toml:"publish"`
	Notifications NotificationsConfig `toml:"notifications"`
	State         StateConfig         `toml:"state"`
	Relay         RelayConfig         `toml:"relay"`
	Status        StatusConfig        `toml:"status"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type LLMConfig struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	CacheExchanges bool    `toml:"cache_exchanges"`
}

// AgentConfig describes one persona.
type AgentConfig struct {
	Name   string `toml:"name" yaml:"name"`
	Prompt string `toml:"prompt" yaml:"prompt"`
}

type ImageConfig struct {
	APIKey     string `toml:"api_key"`
	Prompt     string `toml:"prompt"`
	SubmitURL  string `toml:"submit_url"`
	Model      string `toml:"model"`
	DeadlineS  int    `toml:"deadline_seconds"`
	Priority   int    `toml:"priority"`
	NegPrompt  string `toml:"neg_prompt"`
	Iterations int    `toml:"num_iterations"`
}

type TwitterConfig struct {
	ConsumerKey       string `toml:"consumer_key"`
	ConsumerSecret    string `toml:"consumer_secret"`
	AccessToken       string `toml:"access_token"`
	AccessTokenSecret string `toml:"access_token_secret"`
	APIBaseURL        string `toml:"api_base_url"`
	UploadURL         string `toml:"upload_url"`
}

type TelegramConfig struct {
	Token   string `toml:"token"`
	Enabled bool   `toml:"enabled"`
	// BotName overrides the @handle the relay listens for; defaults to the bot's own username.
	BotName string `toml:"bot_name"`
}

type PublishConfig struct {
	WithImage   bool     `toml:"with_image"`
	MinInterval Duration `toml:"min_interval"`
	MaxInterval Duration `toml:"max_interval"`
}

type NotificationsConfig struct {
	Limit      int      `toml:"limit"`
	MarkPolicy string   `toml:"mark_policy"`
	MinDelay   Duration `toml:"min_delay"`
	MaxDelay   Duration `toml:"max_delay"`
}

type StateConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	FlushPolicy   string `toml:"flush_policy"`
	FlushSchedule string `toml:"flush_schedule"`
	MemoryLimit   int    `toml:"memory_limit"`
}

type RelayConfig struct {
	RestartDelay Duration `toml:"restart_delay"`
	MaxRestarts  int      `toml:"max_restarts"`
}

type StatusConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Duration is a time.Duration that reads and writes as a TOML string ("30m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider:       ProviderAnthropic,
			Model:          "claude-3-haiku-20240307",
			Temperature:    0.5,
			MaxTokens:      4096,
			CacheExchanges: true,
		},
		Agents: []AgentConfig{},
		Image: ImageConfig{
			SubmitURL:  "http://sequencer.heurist.xyz/submit_job",
			Model:      "BluePencilRealistic",
			DeadlineS:  300,
			Priority:   1,
			NegPrompt:  "worst quality, bad quality, umbrella, blurry face, anime, illustration",
			Iterations: 22,
		},
		Twitter: TwitterConfig{
			APIBaseURL: "https://api.twitter.com/2",
			UploadURL:  "https://upload.twitter.com/1.1/media/upload.json",
		},
		Telegram: TelegramConfig{
			Enabled: true,
		},
		Publish: PublishConfig{
			WithImage:   true,
			MinInterval: Duration{30 * time.Minute},
			MaxInterval: Duration{60 * time.Minute},
		},
		Notifications: NotificationsConfig{
			Limit:      5,
			MarkPolicy: "always",
			MinDelay:   Duration{180 * time.Second},
			MaxDelay:   Duration{300 * time.Second},
		},
		State: StateConfig{
			Backend:       BackendJSON,
			FlushPolicy:   "per_write",
			FlushSchedule: "@every 5m",
		},
		Relay: RelayConfig{
			RestartDelay: Duration{30 * time.Second},
		},
		Status: StatusConfig{
			ListenAddr: "127.0.0.1:8089",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "rina"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "rina"), nil
}

// StateDir returns the directory holding persisted bot state.
func (c *Config) StateDir() (string, error) {
	if c.State.Dir != "" {
		return c.State.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// LoadFile reads config from path on top of the defaults, then applies
// environment overrides and the optional personas file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.Getenv)

	if cfg.PersonasFile != "" {
		personas, err := LoadPersonas(resolvePath(path, cfg.PersonasFile))
		if err != nil {
			return nil, err
		}
		cfg.Agents = append(cfg.Agents, personas...)
	}

	return cfg, nil
}

func resolvePath(configPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

// ApplyEnv overrides secrets and a few runtime knobs from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	set(&c.Twitter.ConsumerKey, "TWITTER_CONSUMER_KEY")
	set(&c.Twitter.ConsumerSecret, "TWITTER_CONSUMER_SECRET")
	set(&c.Twitter.AccessToken, "TWITTER_ACCESS_TOKEN")
	set(&c.Twitter.AccessTokenSecret, "TWITTER_ACCESS_TOKEN_SECRET")
	set(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	set(&c.Image.APIKey, "HEURIS_API")
	set(&c.Image.Prompt, "IMAGE_PROMPT")
	set(&c.Log.Level, "RINA_LOG_LEVEL")
	set(&c.State.Dir, "RINA_STATE_DIR")
}

// Validate reports every missing required value in a single error.
func (c *Config) Validate() error {
	var missing []string
	check := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	check(c.LLM.APIKey, "llm.api_key (ANTHROPIC_API_KEY)")
	check(c.Twitter.ConsumerKey, "twitter.consumer_key (TWITTER_CONSUMER_KEY)")
	check(c.Twitter.ConsumerSecret, "twitter.consumer_secret (TWITTER_CONSUMER_SECRET)")
	check(c.Twitter.AccessToken, "twitter.access_token (TWITTER_ACCESS_TOKEN)")
	check(c.Twitter.AccessTokenSecret, "twitter.access_token_secret (TWITTER_ACCESS_TOKEN_SECRET)")
	if c.Telegram.Enabled {
		check(c.Telegram.Token, "telegram.token (TELEGRAM_BOT_TOKEN)")
	}
	if c.Publish.WithImage {
		check(c.Image.APIKey, "image.api_key (HEURIS_API)")
		check(c.Image.Prompt, "image.prompt (IMAGE_PROMPT)")
	}
	if len(c.Agents) == 0 {
		missing = append(missing, "agents (at least one persona)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderAnthropicHTTP:
	default:
		return fmt.Errorf("unknown LLM provider: %s", c.LLM.Provider)
	}
	switch c.State.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown state backend: %s", c.State.Backend)
	}
	if c.Publish.MaxInterval.Duration < c.Publish.MinInterval.Duration {
		return fmt.Errorf("publish.max_interval %s is below min_interval %s",
			c.Publish.MaxInterval, c.Publish.MinInterval)
	}
	if c.Notifications.MaxDelay.Duration < c.Notifications.MinDelay.Duration {
		return fmt.Errorf("notifications.max_delay %s is below min_delay %s",
			c.Notifications.MaxDelay, c.Notifications.MinDelay)
	}

	return nil
}

// SaveFile writes config to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
