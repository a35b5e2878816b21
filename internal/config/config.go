package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrDiscordTokenNotSet    = errors.New("DISCORD_TOKEN is not set")
	ErrDiscordClientIDNotSet = errors.New("DISCORD_CLIENT_ID is not set")
	ErrElevenLabsKeyNotSet   = errors.New("ELEVENLABS_API_KEY is not set")
)

// Config is the bot configuration, read from the environment
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	StatusAddr  string `env:"STATUS_ADDR"`

	Discord    DiscordConfig    `envPrefix:"DISCORD_"`
	ElevenLabs ElevenLabsConfig `envPrefix:"ELEVENLABS_"`
	Voice      VoiceConfig
	Logging    LoggingConfig `envPrefix:"LOG_"`
	Ping       PingConfig    `envPrefix:"PING_"`
	Speak      SpeakConfig   `envPrefix:"SPEAK_"`
}

type DiscordConfig struct {
	Token    string `env:"TOKEN"`
	ClientID string `env:"CLIENT_ID"`
	// GuildID registers commands to a single guild, which applies instantly
	GuildID string `env:"GUILD_ID"`
}

type ElevenLabsConfig struct {
	APIKey       string `env:"API_KEY"`
	BaseURL      string `env:"BASE_URL" envDefault:"https://api.elevenlabs.io"`
	ModelID      string `env:"MODEL_ID" envDefault:"eleven_multilingual_v2"`
	OutputFormat string `env:"OUTPUT_FORMAT" envDefault:"mp3_44100_128"`
}

type VoiceConfig struct {
	ReconnectTimeout time.Duration `env:"VOICE_RECONNECT_TIMEOUT" envDefault:"5s"`
	PlayTimeout      time.Duration `env:"VOICE_PLAY_TIMEOUT" envDefault:"5m"`
	FFmpegPath       string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	OpusBitrate      int           `env:"OPUS_BITRATE" envDefault:"64000"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
}

type PingConfig struct {
	URL      string `env:"URL"`
	Schedule string `env:"SCHEDULE" envDefault:"@every 1m"`
}

// SpeakConfig limits how often one user can make the bot speak
type SpeakConfig struct {
	RatePerMinute float64 `env:"RATE_PER_MINUTE" envDefault:"6"`
	Burst         int     `env:"BURST" envDefault:"3"`
}

// LoadConfig loads .env if present, then parses and validates the environment
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDeployConfig is LoadConfig for tools that only talk to the Discord API
func LoadDeployConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Discord.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	// A missing .env is fine; the environment may be set by the host
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks required credentials and value ranges
func (c *Config) Validate() error {
	var errs []error

	if err := c.Discord.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.ElevenLabs.APIKey) == "" {
		errs = append(errs, ErrElevenLabsKeyNotSet)
	}

	if c.Voice.ReconnectTimeout <= 0 {
		errs = append(errs, errors.New("VOICE_RECONNECT_TIMEOUT must be > 0"))
	}
	if c.Voice.PlayTimeout < 0 {
		errs = append(errs, errors.New("VOICE_PLAY_TIMEOUT must be >= 0"))
	}
	if c.Voice.FFmpegPath == "" {
		errs = append(errs, errors.New("FFMPEG_PATH cannot be empty"))
	}
	if c.Voice.OpusBitrate < 6000 || c.Voice.OpusBitrate > 510000 {
		errs = append(errs, errors.New("OPUS_BITRATE must be between 6000 and 510000"))
	}

	if c.Speak.RatePerMinute < 0 {
		errs = append(errs, errors.New("SPEAK_RATE_PER_MINUTE must be >= 0"))
	}
	if c.Speak.Burst < 1 {
		errs = append(errs, errors.New("SPEAK_BURST must be >= 1"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error"))
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("LOG_FORMAT must be one of: json, text, console"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks the Discord credentials
func (d DiscordConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Token) == "" {
		errs = append(errs, ErrDiscordTokenNotSet)
	}
	if strings.TrimSpace(d.ClientID) == "" {
		errs = append(errs, ErrDiscordClientIDNotSet)
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
