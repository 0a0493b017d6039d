// Package config loads readaloud settings from viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backend and extractor names.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config contains every setting that is not UI-only.
type Config struct {
	Debug bool

	// Playback
	Backend string
	Speed   float64
	Volume  float64
	Voice   string

	// Extractor selects local or server-side PDF extraction.
	Extractor   string
	MaxFileSize int64 // bytes

	Server  ServerConfig
	Piper   PiperConfig
	Cache   CacheConfig
	Sentry  SentryConfig
	Metrics MetricsConfig
}

// ServerConfig is the reader service connection.
type ServerConfig struct {
	URL      string
	APIKey   string
	Timeout  time.Duration
	Provider string  // elevenlabs or gtts
	Rate     float64 // TTS requests per second
}

// PiperConfig locates the local engine.
type PiperConfig struct {
	Binary     string
	Model      string
	ConfigPath string
	Speaker    string
	Timeout    time.Duration
}

// CacheConfig sizes the clip cache and the document store.
type CacheConfig struct {
	Enabled   bool
	Dir       string // empty means the user cache dir
	SizeMB    int
	TTL       time.Duration
	Freshness time.Duration
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string
	Environment string
}

// MetricsConfig serves prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:     BackendRemote,
		Speed:       1.0,
		Volume:      1.0,
		Voice:       "Rachel",
		Extractor:   BackendLocal,
		MaxFileSize: 10 * 1024 * 1024,
		Server: ServerConfig{
			URL:      "http://localhost:8000",
			Timeout:  30 * time.Second,
			Provider: "elevenlabs",
			Rate:     2,
		},
		Piper: PiperConfig{
			Binary:  "piper",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   true,
			SizeMB:    100,
			TTL:       7 * 24 * time.Hour,
			Freshness: 24 * time.Hour,
		},
		Sentry: SentryConfig{Environment: "production"},
	}
}

// SetDefaults registers the defaults with v so `readaloud config` and env
// lookups see every key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("speed", d.Speed)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("extractor", d.Extractor)
	v.SetDefault("max_file_size_mb", d.MaxFileSize/(1024*1024))
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.timeout", d.Server.Timeout.String())
	v.SetDefault("server.provider", d.Server.Provider)
	v.SetDefault("server.rate", d.Server.Rate)
	v.SetDefault("piper.binary", d.Piper.Binary)
	v.SetDefault("piper.timeout", d.Piper.Timeout.String())
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.size_mb", d.Cache.SizeMB)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.freshness", d.Cache.Freshness.String())
	v.SetDefault("sentry.environment", d.Sentry.Environment)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
	if v.IsSet("backend") {
		cfg.Backend = v.GetString("backend")
	}
	if v.IsSet("speed") {
		cfg.Speed = v.GetFloat64("speed")
	}
	if v.IsSet("volume") {
		cfg.Volume = v.GetFloat64("volume")
	}
	if v.IsSet("voice") {
		cfg.Voice = v.GetString("voice")
	}
	if v.IsSet("extractor") {
		cfg.Extractor = v.GetString("extractor")
	}
	if v.IsSet("max_file_size_mb") {
		cfg.MaxFileSize = v.GetInt64("max_file_size_mb") * 1024 * 1024
	}

	var errs []error
	duration := func(key string, dst *time.Duration) {
		if !v.IsSet(key) {
			return
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	path := func(key string, dst *string) {
		if !v.IsSet(key) {
			return
		}
		p, err := homedir.Expand(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = p
	}

	if v.IsSet("server.url") {
		cfg.Server.URL = v.GetString("server.url")
	}
	if v.IsSet("server.api_key") {
		cfg.Server.APIKey = v.GetString("server.api_key")
	}
	duration("server.timeout", &cfg.Server.Timeout)
	if v.IsSet("server.provider") {
		cfg.Server.Provider = v.GetString("server.provider")
	}
	if v.IsSet("server.rate") {
		cfg.Server.Rate = v.GetFloat64("server.rate")
	}

	path("piper.binary", &cfg.Piper.Binary)
	path("piper.model", &cfg.Piper.Model)
	path("piper.config", &cfg.Piper.ConfigPath)
	if v.IsSet("piper.speaker") {
		cfg.Piper.Speaker = v.GetString("piper.speaker")
	}
	duration("piper.timeout", &cfg.Piper.Timeout)

	if v.IsSet("cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("cache.enabled")
	}
	path("cache.dir", &cfg.Cache.Dir)
	if v.IsSet("cache.size_mb") {
		cfg.Cache.SizeMB = v.GetInt("cache.size_mb")
	}
	duration("cache.ttl", &cfg.Cache.TTL)
	duration("cache.freshness", &cfg.Cache.Freshness)

	if v.IsSet("sentry.dsn") {
		cfg.Sentry.DSN = v.GetString("sentry.dsn")
	}
	if v.IsSet("sentry.environment") {
		cfg.Sentry.Environment = v.GetString("sentry.environment")
	}
	if v.IsSet("metrics.addr") {
		cfg.Metrics.Addr = v.GetString("metrics.addr")
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if c.Backend != BackendLocal && c.Backend != BackendRemote {
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendLocal, BackendRemote, c.Backend))
	}
	if c.Extractor != BackendLocal && c.Extractor != BackendRemote {
		errs = append(errs, fmt.Errorf("extractor must be %q or %q, got %q", BackendLocal, BackendRemote, c.Extractor))
	}
	if c.Speed < 0.5 || c.Speed > 2.0 {
		errs = append(errs, fmt.Errorf("speed must be between 0.5 and 2.0, got %v", c.Speed))
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %v", c.Volume))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max_file_size_mb must be positive"))
	}
	if c.Server.Timeout <= 0 || c.Piper.Timeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Server.Provider != "elevenlabs" && c.Server.Provider != "gtts" {
		errs = append(errs, fmt.Errorf("server.provider must be elevenlabs or gtts, got %q", c.Server.Provider))
	}
	if c.Server.Rate <= 0 {
		errs = append(errs, errors.New("server.rate must be positive"))
	}
	if c.Cache.SizeMB < 1 || c.Cache.SizeMB > 10000 {
		errs = append(errs, fmt.Errorf("cache.size_mb must be between 1 and 10000, got %d", c.Cache.SizeMB))
	}
	if c.Backend == BackendLocal && c.Piper.Model == "" {
		errs = append(errs, errors.New("piper.model is required for the local backend"))
	}
	if (c.Backend == BackendRemote || c.Extractor == BackendRemote) && c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required for remote playback or extraction"))
	}
	return errors.Join(errs...)
}
