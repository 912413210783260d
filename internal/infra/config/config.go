// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Log      LogConfig               `yaml:"log"`
	Admin    AdminConfig             `yaml:"admin"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Worker   WorkerConfig            `yaml:"worker"`
	Requests RequestsConfig          `yaml:"requests"`
	List     ListConfig              `yaml:"list"`
	Fallback FallbackConfig          `yaml:"fallback"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr      string      `yaml:"addr" default:":8081"`
	StaticDir string      `yaml:"static_dir"`
	Hooks     HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logging configuration. Command-line flags win.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file"`
}

// AdminConfig represents admin-related configuration.
// An empty token leaves transport controls open.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RedirectURL  string `yaml:"redirect_url" default:"http://127.0.0.1:8081/auth/callback" validate:"url"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// WorkerConfig represents the worker loop timing.
type WorkerConfig struct {
	StatusIntervalMs        int `yaml:"status_interval_ms" default:"1000" validate:"gte=100"`
	TokenRefreshIntervalSec int `yaml:"token_refresh_interval_sec" default:"300" validate:"gte=10"`
	IdleIntervalMs          int `yaml:"idle_interval_ms" default:"50" validate:"gte=1,lte=1000"`
	ResponseTTLSec          int `yaml:"response_ttl_sec" default:"60" validate:"gte=1"`
	EnqueueGraceMs          int `yaml:"enqueue_grace_ms" default:"3000" validate:"gte=0,lte=30000"`
	FallbackBackoffSec      int `yaml:"fallback_backoff_sec" default:"30" validate:"gte=1"`
}

// RequestsConfig represents producer-side request handling.
type RequestsConfig struct {
	WaitTimeoutSec   int     `yaml:"wait_timeout_sec" default:"15" validate:"gte=1,lte=120"`
	SearchLimit      int     `yaml:"search_limit" default:"40" validate:"gte=1,lte=50"`
	SearchRatePerSec float64 `yaml:"search_rate_per_sec" default:"5" validate:"gt=0"`
	SearchBurst      int     `yaml:"search_burst" default:"3" validate:"gte=1"`
}

// ListConfig represents the song list configuration.
type ListConfig struct {
	EvictThreshold *int `yaml:"evict_threshold" default:"-1" validate:"required,lte=0"`
}

// FallbackConfig represents fallback track provision.
type FallbackConfig struct {
	CandidateCount int                      `yaml:"candidate_count" default:"5" validate:"gte=1,lte=50"`
	Providers      []FallbackProviderConfig `yaml:"providers" validate:"dive"`
}

// FallbackProviderConfig represents a single fallback provider configuration.
type FallbackProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=playlist search similar"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings" validate:"required"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EvictThreshold returns the configured eviction threshold.
func (c *Config) EvictThreshold() int {
	if c.List.EvictThreshold == nil {
		return -1
	}
	return *c.List.EvictThreshold
}

// StatusInterval returns the status poll interval.
func (w WorkerConfig) StatusInterval() time.Duration {
	return time.Duration(w.StatusIntervalMs) * time.Millisecond
}

// TokenRefreshInterval returns the token refresh interval.
func (w WorkerConfig) TokenRefreshInterval() time.Duration {
	return time.Duration(w.TokenRefreshIntervalSec) * time.Second
}

// IdleInterval returns how long the worker sleeps when there is nothing to do.
func (w WorkerConfig) IdleInterval() time.Duration {
	return time.Duration(w.IdleIntervalMs) * time.Millisecond
}

// ResponseTTL returns how long unclaimed responses are kept.
func (w WorkerConfig) ResponseTTL() time.Duration {
	return time.Duration(w.ResponseTTLSec) * time.Second
}

// EnqueueGrace returns how long NeedsSong polls are ignored after an auto-play.
func (w WorkerConfig) EnqueueGrace() time.Duration {
	return time.Duration(w.EnqueueGraceMs) * time.Millisecond
}

// FallbackBackoff returns the pause after a fallback attempt found nothing.
func (w WorkerConfig) FallbackBackoff() time.Duration {
	return time.Duration(w.FallbackBackoffSec) * time.Second
}

// WaitTimeout returns how long producers wait for a response.
func (r RequestsConfig) WaitTimeout() time.Duration {
	return time.Duration(r.WaitTimeoutSec) * time.Second
}
