// Package config loads codecoach settings from defaults, a YAML file, a
// .env file and CODECOACH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/codecoach/internal/stream"
)

// Config holds all client configuration.
type Config struct {
	BaseURL        string          `yaml:"base_url"`
	StreamURL      string          `yaml:"stream_url,omitempty"`
	Model          string          `yaml:"model"`
	Language       string          `yaml:"language"`
	SkillLevel     string          `yaml:"skill_level"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	FeedbackV2     bool            `yaml:"feedback_v2"`
	MaxMessages    int             `yaml:"max_messages"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	DBPath         string          `yaml:"db_path,omitempty"`
	History        bool            `yaml:"history"`
	Log            LogConfig       `yaml:"log"`
	DevServer      DevServerConfig `yaml:"devserver"`
}

// ReconnectConfig controls redialing of the streaming channel.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file,omitempty"`
}

// DevServerConfig configures the scripted backend.
type DevServerConfig struct {
	Addr       string        `yaml:"addr"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := stream.DefaultPolicy()
	return &Config{
		BaseURL:     "http://localhost:8000",
		Model:       DefaultModel,
		Language:    "Python",
		SkillLevel:  "intermediate",
		MaxMessages: 500,
		Reconnect: ReconnectConfig{
			Enabled:     p.Enabled,
			MaxAttempts: p.MaxAttempts,
			InitialWait: p.InitialWait,
			MaxWait:     p.MaxWait,
			Multiplier:  p.Multiplier,
		},
		History: true,
		Log: LogConfig{
			Enabled: true,
			Level:   "info",
		},
		DevServer: DevServerConfig{
			Addr:       ":8000",
			ChunkDelay: 30 * time.Millisecond,
		},
	}
}

type loadOptions struct {
	dotenv string
	lookup func(string) (string, bool)
}

// Option customizes Load.
type Option func(*loadOptions)

// WithDotEnv reads the .env file at path instead of ./.env. An empty path
// skips .env loading.
func WithDotEnv(path string) Option {
	return func(o *loadOptions) { o.dotenv = path }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.lookup = fn }
}

// Load builds the effective configuration. An empty path means
// DefaultPath(), which may be absent; an explicit path must exist.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{dotenv: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.readFile(path, explicit); err != nil {
			return nil, err
		}
	}

	var dotenv map[string]string
	if o.dotenv != "" {
		m, err := godotenv.Read(o.dotenv)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", o.dotenv, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := o.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from CODECOACH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("CODECOACH_BASE_URL", &c.BaseURL)
	str("CODECOACH_STREAM_URL", &c.StreamURL)
	str("CODECOACH_MODEL", &c.Model)
	str("CODECOACH_LANGUAGE", &c.Language)
	str("CODECOACH_SKILL_LEVEL", &c.SkillLevel)
	duration("CODECOACH_REQUEST_TIMEOUT", &c.RequestTimeout)
	boolean("CODECOACH_FEEDBACK_V2", &c.FeedbackV2)
	integer("CODECOACH_MAX_MESSAGES", &c.MaxMessages)
	boolean("CODECOACH_RECONNECT", &c.Reconnect.Enabled)
	integer("CODECOACH_RECONNECT_MAX_ATTEMPTS", &c.Reconnect.MaxAttempts)
	str("CODECOACH_DB", &c.DBPath)
	boolean("CODECOACH_HISTORY", &c.History)
	boolean("CODECOACH_LOG", &c.Log.Enabled)
	str("CODECOACH_LOG_LEVEL", &c.Log.Level)
	str("CODECOACH_LOG_FILE", &c.Log.File)
	str("CODECOACH_DEVSERVER_ADDR", &c.DevServer.Addr)

	return errors.Join(errs...)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks field ranges and URL shapes.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an http(s) URL", c.BaseURL)
	}
	if c.StreamURL != "" {
		u, err := url.Parse(strings.ReplaceAll(c.StreamURL, stream.IDPlaceholder, "x"))
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("stream_url %q must be a ws(s) URL", c.StreamURL)
		}
		if !strings.Contains(c.StreamURL, stream.IDPlaceholder) {
			return fmt.Errorf("stream_url %q must contain %s", c.StreamURL, stream.IDPlaceholder)
		}
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	if c.MaxMessages < 0 {
		return fmt.Errorf("max_messages cannot be negative")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts cannot be negative")
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.Multiplier < 1 {
			return fmt.Errorf("reconnect.multiplier must be >= 1")
		}
		if c.Reconnect.InitialWait <= 0 || c.Reconnect.MaxWait < c.Reconnect.InitialWait {
			return fmt.Errorf("reconnect waits must satisfy 0 < initial_wait <= max_wait")
		}
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// StreamTemplate returns the websocket URL template, derived from BaseURL
// when StreamURL is unset.
func (c *Config) StreamTemplate() (string, error) {
	if c.StreamURL != "" {
		return c.StreamURL, nil
	}
	return stream.URLFromBase(c.BaseURL)
}

// ReconnectPolicy converts the reconnect settings for the supervisor.
func (c *Config) ReconnectPolicy() stream.Policy {
	return stream.Policy{
		Enabled:     c.Reconnect.Enabled,
		MaxAttempts: c.Reconnect.MaxAttempts,
		InitialWait: c.Reconnect.InitialWait,
		MaxWait:     c.Reconnect.MaxWait,
		Multiplier:  c.Reconnect.Multiplier,
	}
}

// YAML renders the configuration as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultPath returns $XDG_CONFIG_HOME/codecoach/config.yaml, falling back
// to ~/.config/codecoach/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "codecoach", "config.yaml"), nil
}
