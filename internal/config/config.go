// Package config loads embedproxy settings from an optional file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configEnvVar = "EMBEDPROXY_CONFIG"
	envPrefix    = "EMBEDPROXY"
)

// Upstream fetch modes.
const (
	ModeHTTP    = "http"
	ModeTLS     = "tls"
	ModeBrowser = "browser"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Debug exposes panic messages in 500 responses.
	Debug bool `mapstructure:"debug"`
}

type UpstreamConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Mode           string        `mapstructure:"mode"`
	UserAgent      string        `mapstructure:"user_agent"`
	Accept         string        `mapstructure:"accept"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Referer        string        `mapstructure:"referer"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	// SitesDir holds per-host <host>.json overrides.
	SitesDir string `mapstructure:"sites_dir"`
}

type ProvidersConfig struct {
	VidsrcTo ProviderConfig `mapstructure:"vidsrc_to"`
	VidsrcMe ProviderConfig `mapstructure:"vidsrc_me"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LimitsConfig configures the admission limiter. RPS <= 0 disables it.
type LimitsConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Datadog    bool          `mapstructure:"datadog"`
	Tags       string        `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// AuditConfig selects an outcome sink. An empty Kind disables auditing.
type AuditConfig struct {
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`
}

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultReferer        = "https://google.com"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.debug", false)

	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.mode", ModeHTTP)
	v.SetDefault("upstream.user_agent", DefaultUserAgent)
	v.SetDefault("upstream.accept", DefaultAccept)
	v.SetDefault("upstream.accept_language", DefaultAcceptLanguage)
	v.SetDefault("upstream.referer", DefaultReferer)
	v.SetDefault("upstream.max_body_bytes", 8<<20)
	v.SetDefault("upstream.sites_dir", "config/sites")

	v.SetDefault("providers.vidsrc_to.base_url", "https://vidsrc.to")
	v.SetDefault("providers.vidsrc_me.base_url", "https://vidsrc.me")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("limits.rps", 0)
	v.SetDefault("limits.burst", 0)

	v.SetDefault("metrics.datadog", false)
	v.SetDefault("metrics.tags", "")
	v.SetDefault("metrics.flush_every", time.Minute)

	v.SetDefault("audit.kind", "")
	v.SetDefault("audit.dsn", "")
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads path (or $EMBEDPROXY_CONFIG when path is empty), applies
// EMBEDPROXY_* environment overrides and validates the result. A missing
// path means defaults plus environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(configEnvVar))
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Upstream.Mode = strings.ToLower(strings.TrimSpace(cfg.Upstream.Mode))
	cfg.Audit.Kind = strings.ToLower(strings.TrimSpace(cfg.Audit.Kind))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout)
	}
	switch c.Upstream.Mode {
	case ModeHTTP, ModeTLS, ModeBrowser:
	default:
		return fmt.Errorf("invalid upstream.mode: %s (must be one of: http, tls, browser)", c.Upstream.Mode)
	}
	if c.Upstream.MaxBodyBytes <= 0 {
		return fmt.Errorf("upstream.max_body_bytes must be positive, got %d", c.Upstream.MaxBodyBytes)
	}
	for name, p := range map[string]ProviderConfig{
		"providers.vidsrc_to": c.Providers.VidsrcTo,
		"providers.vidsrc_me": c.Providers.VidsrcMe,
	} {
		if err := validateBaseURL(p.BaseURL); err != nil {
			return fmt.Errorf("%s.base_url: %w", name, err)
		}
	}
	if err := ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be json or console)", c.Logging.Format)
	}
	if c.Limits.RPS < 0 || c.Limits.Burst < 0 {
		return errors.New("limits.rps and limits.burst must not be negative")
	}
	switch c.Audit.Kind {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Audit.DSN) == "" {
			return fmt.Errorf("audit.dsn is required for audit.kind=%s", c.Audit.Kind)
		}
	default:
		return fmt.Errorf("invalid audit.kind: %s (must be sqlite, postgres or empty)", c.Audit.Kind)
	}
	return nil
}

// ValidateLogLevel ensures the level is one zerolog understands.
func ValidateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: trace, debug, info, warn, error)", level)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("want absolute http(s) url, got %q", raw)
	}
	return nil
}
