// Package config loads the minidrive client configuration: a TOML file
// with defaults, environment-variable overrides, and CLI-flag overrides
// layered on top, in that order. Unknown config keys are fatal — silently
// ignoring a typo leads to hard-to-debug behavior.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Default values. These are "layer 0" of the override chain and work
// without any config file at all.
const (
	DefaultServerURL       = "http://localhost:5000"
	defaultLogLevel        = "info"
	defaultRefreshInterval = "5s"
)

// Config is the on-disk configuration shape.
type Config struct {
	// ServerURL is the Mini Drive server base URL.
	ServerURL string `toml:"server_url"`

	// LogLevel is the baseline slog level: debug, info, warn, error.
	// CLI --verbose/--quiet override it.
	LogLevel string `toml:"log_level"`

	// RefreshInterval is the periodic refresh cadence for the watch loop,
	// as a Go duration string.
	RefreshInterval string `toml:"refresh_interval"`

	// WatchDir, when set, is auto-uploaded by the watch loop.
	WatchDir string `toml:"watch_dir"`
}

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:       DefaultServerURL,
		LogLevel:        defaultLogLevel,
		RefreshInterval: defaultRefreshInterval,
	}
}

// Validate checks a loaded Config for values that will fail later in
// confusing ways if accepted here.
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url %q is not an absolute http(s) URL", cfg.ServerURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url scheme %q is not http or https", u.Scheme)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	if _, err := time.ParseDuration(cfg.RefreshInterval); err != nil {
		return fmt.Errorf("refresh_interval %q is not a duration: %w", cfg.RefreshInterval, err)
	}

	return nil
}

// Interval returns the parsed refresh interval. Validate has already
// guaranteed it parses.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		d, _ = time.ParseDuration(defaultRefreshInterval)
	}

	return d
}
