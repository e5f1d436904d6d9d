// Package config represents the complete event proxy configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values exported for documentation and validation
const (
	DefaultProvider             = "browserbase"
	DefaultListenAddr           = "127.0.0.1:8787"
	DefaultConnectionTimeoutMs  = 30000
	DefaultReconnectDelayMs     = 2000
	DefaultMaxReconnectAttempts = 5
	DefaultLogLevel             = "info"
	DefaultLocalDebugPort       = 9222
)

// DefaultEnabledDomains is the protocol domain set enabled when none is
// configured.
var DefaultEnabledDomains = []string{"Page", "Network", "DOM", "Runtime", "Console"}

// ProviderConfig selects and parameterizes the session provider.
type ProviderConfig struct {
	// Kind is "browserbase" (remote hosted session) or "local" (launched
	// browser process).
	Kind string `yaml:"kind"`

	// SessionID resumes an existing hosted session when set.
	SessionID string `yaml:"session_id"`

	// APIKey authenticates against the hosted provider. The
	// BROWSERBASE_API_KEY environment variable takes precedence.
	APIKey string `yaml:"api_key"`

	// ProjectID scopes hosted session creation.
	ProjectID string `yaml:"project_id"`

	// LocalChromePath overrides the browser binary for the local variant.
	LocalChromePath string `yaml:"local_chrome_path"`

	// LocalDebugPort is the DevTools port for the local variant.
	LocalDebugPort int `yaml:"local_debug_port"`
}

// ReconnectConfig controls the reconnect supervisor.
type ReconnectConfig struct {
	Auto        bool `yaml:"auto"`
	MaxAttempts int  `yaml:"max_attempts"`
	DelayMs     int  `yaml:"delay_ms"`
}

// MirrorConfig optionally mirrors every broadcast frame onto a message bus.
type MirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Config represents the complete event proxy configuration.
type Config struct {
	Provider            ProviderConfig  `yaml:"provider"`
	EnabledDomains      []string        `yaml:"enabled_domains"`
	ConnectionTimeoutMs int             `yaml:"connection_timeout_ms"`
	Reconnect           ReconnectConfig `yaml:"reconnect"`
	Mirror              MirrorConfig    `yaml:"mirror"`
	ListenAddr          string          `yaml:"listen_addr"`
	LogLevel            string          `yaml:"log_level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:           DefaultProvider,
			LocalDebugPort: DefaultLocalDebugPort,
		},
		EnabledDomains:      append([]string(nil), DefaultEnabledDomains...),
		ConnectionTimeoutMs: DefaultConnectionTimeoutMs,
		Reconnect: ReconnectConfig{
			Auto:        false,
			MaxAttempts: DefaultMaxReconnectAttempts,
			DelayMs:     DefaultReconnectDelayMs,
		},
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
	}
}

// ConnectionTimeout returns the configured timeout as a duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// ReconnectDelay returns the configured reconnect spacing as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.DelayMs) * time.Millisecond
}

// applyEnv overrides config values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("BROWSERBASE_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("BROWSERBASE_PROJECT_ID"); v != "" {
		c.Provider.ProjectID = v
	}
	if v := os.Getenv("BROWSERBASE_SESSION_ID"); v != "" {
		c.Provider.SessionID = v
	}
	if v := os.Getenv("EVENTPROXY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("EVENTPROXY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EVENTPROXY_NATS_URL"); v != "" {
		c.Mirror.NATSURL = v
	}
	if v := os.Getenv("EVENTPROXY_CONNECTION_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.ConnectionTimeoutMs = ms
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case "browserbase":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for the browserbase provider (or set BROWSERBASE_API_KEY)")
		}
	case "local":
		if c.Provider.LocalDebugPort <= 0 || c.Provider.LocalDebugPort > 65535 {
			return fmt.Errorf("provider.local_debug_port %d out of range", c.Provider.LocalDebugPort)
		}
	default:
		return fmt.Errorf("unknown provider kind %q (want browserbase or local)", c.Provider.Kind)
	}

	if c.ConnectionTimeoutMs <= 0 {
		return fmt.Errorf("connection_timeout_ms must be positive, got %d", c.ConnectionTimeoutMs)
	}
	if c.Reconnect.Auto {
		if c.Reconnect.MaxAttempts <= 0 {
			return fmt.Errorf("reconnect.max_attempts must be positive when reconnect.auto is set")
		}
		if c.Reconnect.DelayMs < 0 {
			return fmt.Errorf("reconnect.delay_ms must not be negative")
		}
	}
	if c.Mirror.Enabled {
		if c.Mirror.NATSURL == "" {
			return fmt.Errorf("mirror.nats_url is required when mirror.enabled is set")
		}
		if c.Mirror.Subject == "" {
			return fmt.Errorf("mirror.subject is required when mirror.enabled is set")
		}
	}

	seen := make(map[string]struct{}, len(c.EnabledDomains))
	for _, domain := range c.EnabledDomains {
		if !knownDomain(domain) {
			return fmt.Errorf("enabled_domains contains unknown domain %q", domain)
		}
		if _, dup := seen[domain]; dup {
			return fmt.Errorf("enabled_domains contains duplicate domain %q", domain)
		}
		seen[domain] = struct{}{}
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}

func knownDomain(name string) bool {
	for _, d := range DefaultEnabledDomains {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}
