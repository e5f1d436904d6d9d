package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, merges it over the defaults, then applies
// environment overrides. A missing path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values only win when the raw
// document actually sets the key, so explicit false/0 survive the merge.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Provider.Kind != "" {
		base.Provider.Kind = override.Provider.Kind
	}
	if override.Provider.SessionID != "" {
		base.Provider.SessionID = override.Provider.SessionID
	}
	if override.Provider.APIKey != "" {
		base.Provider.APIKey = override.Provider.APIKey
	}
	if override.Provider.ProjectID != "" {
		base.Provider.ProjectID = override.Provider.ProjectID
	}
	if override.Provider.LocalChromePath != "" {
		base.Provider.LocalChromePath = override.Provider.LocalChromePath
	}
	if override.Provider.LocalDebugPort != 0 {
		base.Provider.LocalDebugPort = override.Provider.LocalDebugPort
	}

	if fieldSet(raw, "enabled_domains") {
		base.EnabledDomains = append([]string(nil), override.EnabledDomains...)
	}
	if override.ConnectionTimeoutMs != 0 {
		base.ConnectionTimeoutMs = override.ConnectionTimeoutMs
	}

	if fieldSet(raw, "reconnect", "auto") {
		base.Reconnect.Auto = override.Reconnect.Auto
	}
	if override.Reconnect.MaxAttempts != 0 {
		base.Reconnect.MaxAttempts = override.Reconnect.MaxAttempts
	}
	if fieldSet(raw, "reconnect", "delay_ms") {
		base.Reconnect.DelayMs = override.Reconnect.DelayMs
	}

	if fieldSet(raw, "mirror", "enabled") {
		base.Mirror.Enabled = override.Mirror.Enabled
	}
	if override.Mirror.NATSURL != "" {
		base.Mirror.NATSURL = override.Mirror.NATSURL
	}
	if override.Mirror.Subject != "" {
		base.Mirror.Subject = override.Mirror.Subject
	}

	if override.ListenAddr != "" {
		base.ListenAddr = override.ListenAddr
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
}

// fieldSet reports whether a (possibly nested) key appears in the raw YAML
// document.
func fieldSet(raw map[string]any, path ...string) bool {
	current := raw
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	return false
}
