// Package config loads and manages ragdesk configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (RAGDESK_SERVER, RAGDESK_TOKEN)
// 2. Config file path specified via --config flag
// 3. ~/.config/ragdesk/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultServer is used when no server URL is configured anywhere.
const DefaultServer = "http://localhost:8000"

// Config is the connection configuration for the ragdesk backend.
type Config struct {
	// Server is the backend base URL, e.g. "https://docs.example.com".
	Server string `yaml:"server"`

	// Token is the bearer token obtained via `ragdesk login`.
	Token string `yaml:"token"`

	// Email is the account the token was issued for. Informational only.
	Email string `yaml:"email"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{Server: DefaultServer}
}

// DefaultPath returns ~/.config/ragdesk/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ragdesk", "config.yaml")
}

// Load reads the config file and applies environment variable overrides.
// A missing file is not an error; defaults are returned.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if v := os.Getenv("RAGDESK_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("RAGDESK_TOKEN"); v != "" {
		cfg.Token = v
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	return cfg, nil
}

// SaveCredentials persists the server, account email and bearer token into
// the config file, preserving all other user settings.
func SaveCredentials(configPath, server, email, token string) error {
	if configPath == "" {
		configPath = DefaultPath()
		if configPath == "" {
			return fmt.Errorf("cannot determine home directory")
		}
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(configPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // ignore errors; start fresh if corrupt
	}

	raw["server"] = server
	raw["email"] = email
	raw["token"] = token

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
