package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	DB        DBConfig       `yaml:"db"`
	Log       LogConfig      `yaml:"log"`
	Render    RenderConfig   `yaml:"render"`
	Providers []ProviderSlot `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address    string `yaml:"address"`
	CORSOrigin string `yaml:"cors_origin"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RenderConfig holds image rendering settings.
type RenderConfig struct {
	Timeout    Duration `yaml:"timeout"`     // per provider call
	MaxRetries int      `yaml:"max_retries"` // background retry attempts
	RetryDelay Duration `yaml:"retry_delay"` // sleep between retry attempts
}

// ProviderSlot configures one image-generation provider. Slots without an
// API key are dropped when the pool is built.
type ProviderSlot struct {
	Label      string `yaml:"label"`
	Key        string `yaml:"key"`
	Model      string `yaml:"model"`
	Resolution string `yaml:"resolution"`
}

// Fal defaults, matching the upstream provider contract.
const (
	DefaultModel      = "fal-ai/flux/dev"
	DefaultResolution = "landscape_16_9"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:    "localhost:8100",
			CORSOrigin: "http://localhost:5173",
		},
		DB: DBConfig{
			Path: "./data/sceneforge.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Render: RenderConfig{
			Timeout:    Duration(45 * time.Second),
			MaxRetries: 2,
			RetryDelay: 0,
		},
		Providers: []ProviderSlot{
			{Label: "fal-1", Model: DefaultModel, Resolution: DefaultResolution},
			{Label: "fal-2", Model: DefaultModel, Resolution: DefaultResolution},
			{Label: "fal-3", Model: DefaultModel, Resolution: DefaultResolution},
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
// API keys and model overrides left empty in YAML fall back to environment
// variables (FAL_API_KEY, FAL_API_KEY_2, FAL_API_KEY_3, FAL_MODEL,
// FAL_RESOLUTION and their _2/_3 variants).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.applyEnvFallbacks()
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	cfg.applyEnvFallbacks()
	return cfg, nil
}

// applyEnvFallbacks fills empty provider credentials from the environment.
// Only secrets and per-slot model overrides come from env; everything else
// lives in YAML.
func (c *Config) applyEnvFallbacks() {
	envKeys := []string{"FAL_API_KEY", "FAL_API_KEY_2", "FAL_API_KEY_3"}
	envModels := []string{"FAL_MODEL", "FAL_MODEL_2", "FAL_MODEL_3"}
	envResolutions := []string{"FAL_RESOLUTION", "FAL_RESOLUTION_2", "FAL_RESOLUTION_3"}

	for i := range c.Providers {
		if i >= len(envKeys) {
			break
		}
		p := &c.Providers[i]
		if p.Key == "" {
			p.Key = os.Getenv(envKeys[i])
		}
		if v := os.Getenv(envModels[i]); v != "" && p.Model == DefaultModel {
			p.Model = v
		}
		if v := os.Getenv(envResolutions[i]); v != "" && p.Resolution == DefaultResolution {
			p.Resolution = v
		}
		if p.Model == "" {
			p.Model = DefaultModel
		}
		if p.Resolution == "" {
			p.Resolution = DefaultResolution
		}
		if p.Label == "" {
			p.Label = fmt.Sprintf("fal-%d", i+1)
		}
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# SceneForge Configuration
# ---------------------
# Provider API keys may be left empty here and supplied via the
# FAL_API_KEY / FAL_API_KEY_2 / FAL_API_KEY_3 environment variables.
# Duration units: ns, us, ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
