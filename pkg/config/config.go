package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TriageConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type StagesConfig struct {
	SemgrepTimeoutSec int `yaml:"semgrep_timeout_sec"`
	ProbeTimeoutSec   int `yaml:"probe_timeout_sec"`
}

type Config struct {
	SelectedProvider string                    `yaml:"selected_provider"`
	SelectedModel    string                    `yaml:"selected_model"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
	Logging          LoggingConfig             `yaml:"logging"`
	Triage           TriageConfig              `yaml:"triage"`
	Stages           StagesConfig              `yaml:"stages"`
	PostgresDSN      string                    `yaml:"postgres_dsn,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		SelectedProvider: "gemini",
		SelectedModel:    "gemini-1.5-flash",
		Providers:        make(map[string]ProviderConfig),
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Triage: TriageConfig{SimilarityThreshold: 0.4},
		Stages: StagesConfig{
			SemgrepTimeoutSec: 300,
			ProbeTimeoutSec:   30,
		},
	}
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".vulnvalid")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Triage.SimilarityThreshold <= 0 {
		cfg.Triage.SimilarityThreshold = 0.4
	}
	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600 permissions for security (api keys)
	return os.WriteFile(path, data, 0600)
}

func (c *Config) SetAPIKey(provider, key string) {
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

// envKeyNames maps a provider to the environment variable consulted when
// the config file has no key stored for it.
var envKeyNames = map[string]string{
	"gemini":    "GOOGLE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// GetAPIKey returns the stored key for a provider, falling back to the
// conventional environment variable.
func (c *Config) GetAPIKey(provider string) string {
	provider = strings.ToLower(provider)
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	if env, ok := envKeyNames[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}
