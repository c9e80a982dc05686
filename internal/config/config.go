package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskbase.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLHours   int    `yaml:"token_ttl_hours"`
		VerifyTTLHours  int    `yaml:"verify_ttl_hours"`
		ResetTTLMinutes int    `yaml:"reset_ttl_minutes"`
		FrontendURL     string `yaml:"frontend_url"`
	} `yaml:"auth"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		FromName string `yaml:"from_name"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Payment struct {
		BaseURL       string `yaml:"base_url"`
		KeyID         string `yaml:"key_id"`
		KeySecret     string `yaml:"key_secret"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"payment"`
	Uploads struct {
		Dir          string   `yaml:"dir"`
		MaxSizeBytes int64    `yaml:"max_size_bytes"`
		AllowedTypes []string `yaml:"allowed_types"`
	} `yaml:"uploads"`
	Steps struct {
		// Default ordering policy for new tasks. Sequential means a step
		// cannot start until the previous one is approved.
		Independent bool `yaml:"independent"`
	} `yaml:"steps"`
}

// Load reads and validates config from the workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with tb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth.jwt_secret is required")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	if c.Uploads.MaxSizeBytes <= 0 {
		return fmt.Errorf("config.uploads.max_size_bytes must be positive")
	}
	if len(c.Uploads.AllowedTypes) == 0 {
		return fmt.Errorf("config.uploads.allowed_types is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskbase.yml")
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with workable development defaults.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":5000"
	cfg.Server.BasePath = "/api"
	cfg.Server.BaseURL = "http://localhost:5000"
	cfg.Auth.JWTSecret = "dev-secret-change-me"
	cfg.Auth.TokenTTLHours = 24
	cfg.Auth.VerifyTTLHours = 24
	cfg.Auth.ResetTTLMinutes = 10
	cfg.Auth.FrontendURL = "http://localhost:3000"
	cfg.SMTP.FromName = "Taskbase"
	cfg.Uploads.Dir = "uploads"
	cfg.Uploads.MaxSizeBytes = 10 * 1024 * 1024
	cfg.Uploads.AllowedTypes = []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"video/mp4",
		"video/mpeg",
		"audio/mpeg",
		"audio/wav",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
	return &cfg
}

// GenerateDefault returns default config YAML for tb config init.
func GenerateDefault() string {
	data, _ := yaml.Marshal(Default())
	return string(data)
}
