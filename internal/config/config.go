package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete branchguard configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	GitHubAPI GitHubAPIConfig `yaml:"github_api"`
	State     StateConfig     `yaml:"state"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
}

// GitHubAPIConfig defines GitHub API and App authentication settings.
type GitHubAPIConfig struct {
	// BaseURL is the base URL of the GitHub API server with a trailing slash.
	BaseURL string `yaml:"base_url"`

	// Organization is the slug of the organization this service watches, as
	// included in URLs (for https://github.com/example-organization this is
	// "example-organization").
	Organization string `yaml:"organization"`

	// PrivateKeyPath points to the PEM-encoded private key generated for the
	// GitHub App. Make sure other users on this machine can't read it.
	PrivateKeyPath string `yaml:"private_key_path"`

	// AppID is the numeric App ID shown at the top of the App's About page.
	AppID int64 `yaml:"app_id"`

	// WebhookSecret verifies that incoming webhook payloads actually come
	// from GitHub. Optional, but recommended for production use.
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// StateConfig defines delivery ledger storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "branchguard",
			Listen:   "127.0.0.1:2342",
			LogLevel: "info",
		},
		GitHubAPI: GitHubAPIConfig{
			BaseURL: "https://api.github.com/",
		},
		State: StateConfig{
			Path: "./data/branchguard.db",
		},
	}
}

// Load reads and parses configuration from a YAML file. Values of the form
// ${ENV_VAR} are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", configPath, err)
	}

	data = expandEnvVars(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", configPath, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyDefaults fills fields the YAML left empty.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.Listen == "" {
		cfg.Service.Listen = def.Service.Listen
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.GitHubAPI.BaseURL == "" {
		cfg.GitHubAPI.BaseURL = def.GitHubAPI.BaseURL
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
}

// Validate checks that the configuration is complete and well-formed.
func (c *Config) Validate() error {
	if c.GitHubAPI.Organization == "" {
		return fmt.Errorf("github_api.organization is required")
	}
	if c.GitHubAPI.PrivateKeyPath == "" {
		return fmt.Errorf("github_api.private_key_path is required")
	}
	if c.GitHubAPI.AppID <= 0 {
		return fmt.Errorf("github_api.app_id must be a positive integer")
	}

	u, err := url.Parse(c.GitHubAPI.BaseURL)
	if err != nil {
		return fmt.Errorf("github_api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("github_api.base_url must use http or https, got %q", c.GitHubAPI.BaseURL)
	}
	// Endpoint paths are joined relative to the base URL, which only works
	// when the base ends with a slash.
	if c.GitHubAPI.BaseURL[len(c.GitHubAPI.BaseURL)-1] != '/' {
		c.GitHubAPI.BaseURL += "/"
	}

	return nil
}
