// ABOUTME: Runtime configuration loaded from an optional YAML file, then the environment.
// ABOUTME: Precedence is defaults < file < environment < explicit flag overrides applied by the caller.

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/stitch/llm"
	"github.com/2389-research/stitch/log"
)

// Environment variables consulted by Load.
const (
	EnvAPIKey       = "STITCH_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvBaseURL      = "STITCH_BASE_URL"
	EnvModel        = "STITCH_MODEL"
	EnvDB           = "STITCH_DB"
)

// Config holds everything the CLI and server need.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Retry    string `yaml:"retry"`
	DB       string `yaml:"db"`
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	Format   string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:  "https://api.openai.com/v1",
		Model:    "gpt-4o-mini",
		Retry:    "none",
		Listen:   ":2389",
		LogLevel: "info",
		Format:   "text",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist), and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.DB = v
	}
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	if _, err := llm.RetryPolicyByName(c.Retry); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Format {
	case "json", "yaml", "html", "text":
	default:
		return fmt.Errorf("unknown output format %q (want json, yaml, html, or text)", c.Format)
	}
	return nil
}

// RetryPolicy resolves the configured policy name.
func (c Config) RetryPolicy() llm.RetryPolicy {
	p, err := llm.RetryPolicyByName(c.Retry)
	if err != nil {
		return llm.NoRetryPolicy()
	}
	return p
}
