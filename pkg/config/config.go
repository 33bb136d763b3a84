// Package config handles agent configuration from YAML files or from a
// Config struct built up programmatically (spec.md §6 "External
// Interfaces").
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the recognized option set spec.md §6 names, plus the ambient
// fields (pinned impression id, browser connection, sinks) every
// deployment needs.
type Config struct {
	// Recognized options (spec.md §6 table).
	TimeToYield         time.Duration `yaml:"time_to_yield"`
	BatchLimit          int           `yaml:"batch_limit"`
	ValidateConsistency bool          `yaml:"validate_consistency"`
	UploadURL           string        `yaml:"upload_url"`
	SensitiveAttributes []string      `yaml:"sensitive_attributes"`
	ShowText            bool          `yaml:"show_text"`
	ShowImages          bool          `yaml:"show_images"`

	// ImpressionID pins a deterministic id instead of generating one —
	// used by tests and by replay tooling.
	ImpressionID string `yaml:"impression_id"`

	Browser BrowserConfig `yaml:"browser"`
	Sinks   []SinkConfig  `yaml:"sinks"`
}

// BrowserConfig controls the real live-document backend's Chrome
// connection (pkg/livedom/roddom).
type BrowserConfig struct {
	Remote      string        `yaml:"remote"`
	Stealth     string        `yaml:"stealth"` // headless | headful | stealth
	MemoryLimit int64         `yaml:"memory_limit"`
	RecycleTime time.Duration `yaml:"recycle_time"`
}

// SinkConfig defines an upload backend for compressed batches.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimeToYield <= 0 {
		c.TimeToYield = 50 * time.Millisecond
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 60 * 1024
	}
	if c.UploadURL == "" {
		c.UploadURL = "/collect"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleTime <= 0 {
		c.Browser.RecycleTime = 4 * time.Hour
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
}

// Default returns a Config with every default applied: UploadURL is
// "/collect" and no Sinks are configured.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}
