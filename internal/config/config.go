// Package config loads the immutable configuration snapshot consumed by the
// dispatch core. Parsing is deliberately minimal: a single YAML document,
// no INI/env layering, no CLI. Process supervision and flag merging remain
// an external collaborator's responsibility.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// Config is the read-only snapshot every component receives at construction.
// It is never mutated after Load returns.
type Config struct {
	ReplyDelaySeconds int `yaml:"reply_delay"`

	PollTimeoutSeconds int `yaml:"poll_timeout"`
	PollLimit          int `yaml:"poll_limit"`

	AccessPath string `yaml:"access_path"`

	WebhookEnabled  bool   `yaml:"webhook_enabled"`
	WebhookPort     int    `yaml:"webhook_port"`
	WebhookThreads  int    `yaml:"webhook_threads"`
	WebhookPoolSize int    `yaml:"webhook_pool_size"`
	WebhookSecret   string `yaml:"webhook_secret"`

	AdminID int64 `yaml:"admin_id"`

	WorkerCount  int `yaml:"worker_count"`
	UserRingSize int `yaml:"user_ring_size"`

	LogPath      string `yaml:"log_path"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`

	CompletionEndpoint     string `yaml:"completion_endpoint"`
	CompletionModel        string `yaml:"completion_model"`
	CompletionMaxTokens    int    `yaml:"completion_max_tokens"`
	CompletionSystemPrompt string `yaml:"completion_system_prompt"`

	BotToken    string `yaml:"bot_token"`
	BotUsername string `yaml:"bot_username"`
}

// Default returns the bounds-satisfying defaults used for every field the
// YAML document omits. A field set explicitly, even to zero, keeps the value
// it was given.
func Default() Config {
	return Config{
		ReplyDelaySeconds:  0,
		PollTimeoutSeconds: 30,
		PollLimit:          100,
		AccessPath:         "access.list",
		WebhookPort:        8443,
		WebhookThreads:     4,
		WebhookPoolSize:    16,
		WorkerCount:        4,
		UserRingSize:       16,
		LogPath:            "tgbot.log",
		LogMaxSizeMB:       8,
	}
}

// Load reads path as YAML, overlays it onto Default(), validates every
// field's bounds, and returns the resulting immutable snapshot. All
// violations are reported at once, not just the first.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func between(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("config: %s=%d out of range [%d,%d]", name, v, lo, hi)
	}
	return nil
}

func (c Config) validate() (err error) {
	if c.BotToken == "" {
		err = multierr.Append(err, errors.New("config: bot_token is required"))
	}
	err = multierr.Append(err, between("reply_delay", c.ReplyDelaySeconds, 0, 300))
	err = multierr.Append(err, between("poll_timeout", c.PollTimeoutSeconds, 1, 120))
	err = multierr.Append(err, between("poll_limit", c.PollLimit, 1, 100))
	if c.WebhookEnabled {
		err = multierr.Append(err, between("webhook_port", c.WebhookPort, 1, 65535))
		err = multierr.Append(err, between("webhook_threads", c.WebhookThreads, 1, 32))
		err = multierr.Append(err, between("webhook_pool_size", c.WebhookPoolSize, 1, 64))
	}
	err = multierr.Append(err, between("worker_count", c.WorkerCount, 1, 16))
	err = multierr.Append(err, between("user_ring_size", c.UserRingSize, 4, 256))
	if c.LogMaxSizeMB < 1 {
		err = multierr.Append(err, errors.New("config: log_max_size_mb must be >= 1"))
	}
	return err
}
