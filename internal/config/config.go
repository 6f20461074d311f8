package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models luggo.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Marketplace struct {
		MaxCommentLength    int  `yaml:"max_comment_length"`
		MaxMessageLength    int  `yaml:"max_message_length"`
		RequireSubscription bool `yaml:"require_subscription"`
	} `yaml:"marketplace"`
	Notifications struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"notifications"`
	Subscriptions struct {
		ExpiryInterval string          `yaml:"expiry_interval"`
		Plans          map[string]Plan `yaml:"plans"`
	} `yaml:"subscriptions"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type Plan struct {
	Description string  `yaml:"description"`
	Days        int     `yaml:"days"`
	Price       float64 `yaml:"price"`
}

// WebhookConfig describes an outbound chat-bot endpoint fed from the event log.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	RatePerMinute  int      `yaml:"rate_per_minute"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.ExpiryInterval(); err != nil {
		return err
	}
	if c.Marketplace.MaxCommentLength <= 0 {
		return fmt.Errorf("config.marketplace.max_comment_length must be positive")
	}
	if c.Marketplace.MaxMessageLength <= 0 {
		return fmt.Errorf("config.marketplace.max_message_length must be positive")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	for name, plan := range c.Subscriptions.Plans {
		if name == "" {
			return fmt.Errorf("config.subscriptions.plans contains empty plan name")
		}
		if plan.Days <= 0 {
			return fmt.Errorf("plan %s must last at least one day", name)
		}
		if plan.Price < 0 {
			return fmt.Errorf("plan %s has negative price", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 || hook.RatePerMinute < 0 {
			return fmt.Errorf("webhook %d has negative limits", i)
		}
	}
	return nil
}

// TokenTTL is the lifetime of issued bearer tokens.
func (c *Config) TokenTTL() (time.Duration, error) {
	return parseDuration("auth.token_ttl", c.Auth.TokenTTL, 72*time.Hour)
}

// ExpiryInterval is how often subscriptions are swept.
func (c *Config) ExpiryInterval() (time.Duration, error) {
	return parseDuration("subscriptions.expiry_interval", c.Subscriptions.ExpiryInterval, 24*time.Hour)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config.%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config.%s must be positive", field)
	}
	return d, nil
}

// Load reads and validates config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the conventional config location inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "luggo.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config on top of the defaults and validates it.
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  path: ./data/luggo.db

auth:
  jwt_secret: ""
  token_ttl: 72h

log:
  level: info
  format: json

marketplace:
  max_comment_length: 1000
  max_message_length: 2000
  require_subscription: false

notifications:
  queue_size: 256

subscriptions:
  expiry_interval: 24h
  plans:
    basic:
      description: "Monthly executor access"
      days: 30
      price: 990
    pro:
      description: "Quarterly executor access"
      days: 90
      price: 2490
`
