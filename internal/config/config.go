// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Sources       []SourceConfig      `yaml:"sources"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig defines the operational HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig defines the seen-record store settings.
type StorageConfig struct {
	// Path is the SQLite database file holding seen records.
	Path string `yaml:"path"`
	// Retention prunes seen records older than this age. Zero keeps
	// records forever.
	Retention time.Duration `yaml:"retention"`
	// PruneSchedule is a cron expression for the retention job.
	PruneSchedule string `yaml:"prune_schedule"`
	// WriteAttempts bounds retries of an individual seen-mark write.
	WriteAttempts int `yaml:"write_attempts"`
}

// SourceConfig defines one polled source. Immutable for the process lifetime.
type SourceConfig struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"` // funda, rss
	URL          string            `yaml:"url"`
	Active       *bool             `yaml:"active"`
	PollInterval time.Duration     `yaml:"poll_interval"`
	PollJitter   time.Duration     `yaml:"poll_jitter"`
	Params       map[string]string `yaml:"params"`
}

// IsActive reports whether the source should be polled. Sources are active
// unless explicitly disabled.
func (s *SourceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Jitter returns the configured poll jitter, defaulting to a tenth of the
// poll interval.
func (s *SourceConfig) Jitter() time.Duration {
	if s.PollJitter > 0 {
		return s.PollJitter
	}
	return s.PollInterval / 10
}

// NotificationsConfig defines the push channel and dispatcher policy.
type NotificationsConfig struct {
	Provider    string        `yaml:"provider"` // pushover, webhook, noop
	Simulate    bool          `yaml:"simulate"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`

	Pushover PushoverConfig `yaml:"pushover"`
	Webhook  WebhookConfig  `yaml:"webhook"`

	// StartupMessage, when set, is pushed once after the service starts.
	StartupMessage string `yaml:"startup_message"`
	// ShutdownMessage, when set, is pushed once when the service stops.
	ShutdownMessage string `yaml:"shutdown_message"`
}

// PushoverConfig defines Pushover API settings.
type PushoverConfig struct {
	Token    string `yaml:"token"`
	User     string `yaml:"user"`
	Device   string `yaml:"device"`
	Endpoint string `yaml:"endpoint"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// FetchConfig defines outbound fetch behavior shared by all adapters.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	PerSecond float64       `yaml:"per_second"`
	Burst     int           `yaml:"burst"`
	UserAgent string        `yaml:"user_agent"`
}

// TracingConfig defines OpenTelemetry trace export settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applySourceDefaults(cfg.Sources)
	applyNotificationDefaults(&cfg.Notifications)
	applyFetchDefaults(&cfg.Fetch)
	applyTracingDefaults(&cfg.Tracing)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyStorageDefaults(s *StorageConfig) {
	if s.Path == "" {
		s.Path = "webhunter.db"
	}
	if s.PruneSchedule == "" {
		s.PruneSchedule = "@daily"
	}
	if s.WriteAttempts == 0 {
		s.WriteAttempts = 3
	}
}

func applySourceDefaults(sources []SourceConfig) {
	for i := range sources {
		if sources[i].PollInterval == 0 {
			sources[i].PollInterval = 5 * time.Minute
		}
	}
}

func applyNotificationDefaults(n *NotificationsConfig) {
	if n.Provider == "" {
		n.Provider = "pushover"
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = 3
	}
	if n.BaseDelay == 0 {
		n.BaseDelay = 2 * time.Second
	}
	if n.MaxDelay == 0 {
		n.MaxDelay = 30 * time.Second
	}
	if n.Pushover.Endpoint == "" {
		n.Pushover.Endpoint = "https://api.pushover.net/1/messages.json"
	}
}

func applyFetchDefaults(f *FetchConfig) {
	if f.Timeout == 0 {
		f.Timeout = 30 * time.Second
	}
	if f.PerSecond == 0 {
		f.PerSecond = 1.0
	}
	if f.Burst == 0 {
		f.Burst = 2
	}
	if f.UserAgent == "" {
		f.UserAgent = "webhunter/1.0"
	}
}

func applyTracingDefaults(t *TracingConfig) {
	if t.SampleRatio == 0 {
		t.SampleRatio = 1.0
	}
	if t.ServiceName == "" {
		t.ServiceName = "webhunter"
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Sources) == 0 {
		errs = append(errs, fmt.Errorf("at least one source is required"))
	}

	names := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d].name is required", i))
			continue
		}
		if _, dup := names[s.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate source name %q", s.Name))
		}
		names[s.Name] = struct{}{}

		switch s.Kind {
		case "funda", "rss":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sources[%s].url is required", s.Name))
			}
		default:
			errs = append(errs, fmt.Errorf(
				"sources[%s].kind must be one of: funda, rss (got %q)", s.Name, s.Kind,
			))
		}

		if s.PollInterval < time.Second {
			errs = append(errs, fmt.Errorf(
				"sources[%s].poll_interval must be at least 1s", s.Name,
			))
		}
	}

	switch cfg.Notifications.Provider {
	case "pushover":
		if !cfg.Notifications.Simulate {
			if cfg.Notifications.Pushover.Token == "" {
				errs = append(errs, fmt.Errorf("notifications.pushover.token is required"))
			}
			if cfg.Notifications.Pushover.User == "" {
				errs = append(errs, fmt.Errorf("notifications.pushover.user is required"))
			}
		}
	case "webhook":
		if !cfg.Notifications.Simulate && cfg.Notifications.Webhook.URL == "" {
			errs = append(errs, fmt.Errorf("notifications.webhook.url is required"))
		}
	case "noop":
	default:
		errs = append(errs, fmt.Errorf(
			"notifications.provider must be one of: pushover, webhook, noop (got %q)",
			cfg.Notifications.Provider,
		))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

// ActiveSources returns the sources that should be polled.
func (c *Config) ActiveSources() []SourceConfig {
	active := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}
