package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values that are not part of the compatibility defaults
const (
	DefaultNotificationTimeout = 10
	DefaultAutoResolveInterval = 60
	DefaultHTTPAddr            = ":8088"
	DefaultGRPCAddr            = ":9090"
	DefaultPagerDutyEventsURL  = "https://events.pagerduty.com/generic/2010-04-15/create_event.json"
	DefaultRedisChannel        = "alert_events"
)

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Thresholds: Thresholds{
			ResponseTime: SeverityLevels{Warning: 1.5, Error: 2.0, Critical: 3.0},
			ErrorRate:    SeverityLevels{Warning: 0.01, Error: 0.05, Critical: 0.10},
		},
		Notification: NotificationConfig{
			Timeout: DefaultNotificationTimeout,
			Email: EmailConfig{
				Enabled:    true,
				Recipients: []string{"ops@example.com"},
				SMTPHost:   "localhost",
				SMTPPort:   25,
				From:       "alertline@localhost",
			},
			Slack: SlackConfig{
				Enabled:    true,
				WebhookURL: "https://hooks.slack.com/services/XXX/YYY/ZZZ",
			},
			PagerDuty: PagerDutyConfig{
				Enabled:    false,
				ServiceKey: "your_pagerduty_service_key",
				EventsURL:  DefaultPagerDutyEventsURL,
			},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: DefaultRedisChannel,
			},
		},
		DeduplicationWindow: 300,
		AutoResolveTime:     3600,
		AutoResolveInterval: DefaultAutoResolveInterval,
		EnvironmentSensitivity: map[string]SensitivityFactors{
			"on-prem": {ResponseTime: 1.0, ErrorRate: 1.2},
			"cloud":   {ResponseTime: 1.3, ErrorRate: 1.0},
			"hybrid":  {ResponseTime: 1.5, ErrorRate: 1.1},
		},
		Server: ServerConfig{
			HTTPAddr: DefaultHTTPAddr,
			GRPCAddr: DefaultGRPCAddr,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file at path. A missing file yields Defaults.
// Keys present in the file override the defaults; the rest are kept.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.resolveSecrets()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Notification.Timeout <= 0 {
		cfg.Notification.Timeout = DefaultNotificationTimeout
	}
	if cfg.AutoResolveInterval <= 0 {
		cfg.AutoResolveInterval = DefaultAutoResolveInterval
	}
	if cfg.Notification.PagerDuty.EventsURL == "" {
		cfg.Notification.PagerDuty.EventsURL = DefaultPagerDutyEventsURL
	}
	if cfg.Notification.Redis.Channel == "" {
		cfg.Notification.Redis.Channel = DefaultRedisChannel
	}
	cfg.resolveSecrets()

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile exports the variables in a .env file without overriding ones
// already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// resolveSecrets replaces inline values with environment variables where an
// *_env key names one that is set.
func (c *Config) resolveSecrets() {
	n := &c.Notification
	if v := lookupEnv(n.Email.PasswordEnv); v != "" {
		n.Email.Password = v
	}
	if v := lookupEnv(n.Slack.WebhookURLEnv); v != "" {
		n.Slack.WebhookURL = v
	}
	if v := lookupEnv(n.PagerDuty.ServiceKeyEnv); v != "" {
		n.PagerDuty.ServiceKey = v
	}
	if v := lookupEnv(n.Apprise.URLEnv); v != "" {
		n.Apprise.APIURL = v
	}
	if v := lookupEnv(n.Shoutrrr.URLsEnv); v != "" {
		n.Shoutrrr.URLs = splitList(v)
	}
	if v := lookupEnv(n.Redis.PasswordEnv); v != "" {
		n.Redis.Password = v
	}
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.DeduplicationWindow < 0 {
		return fmt.Errorf("deduplication_window must not be negative")
	}
	if cfg.AutoResolveTime < 0 {
		return fmt.Errorf("auto_resolve_time must not be negative")
	}
	if err := validateLevels("thresholds.response_time", cfg.Thresholds.ResponseTime); err != nil {
		return err
	}
	if err := validateLevels("thresholds.error_rate", cfg.Thresholds.ErrorRate); err != nil {
		return err
	}
	for env, f := range cfg.EnvironmentSensitivity {
		if f.ResponseTime < 0 || f.ErrorRate < 0 {
			return fmt.Errorf("environment_sensitivity.%s: factors must not be negative", env)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q unknown: want json|console", cfg.Log.Format)
	}

	n := cfg.Notification
	if n.Email.Enabled && len(n.Email.Recipients) == 0 {
		return fmt.Errorf("notification.email: recipients are required when enabled")
	}
	if n.Slack.Enabled && n.Slack.WebhookURL == "" {
		return fmt.Errorf("notification.slack: webhook_url is required when enabled")
	}
	if n.PagerDuty.Enabled && n.PagerDuty.ServiceKey == "" {
		return fmt.Errorf("notification.pagerduty: service_key is required when enabled")
	}
	if n.Apprise.Enabled && (n.Apprise.APIURL == "" || n.Apprise.Key == "") {
		return fmt.Errorf("notification.apprise: api_url and key are required when enabled")
	}
	if n.Shoutrrr.Enabled && len(n.Shoutrrr.URLs) == 0 {
		return fmt.Errorf("notification.shoutrrr: at least one url is required when enabled")
	}
	if n.Redis.Enabled && n.Redis.Addr == "" {
		return fmt.Errorf("notification.redis: addr is required when enabled")
	}

	return nil
}

func validateLevels(name string, l SeverityLevels) error {
	if l.Warning < 0 || l.Error < 0 || l.Critical < 0 {
		return fmt.Errorf("%s: levels must not be negative", name)
	}
	if l.Warning > l.Error || l.Error > l.Critical {
		return fmt.Errorf("%s: levels must satisfy warning <= error <= critical", name)
	}
	return nil
}
