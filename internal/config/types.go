package config

import "time"

// Config represents the complete alertline configuration
type Config struct {
	Thresholds             Thresholds                    `yaml:"thresholds"`
	Notification           NotificationConfig            `yaml:"notification"`
	DeduplicationWindow    int                           `yaml:"deduplication_window"`  // seconds
	AutoResolveTime        int                           `yaml:"auto_resolve_time"`     // seconds, 0 disables
	AutoResolveInterval    int                           `yaml:"auto_resolve_interval"` // seconds
	EnvironmentSensitivity map[string]SensitivityFactors `yaml:"environment_sensitivity,omitempty"`
	Server                 ServerConfig                  `yaml:"server"`
	Log                    LogConfig                     `yaml:"log"`
}

// Thresholds holds per-metric severity cut-offs
type Thresholds struct {
	ResponseTime SeverityLevels `yaml:"response_time"`
	ErrorRate    SeverityLevels `yaml:"error_rate"`
}

// SeverityLevels are the lowest values that reach each severity
type SeverityLevels struct {
	Warning  float64 `yaml:"warning"`
	Error    float64 `yaml:"error"`
	Critical float64 `yaml:"critical"`
}

// SensitivityFactors scale thresholds for one environment type
type SensitivityFactors struct {
	ResponseTime float64 `yaml:"response_time"`
	ErrorRate    float64 `yaml:"error_rate"`
}

// NotificationConfig lists the notification channels
type NotificationConfig struct {
	Timeout   int             `yaml:"timeout"` // seconds per channel call
	Email     EmailConfig     `yaml:"email"`
	Slack     SlackConfig     `yaml:"slack"`
	PagerDuty PagerDutyConfig `yaml:"pagerduty"`
	Apprise   AppriseConfig   `yaml:"apprise"`
	Shoutrrr  ShoutrrrConfig  `yaml:"shoutrrr"`
	Redis     RedisConfig     `yaml:"redis"`
}

// EmailConfig defines the SMTP channel
type EmailConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Recipients  []string `yaml:"recipients"`
	SMTPHost    string   `yaml:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port"`
	Username    string   `yaml:"username,omitempty"`
	Password    string   `yaml:"password,omitempty"`
	PasswordEnv string   `yaml:"password_env,omitempty"`
	From        string   `yaml:"from"`
	UseTLS      bool     `yaml:"use_tls"`
}

// SlackConfig defines the Slack incoming-webhook channel
type SlackConfig struct {
	Enabled       bool   `yaml:"enabled"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookURLEnv string `yaml:"webhook_url_env,omitempty"`
}

// PagerDutyConfig defines the PagerDuty channel
type PagerDutyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServiceKey    string `yaml:"service_key"`
	ServiceKeyEnv string `yaml:"service_key_env,omitempty"`
	EventsURL     string `yaml:"events_url,omitempty"`
}

// AppriseConfig defines an Apprise API channel
type AppriseConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIURL  string `yaml:"api_url"`
	Key     string `yaml:"key"`
	URLEnv  string `yaml:"url_env,omitempty"`
}

// ShoutrrrConfig defines a channel routed through shoutrrr service URLs
type ShoutrrrConfig struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"`
	URLsEnv string   `yaml:"urls_env,omitempty"`
}

// RedisConfig defines a channel publishing lifecycle events to Redis pub/sub
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	DB          int    `yaml:"db"`
	Channel     string `yaml:"channel"`
}

// ServerConfig defines listener addresses
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// LogConfig defines logger behavior
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// DeduplicationWindowDuration returns the dedup window as a duration
func (c *Config) DeduplicationWindowDuration() time.Duration {
	return time.Duration(c.DeduplicationWindow) * time.Second
}

// AutoResolveDuration returns the auto-resolve age, zero when disabled
func (c *Config) AutoResolveDuration() time.Duration {
	return time.Duration(c.AutoResolveTime) * time.Second
}

// AutoResolveIntervalDuration returns how often the sweeper runs
func (c *Config) AutoResolveIntervalDuration() time.Duration {
	return time.Duration(c.AutoResolveInterval) * time.Second
}

// NotificationTimeoutDuration returns the per-call channel deadline
func (c *Config) NotificationTimeoutDuration() time.Duration {
	return time.Duration(c.Notification.Timeout) * time.Second
}
