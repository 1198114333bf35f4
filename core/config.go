package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultMaxLifetime is the longest expiry the provider accepts for
	// transcript subscriptions.
	DefaultMaxLifetime   = 4230 * time.Minute
	DefaultRenewalWindow = 70 * time.Hour
	DefaultSchedule      = "0 6 * * *"
)

type SubscriptionConfig struct {
	ID              string        `koanf:"id" mapstructure:"id" yaml:"id"`
	Resource        string        `koanf:"resource" mapstructure:"resource" yaml:"resource"`
	NotificationURL string        `koanf:"notification_url" mapstructure:"notification_url" yaml:"notification_url"`
	ClientState     string        `koanf:"client_state" mapstructure:"client_state" yaml:"client_state"`
	RenewalWindow   time.Duration `koanf:"renewal_window" mapstructure:"renewal_window" yaml:"renewal_window"`
	MaxLifetime     time.Duration `koanf:"max_lifetime" mapstructure:"max_lifetime" yaml:"max_lifetime"`
	Schedule        string        `koanf:"schedule" mapstructure:"schedule" yaml:"schedule"`
	RenewTimeout    time.Duration `koanf:"renew_timeout" mapstructure:"renew_timeout" yaml:"renew_timeout"`
}

type IdentityConfig struct {
	TenantID     string   `koanf:"tenant_id" mapstructure:"tenant_id" yaml:"tenant_id"`
	ClientID     string   `koanf:"client_id" mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret" yaml:"client_secret"`
	AuthorityURL string   `koanf:"authority_url" mapstructure:"authority_url" yaml:"authority_url"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes" yaml:"scopes"`
}

// TokenURL is the client-credential token endpoint of the configured tenant.
func (c IdentityConfig) TokenURL() string {
	authority := strings.TrimRight(strings.TrimSpace(c.AuthorityURL), "/")
	return authority + "/" + url.PathEscape(strings.TrimSpace(c.TenantID)) + "/oauth2/v2.0/token"
}

type GraphConfig struct {
	BaseURL string        `koanf:"base_url" mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

type ReceiverConfig struct {
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff   time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff       time.Duration `koanf:"max_backoff" mapstructure:"max_backoff" yaml:"max_backoff"`
	Concurrency      int           `koanf:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`
	MaxBodyBytes     int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	InterestKeywords []string      `koanf:"interest_keywords" mapstructure:"interest_keywords" yaml:"interest_keywords"`
	InterestPattern  string        `koanf:"interest_pattern" mapstructure:"interest_pattern" yaml:"interest_pattern"`
}

func (c ReceiverConfig) RetryPolicy() RetryPolicy {
	return NewRetryPolicy(c.MaxAttempts, c.InitialBackoff, c.MaxBackoff)
}

const (
	StorageBackendFile   = "file"
	StorageBackendBadger = "badger"
	StorageBackendMemory = "memory"
)

type StorageConfig struct {
	Backend string `koanf:"backend" mapstructure:"backend" yaml:"backend"`
	Root    string `koanf:"root" mapstructure:"root" yaml:"root"`
}

type JobsConfig struct {
	BackendURL string   `koanf:"backend_url" mapstructure:"backend_url" yaml:"backend_url"`
	Template   string   `koanf:"template" mapstructure:"template" yaml:"template"`
	Model      string   `koanf:"model" mapstructure:"model" yaml:"model"`
	Scopes     []string `koanf:"scopes" mapstructure:"scopes" yaml:"scopes"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver" yaml:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn" yaml:"dsn"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr" yaml:"addr"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	Subscription SubscriptionConfig `koanf:"subscription" mapstructure:"subscription" yaml:"subscription"`
	Identity     IdentityConfig     `koanf:"identity" mapstructure:"identity" yaml:"identity"`
	Graph        GraphConfig        `koanf:"graph" mapstructure:"graph" yaml:"graph"`
	Receiver     ReceiverConfig     `koanf:"receiver" mapstructure:"receiver" yaml:"receiver"`
	Storage      StorageConfig      `koanf:"storage" mapstructure:"storage" yaml:"storage"`
	Jobs         JobsConfig         `koanf:"jobs" mapstructure:"jobs" yaml:"jobs"`
	Database     DatabaseConfig     `koanf:"database" mapstructure:"database" yaml:"database"`
	Server       ServerConfig       `koanf:"server" mapstructure:"server" yaml:"server"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "transcript-intake",
		Subscription: SubscriptionConfig{
			RenewalWindow: DefaultRenewalWindow,
			MaxLifetime:   DefaultMaxLifetime,
			Schedule:      DefaultSchedule,
			RenewTimeout:  2 * time.Minute,
		},
		Identity: IdentityConfig{
			AuthorityURL: "https://login.microsoftonline.com",
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com/v1.0",
			Timeout: 30 * time.Second,
		},
		Receiver: ReceiverConfig{
			MaxAttempts:      3,
			InitialBackoff:   time.Second,
			MaxBackoff:       10 * time.Second,
			Concurrency:      4,
			MaxBodyBytes:     4 << 20,
			InterestKeywords: []string{"sprint"},
		},
		Storage: StorageConfig{
			Backend: StorageBackendFile,
			Root:    "transcripts",
		},
		Jobs: JobsConfig{
			Template: "transcript-analysis",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:intake.db?cache=shared&_foreign_keys=on",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks structural consistency. A missing subscription id is valid;
// credentials are only required once a renewal is attempted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return ConfigError("core: service_name is required", nil)
	}
	if err := c.Subscription.validateWindow(); err != nil {
		return err
	}
	if c.Receiver.MaxAttempts < 1 {
		return ConfigError("core: receiver.max_attempts must be at least 1", map[string]any{
			"max_attempts": c.Receiver.MaxAttempts,
		})
	}
	if c.Receiver.Concurrency < 1 {
		return ConfigError("core: receiver.concurrency must be at least 1", map[string]any{
			"concurrency": c.Receiver.Concurrency,
		})
	}
	if pattern := strings.TrimSpace(c.Receiver.InterestPattern); pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			return ConfigError("core: receiver.interest_pattern is not a valid expression", map[string]any{
				"error": err.Error(),
			})
		}
	}
	switch strings.TrimSpace(c.Storage.Backend) {
	case StorageBackendFile, StorageBackendBadger, StorageBackendMemory:
	default:
		return ConfigError(fmt.Sprintf("core: unsupported storage backend %q", c.Storage.Backend), nil)
	}
	if c.Storage.Backend != StorageBackendMemory && strings.TrimSpace(c.Storage.Root) == "" {
		return ConfigError("core: storage.root is required", nil)
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "sqlite3", "postgres":
	default:
		return ConfigError(fmt.Sprintf("core: unsupported database driver %q", c.Database.Driver), nil)
	}
	return nil
}

func (c SubscriptionConfig) validateWindow() error {
	if c.RenewalWindow <= 0 {
		return ConfigError("core: subscription.renewal_window must be positive", nil)
	}
	if c.MaxLifetime <= 0 || c.RenewalWindow >= c.MaxLifetime {
		return ConfigError("core: subscription.renewal_window must be shorter than max_lifetime", map[string]any{
			"renewal_window": c.RenewalWindow.String(),
			"max_lifetime":   c.MaxLifetime.String(),
		})
	}
	period, err := SchedulePeriod(c.Schedule)
	if err != nil {
		return err
	}
	if c.RenewalWindow <= 2*period {
		return ConfigError("core: subscription.renewal_window must outlast two schedule periods", map[string]any{
			"renewal_window":  c.RenewalWindow.String(),
			"schedule_period": period.String(),
		})
	}
	return nil
}

// SchedulePeriod measures the interval between two consecutive ticks of a
// standard cron expression.
func SchedulePeriod(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, ConfigError("core: subscription.schedule is required", nil)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, ConfigError("core: subscription.schedule is not a valid cron expression", map[string]any{
			"schedule": spec,
			"error":    err.Error(),
		})
	}
	reference := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	first := schedule.Next(reference)
	second := schedule.Next(first)
	return second.Sub(first), nil
}

// ValidateRenewal reports the configuration a renewal attempt cannot run
// without.
func (c Config) ValidateRenewal() error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(c.Identity.TenantID) == "" {
		missing = append(missing, "identity.tenant_id")
	}
	if strings.TrimSpace(c.Identity.ClientID) == "" {
		missing = append(missing, "identity.client_id")
	}
	if strings.TrimSpace(c.Identity.ClientSecret) == "" {
		missing = append(missing, "identity.client_secret")
	}
	if len(missing) > 0 {
		return ConfigError("core: renewal credentials are not configured", map[string]any{
			"missing": missing,
		})
	}
	return nil
}

// HasSubscription reports whether a subscription id has been provisioned.
func (c Config) HasSubscription() bool {
	return strings.TrimSpace(c.Subscription.ID) != ""
}
