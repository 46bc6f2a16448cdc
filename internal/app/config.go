package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ACCESSDESK_SERVER_PORT.
const EnvPrefix = "ACCESSDESK"

// Config represents the runtime configuration for the access desk.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Access        AccessConfig        `mapstructure:"access"`
	Integrations  IntegrationsConfig  `mapstructure:"integrations"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	BaseURL         string          `mapstructure:"base_url"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig lists the origins allowed to call the gateway.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// RateLimitConfig sizes the per-client token buckets.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	LogLevel string       `mapstructure:"log_level"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// AccessConfig tunes access decisions and the credentials they unlock.
type AccessConfig struct {
	EnforceTraining          bool          `mapstructure:"enforce_training"`
	AutoGrantAccessLevel     string        `mapstructure:"auto_grant_access_level"`
	ApprovedGrantAccessLevel string        `mapstructure:"approved_grant_access_level"`
	ApprovedGrantTTL         time.Duration `mapstructure:"approved_grant_ttl"`
	WhitelistTTL             time.Duration `mapstructure:"whitelist_ttl"`
	MaxActiveWhitelists      int           `mapstructure:"max_active_whitelists"`
	APIKeyTTL                time.Duration `mapstructure:"api_key_ttl"`
	APIKeyPrefix             string        `mapstructure:"api_key_prefix"`
}

// IntegrationsConfig configures the simulated ticketing and source-control
// collaborators.
type IntegrationsConfig struct {
	SimulatedLatency time.Duration      `mapstructure:"simulated_latency"`
	Ticketing        TicketingConfig     `mapstructure:"ticketing"`
	SourceControl    SourceControlConfig `mapstructure:"source_control"`
}

// TicketingConfig points ticket links at a tracker.
type TicketingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Project string `mapstructure:"project"`
}

// SourceControlConfig names the organisation repository invites target.
type SourceControlConfig struct {
	Organization string `mapstructure:"org"`
}

// NotificationsConfig selects notification channels.
type NotificationsConfig struct {
	InApp bool        `mapstructure:"in_app"`
	Email EmailConfig `mapstructure:"email"`
	Queue QueueConfig `mapstructure:"queue"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// QueueConfig routes notification delivery through a redis-backed queue.
type QueueConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	Concurrency int    `mapstructure:"concurrency"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	GrantExpirySchedule string        `mapstructure:"grant_expiry_schedule"`
	ReminderSchedule    string        `mapstructure:"reminder_schedule"`
	ReminderAfter       time.Duration `mapstructure:"reminder_after"`
}

// AuditConfig configures audit archiving.
type AuditConfig struct {
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig exports each day of audit events to object storage.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// SeedConfig controls loading of the employee and policy catalog.
type SeedConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CatalogPath string `mapstructure:"catalog_path"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/accessdesk")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql", "mariadb":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit rps and burst must be positive")
	}
	if c.Access.ApprovedGrantTTL < 0 {
		return errors.New("config: access.approved_grant_ttl must not be negative")
	}
	if c.Audit.Archive.Enabled && strings.TrimSpace(c.Audit.Archive.Bucket) == "" {
		return errors.New("config: audit.archive.bucket is required when archiving is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors.origins", []string{"*"})
	v.SetDefault("server.rate_limit.rps", 10)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/accessdesk.sqlite")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("auth.jwt.issuer", "accessdesk")
	v.SetDefault("auth.jwt.access_token_ttl", "8h")

	v.SetDefault("access.enforce_training", true)
	v.SetDefault("access.auto_grant_access_level", "read_only")
	v.SetDefault("access.approved_grant_access_level", "read_write")
	v.SetDefault("access.approved_grant_ttl", "720h")
	v.SetDefault("access.whitelist_ttl", "24h")
	v.SetDefault("access.max_active_whitelists", 5)
	v.SetDefault("access.api_key_ttl", "2160h")
	v.SetDefault("access.api_key_prefix", "sk")

	v.SetDefault("integrations.simulated_latency", "150ms")
	v.SetDefault("integrations.ticketing.base_url", "https://tickets.company.com")
	v.SetDefault("integrations.ticketing.project", "ACCESS")
	v.SetDefault("integrations.source_control.org", "company")

	v.SetDefault("notifications.in_app", true)
	v.SetDefault("notifications.email.smtp.enabled", false)
	v.SetDefault("notifications.email.smtp.port", 587)
	v.SetDefault("notifications.email.smtp.use_tls", true)
	v.SetDefault("notifications.email.smtp.timeout", "10s")
	v.SetDefault("notifications.queue.enabled", false)
	v.SetDefault("notifications.queue.address", "127.0.0.1:6379")
	v.SetDefault("notifications.queue.concurrency", 4)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.grant_expiry_schedule", "@every 5m")
	v.SetDefault("maintenance.reminder_schedule", "@hourly")
	v.SetDefault("maintenance.reminder_after", "24h")

	v.SetDefault("audit.archive.enabled", false)
	v.SetDefault("audit.archive.schedule", "@daily")
	v.SetDefault("audit.archive.prefix", "audit")
	v.SetDefault("audit.archive.region", "us-east-1")

	v.SetDefault("seed.enabled", true)
	v.SetDefault("seed.catalog_path", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
