package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the notifyd service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Email         EmailConfig         `mapstructure:"email"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// BaseURL is the public origin of this service; unsubscribe links point at it.
	BaseURL string `mapstructure:"base_url"`
	// FrontendURL hosts the confirmation page unsubscribe requests redirect to.
	FrontendURL    string   `mapstructure:"frontend_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
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

// QueueConfig controls the email task queue consumed by the external worker.
type QueueConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ForceDirectEmail bypasses the queue and sends every email over SMTP.
	ForceDirectEmail bool          `mapstructure:"force_direct_email"`
	ListKey          string        `mapstructure:"list_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Redis            RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection options.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP          SMTPConfig `mapstructure:"smtp"`
	SubjectPrefix string     `mapstructure:"subject_prefix"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	// UseTLS selects implicit TLS on port 465 and STARTTLS on other ports.
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig tunes unsubscribe tokens and retention.
type NotificationsConfig struct {
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	TokenRetentionDays int           `mapstructure:"token_retention_days"`
	AuditRetentionDays int           `mapstructure:"audit_retention_days"`
	// MaintenanceSchedule is a standard five-field cron spec or descriptor such as "@daily".
	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`
}

// WorkerConfig configures worker callback authentication.
type WorkerConfig struct {
	// LegacyAPIKey is the deprecated shared secret accepted when no stored key matches.
	LegacyAPIKey string `mapstructure:"legacy_api_key"`
}

// AuthConfig captures the user-facing API authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RateLimitConfig bounds public unsubscribe traffic per client IP and route.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("NOTIFYD")
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

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/notifyd.sqlite")

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.force_direct_email", false)
	v.SetDefault("queue.list_key", "notifyd:email_tasks")
	v.SetDefault("queue.timeout", "5s")
	v.SetDefault("queue.redis.address", "127.0.0.1:6379")
	v.SetDefault("queue.redis.username", "")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.tls", false)
	v.SetDefault("queue.redis.timeout", "5s")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "15s")
	v.SetDefault("email.subject_prefix", "")

	v.SetDefault("notifications.token_ttl", "720h") // 30 days
	v.SetDefault("notifications.token_retention_days", 30)
	v.SetDefault("notifications.audit_retention_days", 30)
	v.SetDefault("notifications.maintenance_schedule", "30 3 * * *")

	v.SetDefault("worker.legacy_api_key", "")

	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", "1m")
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
