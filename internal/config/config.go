// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scheduler.timezone defaults to Europe/Rome

	"github.com/spf13/viper"
)

// Transport drivers.
const (
	TransportTelegram = "telegram"
	TransportLog      = "log"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Transport TransportConfig `mapstructure:"transport"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Lock      LockConfig      `mapstructure:"lock"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Release   ReleaseConfig   `mapstructure:"release"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Port    int        `mapstructure:"port"`
	Auth    AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// HTTPConfig configures provider page fetches.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// TransportConfig selects how messages reach recipients.
type TransportConfig struct {
	Driver string `mapstructure:"driver"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token              string `mapstructure:"token"`
	BaseURL            string `mapstructure:"base_url"`
	BotName            string `mapstructure:"bot_name"`
	PollTimeoutSeconds int    `mapstructure:"poll_timeout_seconds"`
}

// SchedulerConfig controls the greeting jobs and delivery pacing.
type SchedulerConfig struct {
	Timezone               string            `mapstructure:"timezone"`
	ShutdownTimeoutSeconds int               `mapstructure:"shutdown_timeout_seconds"`
	DispatchConcurrency    int               `mapstructure:"dispatch_concurrency"`
	DeliveryTimeoutSeconds int               `mapstructure:"delivery_timeout_seconds"`
	SendRPS                float64           `mapstructure:"send_rps"`
	SendBurst              int               `mapstructure:"send_burst"`
	PeerRPS                float64           `mapstructure:"peer_rps"`
	PeerBurst              int               `mapstructure:"peer_burst"`
	Jobs                   map[string]string `mapstructure:"jobs"`
}

// LockConfig configures the optional Redis cycle lock. An empty address
// disables it.
type LockConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ReleaseConfig feeds the /release reply.
type ReleaseConfig struct {
	Version    string `mapstructure:"version"`
	Author     string `mapstructure:"author"`
	Repository string `mapstructure:"repository"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUONGIORNO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.user_agent", "buongiorno-bot/1.0")
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("transport.driver", TransportTelegram)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.bot_name", "")
	v.SetDefault("telegram.poll_timeout_seconds", 30)
	v.SetDefault("scheduler.timezone", "Europe/Rome")
	v.SetDefault("scheduler.shutdown_timeout_seconds", 30)
	v.SetDefault("scheduler.dispatch_concurrency", 4)
	v.SetDefault("scheduler.delivery_timeout_seconds", 30)
	v.SetDefault("scheduler.send_rps", 25)
	v.SetDefault("scheduler.send_burst", 25)
	v.SetDefault("scheduler.peer_rps", 1)
	v.SetDefault("scheduler.peer_burst", 3)
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl_seconds", 600)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("release.version", "dev")
	v.SetDefault("release.author", "")
	v.SetDefault("release.repository", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.APIKey == "" {
		return fmt.Errorf("server.auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Transport.Driver {
	case TransportTelegram:
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required for the telegram transport")
		}
	case TransportLog:
	default:
		return fmt.Errorf("transport.driver must be %q or %q, got %q", TransportTelegram, TransportLog, c.Transport.Driver)
	}
	if c.Scheduler.DispatchConcurrency <= 0 {
		return fmt.Errorf("scheduler.dispatch_concurrency must be > 0")
	}
	if c.Scheduler.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("scheduler.shutdown_timeout_seconds must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	return nil
}

// Location resolves scheduler.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// FetchTimeout is the per-request budget for provider pages.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds the scheduler drain.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Scheduler.ShutdownTimeoutSeconds) * time.Second
}

// DeliveryTimeout bounds a single delivery.
func (c Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Scheduler.DeliveryTimeoutSeconds) * time.Second
}

// PollTimeout is the Telegram long-poll timeout.
func (c Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// MaxConnLifetime is the pgx pool connection lifetime.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}

// LockTTL is how long a claimed cycle slot is held.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}
