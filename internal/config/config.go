package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration. Timeouts are tuned in code;
// yaml.v3 has no duration syntax.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Interface    string        `yaml:"interface"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	IdleTimeout  time.Duration `yaml:"-"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT JWTConfig `yaml:"jwt"`
	// Pepper is the application-level secret mixed into every hash
	Pepper string `yaml:"pepper"`
	// UsernameSalt is the shared salt used to hash usernames for lookup
	UsernameSalt string `yaml:"username_salt"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	ExpirationSeconds int    `yaml:"expiration_seconds"`
	Issuer            string `yaml:"issuer"`
}

// WebSocketConfig holds websocket tuning parameters
type WebSocketConfig struct {
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
	WriteTimeout   time.Duration `yaml:"-"`
	PongTimeout    time.Duration `yaml:"-"`
	PingInterval   time.Duration `yaml:"-"`
	SendBufferSize int           `yaml:"send_buffer_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	IsDev      bool   `yaml:"is_dev"`
	LogDir     string `yaml:"log_dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Interface:    "0.0.0.0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     "5432",
				User:     "openboard",
				Database: "openboard",
				SSLMode:  "disable",
			},
			Redis: RedisConfig{
				Host: "localhost",
				Port: "6379",
			},
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				ExpirationSeconds: 3600,
				Issuer:            "openboard",
			},
			Pepper:       "defaultPepperKeyChangeInProduction",
			UsernameSalt: "UsernameSaltKeyChangeInProduction",
		},
		WebSocket: WebSocketConfig{
			ReadLimitBytes: 64 * 1024,
			WriteTimeout:   10 * time.Second,
			PongTimeout:    60 * time.Second,
			PingInterval:   30 * time.Second,
			SendBufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogDir:     "logs",
			MaxAgeDays: 7,
			MaxSizeMB:  100,
			MaxBackups: 10,
			Console:    true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Server.Port, "SERVER_PORT")
	envString(&c.Server.Interface, "SERVER_INTERFACE")

	envString(&c.Database.Postgres.Host, "POSTGRES_HOST")
	envString(&c.Database.Postgres.Port, "POSTGRES_PORT")
	envString(&c.Database.Postgres.User, "POSTGRES_USER")
	envString(&c.Database.Postgres.Password, "POSTGRES_PASSWORD")
	envString(&c.Database.Postgres.Database, "POSTGRES_DATABASE")
	envString(&c.Database.Postgres.SSLMode, "POSTGRES_SSL_MODE")

	envString(&c.Database.Redis.Host, "REDIS_HOST")
	envString(&c.Database.Redis.Port, "REDIS_PORT")
	envString(&c.Database.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Database.Redis.DB, "REDIS_DB")

	envString(&c.Auth.JWT.Secret, "JWT_SECRET")
	envInt(&c.Auth.JWT.ExpirationSeconds, "JWT_EXPIRATION_SECONDS")
	envString(&c.Auth.JWT.Issuer, "JWT_ISSUER")
	envString(&c.Auth.Pepper, "AUTH_PEPPER")
	envString(&c.Auth.UsernameSalt, "AUTH_USERNAME_SALT")

	envString(&c.Logging.Level, "LOG_LEVEL")
	envString(&c.Logging.LogDir, "LOG_DIR")
	envBool(&c.Logging.IsDev, "LOG_DEV")
}

// Validate checks for configuration that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Auth.JWT.Secret == "" {
		return fmt.Errorf("auth.jwt.secret is required (set JWT_SECRET)")
	}
	if c.Auth.JWT.ExpirationSeconds <= 0 {
		return fmt.Errorf("auth.jwt.expiration_seconds must be positive")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	return nil
}

// JWTDuration returns the configured access-token lifetime.
func (c *Config) JWTDuration() time.Duration {
	return time.Duration(c.Auth.JWT.ExpirationSeconds) * time.Second
}

// ListenAddr returns the interface:port pair for the HTTP listener.
func (c *Config) ListenAddr() string {
	return c.Server.Interface + ":" + c.Server.Port
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
