// Package config loads process configuration for the roleauth server from
// the environment and an optional .env file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	OTel     OTelConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Debug       bool
}

func (a AppConfig) IsProduction() bool { return a.Environment == "production" }

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig holds PostgreSQL settings for the user directory and
// resource loaders.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ResourceTable   string
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// KafkaConfig configures the audit sink. Audit events go to the log when
// Kafka is disabled.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	ClientID string
	Topic    string
}

// AuthConfig maps onto roleAuth.Config.
type AuthConfig struct {
	SigningMethod string
	// PrivateKey and PublicKey are base64 raw ed25519 keys or PEM. For
	// hs256, PrivateKey is the shared secret.
	PrivateKey     string
	PublicKey      string
	PrivateKeyFile string
	PublicKeyFile  string
	KeyID          string
	Issuer         string
	Audience       string
	AccessTTL      time.Duration
	Leeway         time.Duration

	RedisPrefix   string
	CommitTimeout time.Duration
	LockTTL       time.Duration

	MaxLoginAttempts     int
	LoginCooldown        time.Duration
	EnableIPThrottle     bool
	MaxSwitchesPerWindow int
	SwitchWindow         time.Duration

	AuditBufferSize int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type OTelConfig struct {
	Enabled     bool
	ServiceName string
	// Endpoint is the OTLP/gRPC collector, e.g. localhost:4317.
	Endpoint string
	Insecure bool
}

// Load reads .env from the working directory, if present, then the
// environment.
func Load() (*Config, error) {
	return load(".env", false)
}

// LoadWithPath reads the given env file, which must exist, then the
// environment.
func LoadWithPath(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if required || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "roleauth")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", false)

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "20s")

	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "roleauth")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 20)
	v.SetDefault("DATABASE_MIN_CONNS", 2)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_RESOURCE_TABLE", "documents")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "roleauth")
	v.SetDefault("KAFKA_TOPIC", "roleauth.audit")

	def := roleAuth.DefaultConfig()
	v.SetDefault("AUTH_SIGNING_METHOD", def.JWT.SigningMethod)
	v.SetDefault("AUTH_ISSUER", "roleauth")
	v.SetDefault("AUTH_ACCESS_TTL", def.JWT.AccessTTL.String())
	v.SetDefault("AUTH_LEEWAY", def.JWT.Leeway.String())
	v.SetDefault("AUTH_REDIS_PREFIX", def.Session.RedisPrefix)
	v.SetDefault("AUTH_COMMIT_TIMEOUT", def.Switch.CommitTimeout.String())
	v.SetDefault("AUTH_LOCK_TTL", def.Switch.LockTTL.String())
	v.SetDefault("AUTH_MAX_LOGIN_ATTEMPTS", def.RateLimit.MaxLoginAttempts)
	v.SetDefault("AUTH_LOGIN_COOLDOWN", def.RateLimit.LoginCooldown.String())
	v.SetDefault("AUTH_ENABLE_IP_THROTTLE", def.RateLimit.EnableIPThrottle)
	v.SetDefault("AUTH_MAX_SWITCHES_PER_WINDOW", def.RateLimit.MaxSwitchesPerWindow)
	v.SetDefault("AUTH_SWITCH_WINDOW", def.RateLimit.SwitchWindow.String())
	v.SetDefault("AUTH_AUDIT_BUFFER_SIZE", def.Audit.BufferSize)

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "roleauth")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")

	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")

	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt32("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt32("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ResourceTable = v.GetString("DATABASE_RESOURCE_TABLE")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.Topic = v.GetString("KAFKA_TOPIC")

	cfg.Auth.SigningMethod = strings.ToLower(v.GetString("AUTH_SIGNING_METHOD"))
	cfg.Auth.PrivateKey = v.GetString("AUTH_PRIVATE_KEY")
	cfg.Auth.PublicKey = v.GetString("AUTH_PUBLIC_KEY")
	cfg.Auth.PrivateKeyFile = v.GetString("AUTH_PRIVATE_KEY_FILE")
	cfg.Auth.PublicKeyFile = v.GetString("AUTH_PUBLIC_KEY_FILE")
	cfg.Auth.KeyID = v.GetString("AUTH_KEY_ID")
	cfg.Auth.Issuer = v.GetString("AUTH_ISSUER")
	cfg.Auth.Audience = v.GetString("AUTH_AUDIENCE")
	cfg.Auth.AccessTTL = v.GetDuration("AUTH_ACCESS_TTL")
	cfg.Auth.Leeway = v.GetDuration("AUTH_LEEWAY")
	cfg.Auth.RedisPrefix = v.GetString("AUTH_REDIS_PREFIX")
	cfg.Auth.CommitTimeout = v.GetDuration("AUTH_COMMIT_TIMEOUT")
	cfg.Auth.LockTTL = v.GetDuration("AUTH_LOCK_TTL")
	cfg.Auth.MaxLoginAttempts = v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS")
	cfg.Auth.LoginCooldown = v.GetDuration("AUTH_LOGIN_COOLDOWN")
	cfg.Auth.EnableIPThrottle = v.GetBool("AUTH_ENABLE_IP_THROTTLE")
	cfg.Auth.MaxSwitchesPerWindow = v.GetInt("AUTH_MAX_SWITCHES_PER_WINDOW")
	cfg.Auth.SwitchWindow = v.GetDuration("AUTH_SWITCH_WINDOW")
	cfg.Auth.AuditBufferSize = v.GetInt("AUTH_AUDIT_BUFFER_SIZE")

	cfg.Metrics.Enabled = v.GetBool("METRICS_ENABLED")
	cfg.Metrics.Path = v.GetString("METRICS_PATH")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.Endpoint = v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTel.Insecure = v.GetBool("OTEL_EXPORTER_OTLP_INSECURE")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings the server cannot start without. Engine
// settings are validated again by roleAuth.Config.Validate.
func (c *Config) Validate() error {
	var errs []error
	if c.App.Name == "" {
		errs = append(errs, errors.New("app name is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Auth.PrivateKey == "" && c.Auth.PrivateKeyFile == "" {
		errs = append(errs, errors.New("AUTH_PRIVATE_KEY or AUTH_PRIVATE_KEY_FILE is required"))
	}
	if c.Auth.SigningMethod == "ed25519" && c.Auth.PublicKey == "" && c.Auth.PublicKeyFile == "" {
		errs = append(errs, errors.New("AUTH_PUBLIC_KEY or AUTH_PUBLIC_KEY_FILE is required for ed25519"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when Kafka is enabled"))
	}
	return errors.Join(errs...)
}

// EngineConfig builds the engine configuration, reading key files if set.
func (c *Config) EngineConfig() (roleAuth.Config, error) {
	out := roleAuth.DefaultConfig()

	priv, err := keyMaterial(c.Auth.PrivateKey, c.Auth.PrivateKeyFile, c.Auth.SigningMethod == "hs256")
	if err != nil {
		return out, fmt.Errorf("private key: %w", err)
	}
	pub, err := keyMaterial(c.Auth.PublicKey, c.Auth.PublicKeyFile, false)
	if err != nil {
		return out, fmt.Errorf("public key: %w", err)
	}

	out.JWT.SigningMethod = c.Auth.SigningMethod
	out.JWT.PrivateKey = priv
	out.JWT.PublicKey = pub
	out.JWT.KeyID = c.Auth.KeyID
	out.JWT.Issuer = c.Auth.Issuer
	out.JWT.Audience = c.Auth.Audience
	out.JWT.AccessTTL = c.Auth.AccessTTL
	out.JWT.Leeway = c.Auth.Leeway

	out.Session.RedisPrefix = c.Auth.RedisPrefix
	out.Switch.CommitTimeout = c.Auth.CommitTimeout
	out.Switch.LockTTL = c.Auth.LockTTL

	out.RateLimit.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	out.RateLimit.LoginCooldown = c.Auth.LoginCooldown
	out.RateLimit.EnableIPThrottle = c.Auth.EnableIPThrottle
	out.RateLimit.MaxSwitchesPerWindow = c.Auth.MaxSwitchesPerWindow
	out.RateLimit.SwitchWindow = c.Auth.SwitchWindow

	out.Audit.Enabled = true
	out.Audit.BufferSize = c.Auth.AuditBufferSize
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Enabled

	return out, out.Validate()
}

// keyMaterial returns the contents of file when set, else value. Inline
// values are PEM when they start with "-----", raw bytes when raw is set,
// and base64 otherwise.
func keyMaterial(value, file string, raw bool) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "-----") || raw {
		return []byte(value), nil
	}
	return base64.StdEncoding.DecodeString(value)
}
