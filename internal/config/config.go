package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	StorePostgres = "pg"
	StoreMemory   = "memory"
)

// Config is the process configuration assembled from the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Audit    AuditConfig
	Log      LogConfig
}

type ServerConfig struct {
	HTTPAddr      string
	GRPCAddr      string
	Env           string
	RateBurst     int
	RatePerSecond int
	// Tighter bucket for login and registration.
	AuthRateBurst     int
	AuthRatePerSecond int
	ShutdownTimeout   time.Duration
	// Networks whose X-Forwarded-For is believed. Empty trusts nobody.
	TrustedProxies []string
}

type DatabaseConfig struct {
	Store           string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	// BcryptCost of 0 selects bcrypt.DefaultCost.
	BcryptCost int
	// Bootstrap creates the platform administrator at startup when set.
	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string
}

type AuditConfig struct {
	Buffer  int
	Workers int
	Timeout time.Duration
}

type LogConfig struct {
	Level string
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:          getEnv("TASKHUB_HTTP_ADDR", ":8080"),
			GRPCAddr:          getEnv("TASKHUB_GRPC_ADDR", ":9090"),
			Env:               getEnv("APP_ENV", "development"),
			RateBurst:         getEnvAsInt("TASKHUB_RATE_BURST", 60),
			RatePerSecond:     getEnvAsInt("TASKHUB_RATE_PER_SEC", 30),
			AuthRateBurst:     getEnvAsInt("TASKHUB_AUTH_RATE_BURST", 10),
			AuthRatePerSecond: getEnvAsInt("TASKHUB_AUTH_RATE_PER_SEC", 2),
			ShutdownTimeout:   getEnvAsDuration("TASKHUB_SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:    getEnvAsList("TASKHUB_TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Store:           strings.ToLower(getEnv("TASKHUB_STORE", StorePostgres)),
			DSN:             getEnv("TASKHUB_PG_DSN", ""),
			MaxOpenConns:    getEnvAsInt("TASKHUB_DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("TASKHUB_DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvAsDuration("TASKHUB_DB_CONN_MAX_LIFETIME", 15*time.Minute),
		},
		Auth: AuthConfig{
			Secret:     getEnv("TASKHUB_AUTH_SECRET", ""),
			Issuer:     getEnv("TASKHUB_TOKEN_ISSUER", "taskhub"),
			TokenTTL:   getEnvAsDuration("TASKHUB_TOKEN_TTL", 24*time.Hour),
			BcryptCost: getEnvAsInt("TASKHUB_BCRYPT_COST", 0),

			BootstrapEmail:    getEnv("TASKHUB_BOOTSTRAP_EMAIL", ""),
			BootstrapPassword: getEnv("TASKHUB_BOOTSTRAP_PASSWORD", ""),
			BootstrapName:     getEnv("TASKHUB_BOOTSTRAP_NAME", "Platform Admin"),
		},
		Audit: AuditConfig{
			Buffer:  getEnvAsInt("TASKHUB_AUDIT_BUFFER", 1024),
			Workers: getEnvAsInt("TASKHUB_AUDIT_WORKERS", 2),
			Timeout: getEnvAsDuration("TASKHUB_AUDIT_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("TASKHUB_LOG_LEVEL", "info"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Store {
	case StorePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("TASKHUB_PG_DSN is required for the pg store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Database.Store))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("TASKHUB_AUTH_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TASKHUB_TOKEN_TTL must be positive"))
	}
	if c.Auth.BootstrapEmail != "" && c.Auth.BootstrapPassword == "" {
		errs = append(errs, errors.New("TASKHUB_BOOTSTRAP_PASSWORD is required with TASKHUB_BOOTSTRAP_EMAIL"))
	}
	if c.Audit.Buffer <= 0 || c.Audit.Workers <= 0 {
		errs = append(errs, errors.New("audit buffer and workers must be positive"))
	}
	return errors.Join(errs...)
}

// LogFields describes the configuration for the startup log line. Secrets are masked.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("http_addr", c.Server.HTTPAddr),
		zap.String("grpc_addr", c.Server.GRPCAddr),
		zap.String("env", c.Server.Env),
		zap.String("store", c.Database.Store),
		zap.String("dsn", maskDSN(c.Database.DSN)),
		zap.Duration("token_ttl", c.Auth.TokenTTL),
		zap.Int("audit_buffer", c.Audit.Buffer),
		zap.Strings("trusted_proxies", c.Server.TrustedProxies),
	}
}

func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
