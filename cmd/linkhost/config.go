package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare"`
	DNS        DNSConfig        `mapstructure:"dns"`
	Domains    DomainsConfig    `mapstructure:"domains"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Refresher  RefresherConfig  `mapstructure:"refresher"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProxyConfig holds request router configuration.
type ProxyConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	UpstreamURL  string        `mapstructure:"upstream_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Address returns the proxy address in host:port format.
func (c ProxyConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite3 or pgx
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CloudflareConfig holds edge provider credentials. Missing credentials
// are reported when verify or refresh is called, not at startup.
type CloudflareConfig struct {
	ZoneID        string        `mapstructure:"zone_id"`
	APIToken      string        `mapstructure:"api_token"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// Configured reports whether both credentials are set.
func (c CloudflareConfig) Configured() bool {
	return c.ZoneID != "" && c.APIToken != ""
}

// DNSConfig holds DoH resolver configuration.
type DNSConfig struct {
	ResolverURL   string        `mapstructure:"resolver_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`

	// Strict fails verify on resolver errors instead of treating them
	// as missing records.
	Strict bool `mapstructure:"strict"`
}

// DomainsConfig holds custom domain defaults.
type DomainsConfig struct {
	DNSTarget    string        `mapstructure:"dns_target"`
	PublicURL    string        `mapstructure:"public_url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// PublicHost returns the host of PublicURL, or "" when it has none.
func (c DomainsConfig) PublicHost() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// CacheConfig holds resolution cache configuration.
type CacheConfig struct {
	Backend     string        `mapstructure:"backend"` // memory or redis
	RedisURL    string        `mapstructure:"redis_url"`
	PositiveTTL time.Duration `mapstructure:"positive_ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
	MaxEntries  int           `mapstructure:"max_entries"` // memory backend only
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// SharedSecret is an optional secret to validate the X-Gateway-Secret header.
	// If empty, secret validation is skipped.
	SharedSecret string `mapstructure:"shared_secret"`

	// RequireAuth rejects domain requests without an owner identity.
	RequireAuth bool `mapstructure:"require_auth"`
}

// RefresherConfig holds the background refresher configuration.
type RefresherConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.host", "0.0.0.0")
	v.SetDefault("proxy.port", 9091)
	v.SetDefault("proxy.upstream_url", "http://localhost:3000")
	v.SetDefault("proxy.read_timeout", "30s")
	v.SetDefault("proxy.write_timeout", "60s")
	v.SetDefault("proxy.idle_timeout", "120s")

	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "./data/linkhost.db")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cloudflare.zone_id", "")
	v.SetDefault("cloudflare.api_token", "")
	v.SetDefault("cloudflare.base_url", "https://api.cloudflare.com/client/v4")
	v.SetDefault("cloudflare.timeout", "10s")
	v.SetDefault("cloudflare.retry_attempts", 2)

	v.SetDefault("dns.resolver_url", "https://cloudflare-dns.com/dns-query")
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("dns.retry_attempts", 2)
	v.SetDefault("dns.strict", false)

	v.SetDefault("domains.dns_target", "edge.linkhost.app")
	v.SetDefault("domains.public_url", "http://localhost:8080")
	v.SetDefault("domains.probe_timeout", "5s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.positive_ttl", "60s")
	v.SetDefault("cache.negative_ttl", "30s")
	v.SetDefault("cache.max_entries", 10000)

	v.SetDefault("auth.shared_secret", "") // No secret validation by default
	v.SetDefault("auth.require_auth", true)

	v.SetDefault("refresher.enabled", false)
	v.SetDefault("refresher.interval", "60s")
	v.SetDefault("refresher.max_concurrent", 5)
	v.SetDefault("refresher.batch_size", 100)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("LINKHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that would prevent startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported (use %s or %s)",
			c.Database.Driver, store.DriverSQLite, store.DriverPostgres))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required when cache.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not supported (use memory or redis)", c.Cache.Backend))
	}

	if c.Proxy.Enabled && c.Proxy.UpstreamURL == "" {
		errs = append(errs, errors.New("proxy.upstream_url is required when the proxy is enabled"))
	}

	return errors.Join(errs...)
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
