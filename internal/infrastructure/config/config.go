package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Inkboard auth service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Records  RecordsConfig  `yaml:"records"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tokens   TokenConfig    `yaml:"tokens"`
}

// ServiceConfig contains service identity settings.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RecordsConfig selects the backend for the renewal record registry.
//
// "sqlite" stores records alongside identities in the main database.
// "redis" keeps them in Redis, where DEL's removed-key count provides the
// same single-use delete semantics.
type RecordsConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings for the record registry.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Cookies  CookieConfig     `yaml:"cookies"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// CookieConfig controls how credentials are mapped onto cookies by the
// transport adapter.
type CookieConfig struct {
	Domain string `yaml:"domain"`
	Secure bool   `yaml:"secure"`
}

// MQTTConfig contains settings for the optional auth event publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// InfluxDBConfig contains settings for the optional metrics recorder.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TokenConfig contains credential signing and lifetime settings.
//
// All lifetimes are validated once at startup; nothing reads token
// configuration from the environment at request time.
type TokenConfig struct {
	// Secret is the HMAC signing key for both credential kinds.
	Secret string `yaml:"secret"`

	// AccessTTL is the access credential lifetime in minutes.
	AccessTTL int `yaml:"access_ttl"`

	// UserRenewalTTL is the renewal credential lifetime for registered
	// identities, in hours.
	UserRenewalTTL int `yaml:"user_renewal_ttl"`

	// GuestRenewalTTL is the renewal credential lifetime for guest
	// identities, in hours. Deliberately very long so an anonymous session
	// survives without ever logging in.
	GuestRenewalTTL int `yaml:"guest_renewal_ttl"`
}

// Record store backend names.
const (
	RecordsBackendSQLite = "sqlite"
	RecordsBackendRedis  = "redis"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The loading order is: hardcoded defaults, then YAML file values, then
// INKBOARD_* environment variables. The result is validated before it is
// returned; an invalid configuration is a startup failure, never a
// per-request one.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "inkboard-auth",
		},
		Database: DatabaseConfig{
			Path:        "./data/inkboard-auth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Records: RecordsConfig{
			Backend: RecordsBackendSQLite,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8086,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Cookies: CookieConfig{
				Secure: true,
			},
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "inkboard-auth",
			QoS:      1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tokens: TokenConfig{
			AccessTTL:       15,            // 15 minutes
			UserRenewalTTL:  24 * 7,        // 7 days
			GuestRenewalTTL: 24 * 365 * 10, // effectively unbounded
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INKBOARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INKBOARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("INKBOARD_RECORDS_BACKEND"); v != "" {
		cfg.Records.Backend = v
	}
	if v := os.Getenv("INKBOARD_REDIS_ADDR"); v != "" {
		cfg.Records.Redis.Addr = v
	}
	if v := os.Getenv("INKBOARD_REDIS_PASSWORD"); v != "" {
		cfg.Records.Redis.Password = v
	}
	if v := os.Getenv("INKBOARD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("INKBOARD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("INKBOARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("INKBOARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("INKBOARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("INKBOARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Signing secret (IMPORTANT: always set in production)
	if v := os.Getenv("INKBOARD_TOKEN_SECRET"); v != "" {
		cfg.Tokens.Secret = v
	}
}

// minSecretLength is the minimum HMAC signing key length in bytes.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Records.Backend {
	case RecordsBackendSQLite:
	case RecordsBackendRedis:
		if c.Records.Redis.Addr == "" {
			errs = append(errs, "records.redis.addr is required when records.backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("records.backend must be %q or %q", RecordsBackendSQLite, RecordsBackendRedis))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Token validation. Forged credentials grant access to every tenant's
	// boards, so a missing or weak secret refuses to start the process.
	if c.Tokens.Secret == "" {
		errs = append(errs, "tokens.secret is required (set INKBOARD_TOKEN_SECRET environment variable)")
	} else if len(c.Tokens.Secret) < minSecretLength {
		errs = append(errs, "tokens.secret must be at least 32 characters")
	}
	if c.Tokens.AccessTTL <= 0 {
		errs = append(errs, "tokens.access_ttl must be positive")
	}
	if c.Tokens.UserRenewalTTL <= 0 {
		errs = append(errs, "tokens.user_renewal_ttl must be positive")
	}
	if c.Tokens.GuestRenewalTTL <= 0 {
		errs = append(errs, "tokens.guest_renewal_ttl must be positive")
	}
	if c.Tokens.GuestRenewalTTL < c.Tokens.UserRenewalTTL {
		errs = append(errs, "tokens.guest_renewal_ttl must not be shorter than tokens.user_renewal_ttl")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb.enabled is true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AccessTTLDuration returns the access credential lifetime as a Duration.
func (c *TokenConfig) AccessTTLDuration() time.Duration {
	return time.Duration(c.AccessTTL) * time.Minute
}

// UserRenewalTTLDuration returns the registered-identity renewal lifetime.
func (c *TokenConfig) UserRenewalTTLDuration() time.Duration {
	return time.Duration(c.UserRenewalTTL) * time.Hour
}

// GuestRenewalTTLDuration returns the guest-identity renewal lifetime.
func (c *TokenConfig) GuestRenewalTTLDuration() time.Duration {
	return time.Duration(c.GuestRenewalTTL) * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
