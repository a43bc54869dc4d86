// Package config provides the unified configuration for formsync.
//
// The configuration is organized into logical sections:
//   - Log: logger level and encoding
//   - HTTP: timeouts, rate limiting and circuit breaking for provider calls
//   - SchemaCache: TTL and stale ceiling for discovered field schemas
//   - Credentials: read-through cache TTL and declared cascade relationships
//   - Storage: the keyed blob backend (memory, redis, mongo, mysql)
//   - Providers: per-provider vendor settings
//   - Tracing: OpenTelemetry span export
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.SchemaCache.TTL = 30 * time.Minute
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/formsync/pkg/logger"
)

// Config is the root configuration structure
type Config struct {
	Log         logger.Config               `yaml:"log" json:"log"`
	HTTP        HTTPConfig                  `yaml:"http" json:"http"`
	SchemaCache SchemaCacheConfig           `yaml:"schema_cache" json:"schema_cache"`
	Credentials CredentialsConfig           `yaml:"credentials" json:"credentials"`
	Storage     StorageConfig               `yaml:"storage" json:"storage"`
	Providers   map[string]ProviderSettings `yaml:"providers" json:"providers"`
	Tracing     TracingConfig               `yaml:"tracing" json:"tracing"`
}

// HTTPConfig controls how provider requests are sent
type HTTPConfig struct {
	// RequestTimeout bounds a single provider call end to end
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	// RateLimit is requests per second per provider client (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst is the token bucket capacity
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// CircuitBreaker enables the per-client breaker
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// FailureThreshold opens the breaker after this many consecutive failures
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// SuccessThreshold closes a half-open breaker after this many successes
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold"`
	// BreakerTimeout is how long an open breaker waits before probing
	BreakerTimeout time.Duration `yaml:"breaker_timeout" json:"breaker_timeout"`
	// UserAgent is sent on every request
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// SchemaCacheConfig controls the field schema cache
type SchemaCacheConfig struct {
	// TTL is how long a fetched schema is served without re-fetching
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// StaleCeiling is the maximum age of a snapshot served after a failed fetch
	StaleCeiling time.Duration `yaml:"stale_ceiling" json:"stale_ceiling"`
	// Strict fails validation when no schema is available at all
	Strict bool `yaml:"strict" json:"strict"`
}

// CredentialsConfig controls the credential store
type CredentialsConfig struct {
	// CacheTTL is how long credentials are kept in the in-process read-through cache
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	// Cascade declares providers that share a backing account: disconnecting
	// the key also disconnects every listed provider
	Cascade map[string][]string `yaml:"cascade" json:"cascade"`
}

// StorageConfig selects the keyed blob backend
type StorageConfig struct {
	Backend string      `yaml:"backend" json:"backend"` // memory, redis, mongo, mysql
	Redis   RedisConfig `yaml:"redis" json:"redis"`
	Mongo   MongoConfig `yaml:"mongo" json:"mongo"`
	MySQL   MySQLConfig `yaml:"mysql" json:"mysql"`
}

// RedisConfig configures the redis backend
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// MongoConfig configures the mongo backend
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// MySQLConfig configures the mysql backend
type MySQLConfig struct {
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMySQL  = "mysql"
)

// Default returns a configuration with production defaults
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		HTTP: HTTPConfig{
			RequestTimeout:   15 * time.Second,
			DialTimeout:      5 * time.Second,
			RateLimit:        10,
			RateBurst:        5,
			CircuitBreaker:   true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			BreakerTimeout:   30 * time.Second,
			UserAgent:        "formsync/1.0",
		},
		SchemaCache: SchemaCacheConfig{
			TTL:          time.Hour,
			StaleCeiling: 24 * time.Hour,
		},
		Credentials: CredentialsConfig{
			CacheTTL: 5 * time.Minute,
			Cascade:  map[string][]string{},
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "formsync"},
			Mongo:   MongoConfig{Database: "formsync", Collection: "options"},
			MySQL:   MySQLConfig{Table: "formsync_options"},
		},
		Providers: map[string]ProviderSettings{},
		Tracing: TracingConfig{
			ServiceName:  "formsync",
			SamplingRate: 1.0,
		},
	}
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http.rate_burst must be positive when rate limiting is enabled")
	}
	if c.SchemaCache.TTL <= 0 {
		return fmt.Errorf("schema_cache.ttl must be positive")
	}
	if c.SchemaCache.StaleCeiling < c.SchemaCache.TTL {
		return fmt.Errorf("schema_cache.stale_ceiling must not be shorter than schema_cache.ttl")
	}
	if c.Credentials.CacheTTL < 0 {
		return fmt.Errorf("credentials.cache_ttl cannot be negative")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required")
		}
	case BackendMySQL:
		if c.Storage.MySQL.DSN == "" {
			return fmt.Errorf("storage.mysql.dsn is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	return nil
}

// Provider returns the settings for a provider, zero-valued if none are configured
func (c *Config) Provider(id string) ProviderSettings {
	if c.Providers == nil {
		return ProviderSettings{}
	}
	return c.Providers[id]
}
