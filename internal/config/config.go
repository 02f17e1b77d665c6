// Package config loads and validates the attribution service configuration
// from YAML with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/commercetrack/attribution/internal/logger"
)

const (
	defaultServerPort      = 8070
	defaultServerTimeout   = 30
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5
	defaultRedisAddress    = "localhost:6379"

	// defaultSessionHorizon is the inactivity window after which a session
	// can no longer be resumed or converted. Tunable policy, not an invariant.
	defaultSessionHorizon = 30 * 24 * time.Hour
	// defaultEdgeTTL bounds staleness of the in-process edge tier.
	defaultEdgeTTL = 5 * time.Minute
	// defaultSharedTTL matches the session inactivity horizon so the shared
	// tier naturally forgets sessions that can no longer be resumed.
	defaultSharedTTL = 30 * 24 * time.Hour

	defaultSweepInterval = 1 * time.Hour

	defaultCollabTimeout = 10 * time.Second
)

type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Session  SessionConfig  `yaml:"session"`
	Collab   CollabConfig   `yaml:"collaborators"`
	Events   EventsConfig   `yaml:"events"`
	Logging  logger.Config  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `env:"SERVER_HOST" yaml:"host"`
	Port         int           `env:"SERVER_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds the faster store tiers. The durable tier is the database
// and carries no TTL.
type CacheConfig struct {
	Edge   EdgeConfig   `yaml:"edge"`
	Shared SharedConfig `yaml:"shared"`
}

// EdgeConfig configures the in-process Badger edge tier.
type EdgeConfig struct {
	Enabled bool `env:"EDGE_CACHE_ENABLED" yaml:"enabled"`
	// Path is the Badger directory. Empty means in-memory.
	Path string        `env:"EDGE_CACHE_PATH" yaml:"path"`
	TTL  time.Duration `env:"EDGE_CACHE_TTL"  yaml:"ttl"`
}

// SharedConfig configures the Redis shared tier.
type SharedConfig struct {
	Enabled  bool          `env:"REDIS_ENABLED"    yaml:"enabled"`
	Address  string        `env:"REDIS_ADDRESS"    yaml:"address"`
	Password string        `env:"REDIS_PASSWORD"   yaml:"password"`
	DB       int           `env:"REDIS_DB"         yaml:"db"`
	TTL      time.Duration `env:"SHARED_CACHE_TTL" yaml:"ttl"`
}

// SessionConfig holds session lifecycle policy.
type SessionConfig struct {
	// InactivityHorizon is how long since last activity a session stays
	// resumable.
	InactivityHorizon time.Duration `env:"SESSION_INACTIVITY_HORIZON" yaml:"inactivity_horizon"`
	// SweepInterval is how often the expiry sweeper marks idle sessions
	// EXPIRED. Unset defaults to hourly; a negative value disables the
	// sweeper.
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" yaml:"sweep_interval"`
}

// CollabConfig points at the external cart and orders collaborators.
type CollabConfig struct {
	CartServiceURL  string        `env:"CART_SERVICE_URL"  yaml:"cart_service_url"`
	OrderServiceURL string        `env:"ORDER_SERVICE_URL" yaml:"order_service_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// EventsConfig gates session lifecycle event publishing to Redis Streams.
type EventsConfig struct {
	Enabled bool   `env:"EVENTS_ENABLED" yaml:"enabled"`
	Stream  string `env:"EVENTS_STREAM"  yaml:"stream"`
}

func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port is required and must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Session.InactivityHorizon <= 0 {
		return errors.New("session.inactivity_horizon must be positive")
	}
	if c.Cache.Edge.Enabled && c.Cache.Edge.TTL <= 0 {
		return errors.New("cache.edge.ttl must be positive when the edge tier is enabled")
	}
	if c.Cache.Shared.Enabled && c.Cache.Shared.Address == "" {
		return errors.New("cache.shared.address is required when the shared tier is enabled")
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg, err := loadWithDefaults(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDatabasePort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnMaxLifetime * time.Minute
	}
	if cfg.Cache.Edge.TTL == 0 {
		cfg.Cache.Edge.TTL = defaultEdgeTTL
	}
	if cfg.Cache.Shared.Address == "" {
		cfg.Cache.Shared.Address = defaultRedisAddress
	}
	if cfg.Cache.Shared.TTL == 0 {
		cfg.Cache.Shared.TTL = defaultSharedTTL
	}
	if cfg.Session.InactivityHorizon == 0 {
		cfg.Session.InactivityHorizon = defaultSessionHorizon
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = defaultSweepInterval
	}
	if cfg.Collab.RequestTimeout == 0 {
		cfg.Collab.RequestTimeout = defaultCollabTimeout
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = "attribution:session-events"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
}
