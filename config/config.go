package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds importer configuration.
type Config struct {
	CatalogDir string `envconfig:"ASSETS_DIR_PATH"`
	CatalogExt string `envconfig:"CATALOG_EXT"`

	StoreBackend    string `envconfig:"STORE_BACKEND"` // mongo, sqlite, or memory
	MongoURI        string `envconfig:"MONGO_URI"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE"`
	MongoCollection string `envconfig:"MONGO_COLLECTION"`
	SQLitePath      string `envconfig:"SQLITE_PATH"`

	LockBackend        string        `envconfig:"LOCK_BACKEND"` // local or redis
	RedisURL           string        `envconfig:"REDIS_URL"`
	LockTTL            time.Duration `envconfig:"LOCK_TTL"`
	KnownCodeCacheSize int           `envconfig:"KNOWN_CODE_CACHE_SIZE"`
	ReconcileInterval  time.Duration `envconfig:"RECONCILE_INTERVAL"`

	FeedURLs        []string      `envconfig:"FEED_URLS"`
	Parallelism     int           `envconfig:"FETCH_PARALLELISM"`
	Timeout         time.Duration `envconfig:"FETCH_TIMEOUT"`
	MaxRetries      int           `envconfig:"FETCH_MAX_RETRIES"`
	RetryBackoff    time.Duration `envconfig:"FETCH_RETRY_BACKOFF"`
	RetryBackoffMax time.Duration `envconfig:"FETCH_RETRY_BACKOFF_MAX"`
	UserAgent       string        `envconfig:"FETCH_USER_AGENT"`
	MaxBodySize     int           `envconfig:"FETCH_MAX_BODY_SIZE"`
	RespectRobots   bool          `envconfig:"FETCH_RESPECT_ROBOTS"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	LogFormat   string `envconfig:"LOG_FORMAT"` // auto, console, or json
}

// DefaultConfig returns defaults matching a local single-node deployment.
func DefaultConfig() *Config {
	return &Config{
		CatalogDir:         "assets",
		CatalogExt:         ".xml",
		StoreBackend:       "mongo",
		MongoURI:           "mongodb://localhost:27017",
		MongoDatabase:      "test",
		MongoCollection:    "product",
		SQLitePath:         "data/catalog.db",
		LockBackend:        "local",
		LockTTL:            30 * time.Second,
		KnownCodeCacheSize: 4096,
		ReconcileInterval:  time.Hour,
		Parallelism:        4,
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    10 * time.Second,
		UserAgent:          "go-catalog-sync/1.0",
		MaxBodySize:        64 << 20,
		MetricsAddr:        "",
		LogLevel:           "info",
		LogFormat:          "auto",
	}
}

// Load returns DefaultConfig overlaid with envFile (if present) and the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.LockBackend = strings.ToLower(cfg.LockBackend)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CatalogDir == "" {
		return fmt.Errorf("catalog directory cannot be empty")
	}
	if !strings.HasPrefix(c.CatalogExt, ".") || len(c.CatalogExt) < 2 {
		return fmt.Errorf("catalog extension must start with a dot")
	}

	switch c.StoreBackend {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI cannot be empty")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection cannot be empty")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("store backend must be mongo, sqlite, or memory")
	}

	switch c.LockBackend {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis lock backend")
		}
		if c.LockTTL <= 0 {
			return fmt.Errorf("lock TTL must be positive")
		}
	default:
		return fmt.Errorf("lock backend must be local or redis")
	}

	if c.KnownCodeCacheSize < 0 {
		return fmt.Errorf("known code cache size cannot be negative")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}

	for _, raw := range c.FeedURLs {
		parsedURL, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid feed URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("feed URL %q must include a host", raw)
		}
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.LogFormat != "auto" && c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be auto, console, or json")
	}

	return nil
}
