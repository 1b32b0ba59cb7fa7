package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty catalog dir",
			mutate: func(cfg *Config) {
				cfg.CatalogDir = ""
			},
			wantErr: "catalog directory",
		},
		{
			name: "extension without dot",
			mutate: func(cfg *Config) {
				cfg.CatalogExt = "xml"
			},
			wantErr: "extension",
		},
		{
			name: "unknown store backend",
			mutate: func(cfg *Config) {
				cfg.StoreBackend = "postgres"
			},
			wantErr: "store backend",
		},
		{
			name: "sqlite without path",
			mutate: func(cfg *Config) {
				cfg.StoreBackend = "sqlite"
				cfg.SQLitePath = ""
			},
			wantErr: "sqlite path",
		},
		{
			name: "redis lock without url",
			mutate: func(cfg *Config) {
				cfg.LockBackend = "redis"
			},
			wantErr: "redis URL",
		},
		{
			name: "zero reconcile interval",
			mutate: func(cfg *Config) {
				cfg.ReconcileInterval = 0
			},
			wantErr: "reconcile interval",
		},
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "feed url without host",
			mutate: func(cfg *Config) {
				cfg.FeedURLs = []string{"http://"}
			},
			wantErr: "feed URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "cannot exceed",
		},
		{
			name: "unknown log format",
			mutate: func(cfg *Config) {
				cfg.LogFormat = "xml"
			},
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ASSETS_DIR_PATH", "/srv/catalogs")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("RECONCILE_INTERVAL", "15m")
	t.Setenv("FEED_URLS", "https://a.example.test/feed.xml,https://b.example.test/feed.xml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CatalogDir != "/srv/catalogs" {
		t.Fatalf("catalog dir = %q", cfg.CatalogDir)
	}
	if cfg.StoreBackend != "sqlite" {
		t.Fatalf("store backend = %q", cfg.StoreBackend)
	}
	if cfg.ReconcileInterval != 15*time.Minute {
		t.Fatalf("reconcile interval = %s", cfg.ReconcileInterval)
	}
	if len(cfg.FeedURLs) != 2 {
		t.Fatalf("feed urls = %v", cfg.FeedURLs)
	}
	if cfg.MongoDatabase != "test" || cfg.MongoCollection != "product" {
		t.Fatalf("unset keys should keep defaults, got %q/%q", cfg.MongoDatabase, cfg.MongoCollection)
	}
}

func TestLoadEnvFile(t *testing.T) {
	os.Unsetenv("KNOWN_CODE_CACHE_SIZE")
	t.Cleanup(func() { os.Unsetenv("KNOWN_CODE_CACHE_SIZE") })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KNOWN_CODE_CACHE_SIZE=128\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.KnownCodeCacheSize != 128 {
		t.Fatalf("cache size = %d", cfg.KnownCodeCacheSize)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("FETCH_PARALLELISM", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric parallelism")
	}
}
