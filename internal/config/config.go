// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Prefix is prepended to every environment variable name.
const Prefix = "TREEDESK_"

// Config holds server and CLI configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string // empty disables the metrics listener

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend ("local" or "s3")
	StorageBackend string
	Root           string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Content
	MaxContentSize int64

	// Change watching (local backend only)
	Watch         bool
	WatchInterval time.Duration

	// Client
	ServerURL string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cfg := &Config{
		ListenAddr:     envOr("LISTEN_ADDR", "127.0.0.1:3000"),
		MetricsAddr:    envOr("METRICS_ADDR", ""),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "console"),
		StorageBackend: envOr("STORAGE_BACKEND", "local"),
		Root:           envOr("ROOT", cwd),
		S3Endpoint:     envOr("S3_ENDPOINT", ""),
		S3Bucket:       envOr("S3_BUCKET", "treedesk"),
		S3Prefix:       envOr("S3_PREFIX", ""),
		S3AccessKey:    envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:    envOr("S3_SECRET_KEY", ""),
		S3Region:       envOr("S3_REGION", "us-east-1"),
		MaxContentSize: envInt64("MAX_CONTENT_SIZE", 32*1024*1024), // 32MB default
		Watch:          envBool("WATCH", false),
		WatchInterval:  envDuration("WATCH_INTERVAL", 5*time.Second),
		ServerURL:      envOr("SERVER_URL", "http://127.0.0.1:3000"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags may have overridden after Load.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "local":
		if c.Root == "" {
			return fmt.Errorf("%sROOT is required for the local backend", Prefix)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%sS3_BUCKET is required for the s3 backend", Prefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.MaxContentSize <= 0 {
		return fmt.Errorf("%sMAX_CONTENT_SIZE must be positive", Prefix)
	}
	if c.Watch && c.WatchInterval <= 0 {
		return fmt.Errorf("%sWATCH_INTERVAL must be positive", Prefix)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(Prefix + key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
