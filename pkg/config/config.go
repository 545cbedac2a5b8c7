// Package config loads the syncproxy daemon configuration from environment
// variables and an optional config file using viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full daemon configuration.
type Config struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string `mapstructure:"listen_addr"`

	// OriginURL is the base URL of the application origin server.
	OriginURL string `mapstructure:"origin_url"`

	// PublicHost is the host clients use to reach the proxy. When set,
	// requests carrying a different Host header are rejected as misdirected.
	// When empty, every request reaching the proxy is treated as application
	// traffic (the usual single-app deployment).
	PublicHost string `mapstructure:"public_host"`

	// Version is the worker version suffix embedded in every tier name.
	// Bumped by the deployer; drives tier purges on activation.
	Version string `mapstructure:"version"`

	// APIPrefix is the path prefix identifying API requests.
	APIPrefix string `mapstructure:"api_prefix"`

	// PrecacheRoutes are fetched into the static tier at install time.
	PrecacheRoutes []string `mapstructure:"precache_routes"`

	// OfflinePage is the route served as navigation fallback when offline.
	OfflinePage string `mapstructure:"offline_page"`

	// NetworkTimeout bounds the network leg of the network-first strategy.
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`

	// RetryCeiling is the max retry count before a mutation is dead-lettered.
	RetryCeiling int `mapstructure:"retry_ceiling"`

	// SyncInterval is the periodic-sync cadence.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// ProbeInterval is the origin connectivity probe cadence.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// RedisAddr is the redis host:port backing the cache tiers.
	RedisAddr string `mapstructure:"redis_addr"`

	// QueueDir is the badger directory for the durable mutation queue.
	QueueDir string `mapstructure:"queue_dir"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogPretty enables human-readable console logs.
	LogPretty bool `mapstructure:"log_pretty"`
}

// Load reads configuration from SYNCPROXY_* environment variables and an
// optional config file path. File settings are overridden by environment.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8787")
	v.SetDefault("origin_url", "http://localhost:3000")
	v.SetDefault("public_host", "")
	v.SetDefault("version", "v1")
	v.SetDefault("api_prefix", "/api/")
	v.SetDefault("precache_routes", []string{"/", "/offline", "/dashboard", "/manifest.json"})
	v.SetDefault("offline_page", "/offline")
	v.SetDefault("network_timeout", 5*time.Second)
	v.SetDefault("retry_ceiling", 3)
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("probe_interval", 30*time.Second)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("queue_dir", "./data/queue")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetEnvPrefix("SYNCPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if strings.Contains(c.Version, ":") {
		return fmt.Errorf("version must not contain ':' (used as key separator)")
	}

	u, err := url.Parse(c.OriginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("origin_url must be an absolute URL, got %q", c.OriginURL)
	}

	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("api_prefix must start with '/', got %q", c.APIPrefix)
	}

	if c.RetryCeiling < 1 {
		return fmt.Errorf("retry_ceiling must be >= 1 (got %d)", c.RetryCeiling)
	}

	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("network_timeout must be positive")
	}

	return nil
}
