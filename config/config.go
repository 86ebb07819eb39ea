// Package config loads the proxy's YAML configuration file (component
// H). Field names follow the teacher pack's lowerCamelCase yaml tag
// convention (see other_examples xg2g config).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	ListenAddr      string        `yaml:"listenAddr"`
	BaseURL         string        `yaml:"baseUrl"`
	SizeLimit       uint64        `yaml:"sizeLimit"`
	CacheExpire     int           `yaml:"cacheExpire"`
	TrackExpire     int           `yaml:"trackExpire"`
	TrackInterval   int           `yaml:"trackInterval"`
	DownloadThreads int           `yaml:"downloadThreads"`
	UpstreamTimeout int           `yaml:"upstreamTimeout"`
	HTTP            HTTPConfig    `yaml:"http"`
	Logging         LoggingConfig `yaml:"logging"`
}

// HTTPConfig groups outbound-request tuning: user agent and proxy
// selection (component J).
type HTTPConfig struct {
	UserAgent string            `yaml:"userAgent"`
	Proxy     string            `yaml:"proxy"`
	Proxies   map[string]string `yaml:"proxies"`
}

// LoggingConfig toggles the logger facade's debug and safe modes.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
	Safe  bool `yaml:"safe"`
}

const (
	defaultSizeLimit       = 512 << 20
	defaultCacheExpire     = 30
	defaultTrackExpire     = 60
	defaultTrackInterval   = 8
	defaultDownloadThreads = 1
	defaultUpstreamTimeout = 30
)

// Load reads and parses the YAML config file at path, applying
// defaults for any field the file leaves at its zero value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SizeLimit == 0 {
		cfg.SizeLimit = defaultSizeLimit
	}
	if cfg.CacheExpire == 0 {
		cfg.CacheExpire = defaultCacheExpire
	}
	if cfg.TrackExpire == 0 {
		cfg.TrackExpire = defaultTrackExpire
	}
	if cfg.TrackInterval == 0 {
		cfg.TrackInterval = defaultTrackInterval
	}
	if cfg.DownloadThreads == 0 {
		cfg.DownloadThreads = defaultDownloadThreads
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = defaultUpstreamTimeout
	}
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listenAddr is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: baseUrl is required")
	}
	return nil
}

// CacheExpireDuration returns CacheExpire as a time.Duration.
func (c *Config) CacheExpireDuration() time.Duration {
	return time.Duration(c.CacheExpire) * time.Second
}

// TrackExpireDuration returns TrackExpire as a time.Duration.
func (c *Config) TrackExpireDuration() time.Duration {
	return time.Duration(c.TrackExpire) * time.Second
}

// TrackIntervalDuration returns TrackInterval as a time.Duration.
func (c *Config) TrackIntervalDuration() time.Duration {
	return time.Duration(c.TrackInterval) * time.Second
}

// UpstreamTimeoutDuration returns UpstreamTimeout as a time.Duration.
func (c *Config) UpstreamTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Second
}
