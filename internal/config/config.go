// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr   string `env:"UNISHARE_SW_ADDR" envDefault:":8080"`
	Origin string `env:"UNISHARE_SW_ORIGIN" envDefault:"http://localhost:3000"`
	// CacheVersion overrides the generation name baked into the build.
	CacheVersion string `env:"UNISHARE_SW_CACHE_VERSION"`
	CacheDB      string `env:"UNISHARE_SW_CACHE_DB"`
	// CacheSocket selects the cache daemon; empty means the Bolt file is opened in-process.
	CacheSocket      string        `env:"UNISHARE_SW_CACHE_SOCK"`
	FetchTimeout     time.Duration `env:"UNISHARE_SW_FETCH_TIMEOUT" envDefault:"20s"`
	FetchParallelism int           `env:"UNISHARE_SW_FETCH_PARALLELISM" envDefault:"8"`
	MaxBodySize      int           `env:"UNISHARE_SW_MAX_BODY" envDefault:"10485760"`
	ShutdownTimeout  time.Duration `env:"UNISHARE_SW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment, fills path defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.CacheDB == "" {
		cfg.CacheDB = DefaultDBPath()
	}
	if _, err := cfg.OriginURL(); err != nil {
		return Config{}, err
	}
	if cfg.FetchParallelism <= 0 {
		return Config{}, fmt.Errorf("UNISHARE_SW_FETCH_PARALLELISM must be positive, got %d", cfg.FetchParallelism)
	}
	return cfg, nil
}

// OriginURL parses Origin, which must be an absolute http(s) URL.
func (c Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("UNISHARE_SW_ORIGIN: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("UNISHARE_SW_ORIGIN must be an absolute http(s) url, got %q", c.Origin)
	}
	return u, nil
}

func DefaultDBPath() string {
	return filepath.Join(cacheDir(), "cache.bbolt")
}

func DefaultSocketPath() string {
	return filepath.Join(cacheDir(), "cache.sock")
}

func cacheDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "unishare-sw")
}
