// Package config loads canopy's on-disk configuration.
//
// Configuration lives in a TOML file (.canopy.toml) looked up in the
// analyzed project directory first and the user config directory second.
// All fields are optional; zero values fall back to defaults, so a missing
// file is not an error.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file looked up per project.
const FileName = ".canopy.toml"

// Config holds user-tunable settings for a resolution run.
type Config struct {
	// CacheDir overrides the package metadata cache directory.
	CacheDir string `toml:"cache_dir"`
	// CacheTTL is how long cached metadata stays valid (e.g., "168h").
	CacheTTL duration `toml:"cache_ttl"`
	// CacheMaxMB caps the on-disk cache size in MiB.
	CacheMaxMB int64 `toml:"cache_max_mb"`
	// RedisURL, if set, selects the Redis cache backend over the file one.
	RedisURL string `toml:"redis_url"`
	// Workers bounds concurrent metadata fetches.
	Workers int `toml:"workers"`
	// ExcludeScopes lists dependency scopes to skip entirely (e.g., "dev").
	ExcludeScopes []string `toml:"exclude_scopes"`
	// MongoURI, if set, enables graph export to MongoDB.
	MongoURI string `toml:"mongo_uri"`
	// MongoDatabase names the export database (default "canopy").
	MongoDatabase string `toml:"mongo_database"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheTTL:      duration{7 * 24 * time.Hour},
		CacheMaxMB:    100,
		Workers:       20,
		MongoDatabase: "canopy",
	}
}

// Load reads configuration for the given project directory.
// Lookup order: <projectDir>/.canopy.toml, then the user config dir.
// A missing file yields defaults; a malformed file is an error.
func Load(projectDir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(projectDir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(userDir, "canopy", "config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTL returns the configured cache TTL, or the default when unset.
func (c Config) TTL() time.Duration {
	if c.CacheTTL.Duration <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.CacheTTL.Duration
}

// CacheBytes returns the cache size cap in bytes.
func (c Config) CacheBytes() int64 {
	if c.CacheMaxMB <= 0 {
		return 100 << 20
	}
	return c.CacheMaxMB << 20
}
