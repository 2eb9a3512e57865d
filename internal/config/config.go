package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/llehouerou/crate/internal/recents"
)

const (
	appName    = "crate"
	dbFileName = "crate.db"

	DefaultStatsRetentionDays = 365
)

type Config struct {
	DBPath     string `koanf:"db_path"`     // database file; empty means the XDG data dir
	LibraryDir string `koanf:"library_dir"` // managed directory for copy-based imports

	RecentsCap         int `koanf:"recents_cap"`          // combined album+playlist recents cap (default: 50)
	StatsRetentionDays int `koanf:"stats_retention_days"` // days of listening stats kept by maintenance (default: 365)

	LogLevel  string `koanf:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `koanf:"log_format"` // "text" or "json"
}

// Load reads the default config files, then any extra paths, later files
// overriding earlier ones. Missing files are skipped.
func Load(extra ...string) (*Config, error) {
	return LoadFrom(append(getConfigPaths(), extra...)...)
}

// LoadFrom reads the given config files in order (last wins).
func LoadFrom(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.LibraryDir = expandPath(cfg.LibraryDir)
	if cfg.DBPath == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = path
	}

	return cfg, nil
}

// Default returns a config with every default applied except DBPath,
// which is resolved at load time.
func Default() *Config {
	return &Config{
		RecentsCap:         recents.DefaultCap,
		StatsRetentionDays: DefaultStatsRetentionDays,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.LibraryDir != "" && !filepath.IsAbs(c.LibraryDir) {
		errs = append(errs, fmt.Errorf("library_dir must be absolute, got %q", c.LibraryDir))
	}
	if c.RecentsCap <= 0 {
		errs = append(errs, fmt.Errorf("recents_cap must be positive, got %d", c.RecentsCap))
	}
	if c.StatsRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("stats_retention_days must be positive, got %d", c.StatsRetentionDays))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. $XDG_CONFIG_HOME/crate/config.toml
	paths = append(paths, filepath.Join(xdg.ConfigHome, appName, "config.toml"))

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func defaultDBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return strings.TrimSpace(path)
}
