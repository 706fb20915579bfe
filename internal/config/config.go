// Package config loads trisync's TOML runtime configuration: the P/D
// library roots, the metadata database DSN, and the playlist export
// directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Config holds trisync runtime configuration loaded from TOML.
type Config struct {
	ConfigVersion int             `toml:"config_version"`
	PCLib         string          `toml:"pc_lib"`
	DapLib        string          `toml:"dap_lib"`
	DapPlaylists  string          `toml:"dap_playlist_dir"`
	Database      DatabaseConfig  `toml:"database"`
	Reconcile     ReconcileConfig `toml:"reconcile"`
}

// DatabaseConfig describes how to open the metadata database (B).
type DatabaseConfig struct {
	Driver string `toml:"driver"` // "sqlite"
	DSN    string `toml:"dsn"`
}

// ReconcileConfig holds defaults for the check/resolve engine.
type ReconcileConfig struct {
	IgnoreDapContent bool `toml:"ignore_dap_content"`
}

// Load reads configuration from disk. If path is empty, a default OS-specific
// location is used.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

func defaultPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(dir, "Trisync")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(dir, "trisync")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(base, "config.toml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
}

// Validate performs semantic validation of the loaded config.
func Validate(cfg Config) error {
	if cfg.PCLib == "" {
		return errors.New("pc_lib is required")
	}
	if !filepath.IsAbs(cfg.PCLib) {
		return fmt.Errorf("pc_lib must be absolute: %s", cfg.PCLib)
	}
	if err := mustBeDir(cfg.PCLib); err != nil {
		return fmt.Errorf("pc_lib: %w", err)
	}

	if cfg.DapLib == "" {
		return errors.New("dap_lib is required")
	}
	if !filepath.IsAbs(cfg.DapLib) {
		return fmt.Errorf("dap_lib must be absolute: %s", cfg.DapLib)
	}
	if err := mustBeDir(cfg.DapLib); err != nil {
		return fmt.Errorf("dap_lib: %w", err)
	}

	if cfg.DapPlaylists == "" {
		return errors.New("dap_playlist_dir is required")
	}
	if !filepath.IsAbs(cfg.DapPlaylists) {
		return fmt.Errorf("dap_playlist_dir must be absolute: %s", cfg.DapPlaylists)
	}
	if err := mustBeDir(cfg.DapPlaylists); err != nil {
		return fmt.Errorf("dap_playlist_dir: %w", err)
	}

	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}

func mustBeDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
