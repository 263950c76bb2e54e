package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	StyleNormal = "normal"
	StyleSpicy  = "spicy"
)

type Config struct {
	APIURL         string   `toml:"api_url"`
	DBPath         string   `toml:"db_path"`
	LogPath        string   `toml:"log_path"`
	LogLevel       string   `toml:"log_level"`
	Model          string   `toml:"model"`
	Style          string   `toml:"style"`
	RequestTimeout Duration `toml:"request_timeout"`
	MaxPersonas    int      `toml:"max_personas"`
	MockAddr       string   `toml:"mock_addr"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads ~/.config/guru/config.toml, then a .env file in the working
// directory, then GURU_* environment variables.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(home, ".config", "guru", "config.toml"), home)
}

// LoadFrom is Load with an explicit config path and home directory.
func LoadFrom(cfgPath, home string) (*Config, error) {
	cfg := Defaults(home)

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// a missing .env is the common case
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogPath = expandHome(cfg.LogPath, home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration rooted at home.
func Defaults(home string) *Config {
	return &Config{
		APIURL:         "https://guruchat-backend.onrender.com/api",
		DBPath:         filepath.Join(home, ".config", "guru", "guru.db"),
		LogPath:        filepath.Join(home, ".config", "guru", "guru.log"),
		LogLevel:       "info",
		Model:          "default",
		Style:          StyleNormal,
		RequestTimeout: Duration{30 * time.Second},
		MaxPersonas:    3,
		MockAddr:       ":8787",
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("GURU_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("GURU_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("GURU_STYLE"); v != "" {
		cfg.Style = v
	}
	if v := os.Getenv("GURU_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GURU_MAX_PERSONAS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GURU_MAX_PERSONAS: %w", err)
		}
		cfg.MaxPersonas = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Style {
	case StyleNormal, StyleSpicy:
	default:
		return fmt.Errorf("invalid style %q (want %s or %s)", c.Style, StyleNormal, StyleSpicy)
	}
	if c.MaxPersonas < 1 {
		return fmt.Errorf("max_personas must be positive, got %d", c.MaxPersonas)
	}
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("api_url is empty")
	}
	if c.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
