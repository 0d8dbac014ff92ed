package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIURL         string        `yaml:"api_url" env:"LAZYTODO_API_URL" env-default:"http://localhost:8000"`
	DBPath         string        `yaml:"db_path" env:"LAZYTODO_DB_PATH"`
	WebEnabled     bool          `yaml:"web_enabled" env:"LAZYTODO_WEB_ENABLED"`
	WebHost        string        `yaml:"web_host" env:"LAZYTODO_WEB_HOST" env-default:"127.0.0.1"`
	WebPort        int           `yaml:"web_port" env:"LAZYTODO_WEB_PORT" env-default:"8080"`
	AllowedOrigins []string      `yaml:"web_allowed_origins" env:"LAZYTODO_WEB_ALLOWED_ORIGINS" env-separator:","`
	SearchDebounce time.Duration `yaml:"search_debounce" env:"LAZYTODO_SEARCH_DEBOUNCE" env-default:"300ms"`
	PageSize       int           `yaml:"page_size" env:"LAZYTODO_PAGE_SIZE" env-default:"50"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" env:"LAZYTODO_HTTP_TIMEOUT"`
	ServerSearch   bool          `yaml:"server_search" env:"LAZYTODO_SERVER_SEARCH"`
}

func Default() Config {
	return Config{
		APIURL:         "http://localhost:8000",
		WebHost:        "127.0.0.1",
		WebPort:        8080,
		SearchDebounce: 300 * time.Millisecond,
		PageSize:       50,
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lazytodo", "config.yaml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads path when it exists and then applies LAZYTODO_* environment
// overrides. A missing file yields defaults plus the environment.
func Load(path string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, err
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg.withDefaults(), nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// ReadFile reads only the file at path, without environment overrides, so
// the result is safe to write back. A missing file yields defaults.
func ReadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg, err := file.config()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(toFile(cfg))
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// fileConfig is the on-disk shape; durations are written as "300ms" style
// strings so they read back through the yaml decoder.
type fileConfig struct {
	APIURL         string   `yaml:"api_url"`
	DBPath         string   `yaml:"db_path"`
	WebEnabled     bool     `yaml:"web_enabled"`
	WebHost        string   `yaml:"web_host,omitempty"`
	WebPort        int      `yaml:"web_port"`
	AllowedOrigins []string `yaml:"web_allowed_origins,omitempty"`
	SearchDebounce string   `yaml:"search_debounce"`
	PageSize       int      `yaml:"page_size"`
	HTTPTimeout    string   `yaml:"http_timeout,omitempty"`
	ServerSearch   bool     `yaml:"server_search"`
}

func toFile(cfg Config) fileConfig {
	file := fileConfig{
		APIURL:         cfg.APIURL,
		DBPath:         cfg.DBPath,
		WebEnabled:     cfg.WebEnabled,
		WebHost:        cfg.WebHost,
		WebPort:        cfg.WebPort,
		AllowedOrigins: cfg.AllowedOrigins,
		SearchDebounce: cfg.SearchDebounce.String(),
		PageSize:       cfg.PageSize,
		ServerSearch:   cfg.ServerSearch,
	}
	if cfg.HTTPTimeout > 0 {
		file.HTTPTimeout = cfg.HTTPTimeout.String()
	}
	return file
}

func (f fileConfig) config() (Config, error) {
	cfg := Config{
		APIURL:         f.APIURL,
		DBPath:         f.DBPath,
		WebEnabled:     f.WebEnabled,
		WebHost:        f.WebHost,
		WebPort:        f.WebPort,
		AllowedOrigins: f.AllowedOrigins,
		PageSize:       f.PageSize,
		ServerSearch:   f.ServerSearch,
	}
	var err error
	if f.SearchDebounce != "" {
		if cfg.SearchDebounce, err = time.ParseDuration(f.SearchDebounce); err != nil {
			return Config{}, fmt.Errorf("search_debounce: %w", err)
		}
	}
	if f.HTTPTimeout != "" {
		if cfg.HTTPTimeout, err = time.ParseDuration(f.HTTPTimeout); err != nil {
			return Config{}, fmt.Errorf("http_timeout: %w", err)
		}
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	defaults := Default()
	if c.APIURL == "" {
		c.APIURL = defaults.APIURL
	}
	if c.WebHost == "" {
		c.WebHost = defaults.WebHost
	}
	if c.WebPort == 0 {
		c.WebPort = defaults.WebPort
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = defaults.SearchDebounce
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = defaults.PageSize
	}
	return c
}
