// ABOUTME: Application configuration loaded from YAML, .env files and SPRUCE_* variables
// ABOUTME: Picks the backend, logging, realtime bridge and mutation limits

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/spruce/models"
	"github.com/harperreed/spruce/ordering"
)

const AppName = "spruce"

// Backend kinds.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendCharm    = "charm"
)

type Config struct {
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`

	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Reminders RemindersConfig `yaml:"reminders"`
	Ordering  OrderingConfig  `yaml:"ordering"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// RedisConfig configures the cross-process change feed. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

type RemindersConfig struct {
	MaxPerProspect int `yaml:"max_per_prospect"`
}

type OrderingConfig struct {
	Increment float64 `yaml:"increment"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendSQLite,
		DatabasePath: filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		Log:          LogConfig{Level: "info", Format: "console"},
		Redis:        RedisConfig{Stream: "spruce:changes"},
		Reminders:    RemindersConfig{MaxPerProspect: models.MaxRemindersPerProspect},
		Ordering:     OrderingConfig{Increment: ordering.DefaultIncrement},
	}
}

// DefaultPath is config.yaml under the XDG config dir.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads the YAML file at path (defaults when it does not exist), then .env files,
// then SPRUCE_* environment overrides.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles reads .env files that exist. Variables already set win.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"SPRUCE_BACKEND":        &c.Backend,
		"SPRUCE_DATABASE_PATH":  &c.DatabasePath,
		"SPRUCE_POSTGRES_DSN":   &c.PostgresDSN,
		"SPRUCE_LOG_LEVEL":      &c.Log.Level,
		"SPRUCE_LOG_FORMAT":     &c.Log.Format,
		"SPRUCE_REDIS_ADDR":     &c.Redis.Addr,
		"SPRUCE_REDIS_PASSWORD": &c.Redis.Password,
		"SPRUCE_REDIS_STREAM":   &c.Redis.Stream,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SPRUCE_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPRUCE_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v := os.Getenv("SPRUCE_MAX_REMINDERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPRUCE_MAX_REMINDERS: %w", err)
		}
		c.Reminders.MaxPerProspect = n
	}
	if v := os.Getenv("SPRUCE_ORDERING_INCREMENT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SPRUCE_ORDERING_INCREMENT: %w", err)
		}
		c.Ordering.Increment = f
	}
	return nil
}

// Validate rejects settings the app cannot start with.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	case BackendCharm:
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, postgres or charm)", c.Backend)
	}
	if c.Reminders.MaxPerProspect <= 0 {
		return fmt.Errorf("reminders.max_per_prospect must be positive")
	}
	if c.Ordering.Increment <= 0 {
		return fmt.Errorf("ordering.increment must be positive")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
