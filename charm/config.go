// ABOUTME: Sync settings for the offline prospect board kept in Charm KV
// ABOUTME: Read by `spruce sync` and the app wiring; stored as JSON next to the board data

package charm

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/charm/kv"
)

const (
	DefaultCharmHost = "charm.2389.dev"

	// AppName is the KV database name and the directory under the XDG data home.
	AppName = "spruce"

	ConfigFileName = "charm-config.json"
)

// ErrEmptyHost rejects `spruce sync host ""`.
var ErrEmptyHost = errors.New("sync host must not be empty")

// Config controls how the offline board syncs with a charm server. A missing file
// means the defaults: the shared host, auto-sync on.
type Config struct {
	Host string `json:"host,omitempty"`

	// AutoSync pushes prospect and reminder writes to the server as they happen.
	// When off, `spruce sync now` is the only way data leaves this machine.
	AutoSync bool `json:"auto_sync"`

	// StaleThreshold bounds how old the local board may be before a read pulls first.
	StaleThreshold time.Duration `json:"stale_threshold,omitempty"`

	path string
}

func DefaultConfig() *Config {
	c := &Config{AutoSync: true}
	c.fill()
	return c
}

// DefaultConfigPath is $XDG_DATA_HOME/spruce/charm-config.json.
func DefaultConfigPath() string {
	return filepath.Join(xdg.DataHome, AppName, ConfigFileName)
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigPath())
}

// LoadConfigFrom reads the sync settings at path. A missing file gives defaults, and so
// does a corrupt one, so a bad edit never locks the board out of its data.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, nil
	case err != nil:
		return nil, err
	}

	var stored Config
	if err := json.Unmarshal(data, &stored); err != nil {
		return cfg, nil
	}
	stored.path = path
	stored.fill()
	return &stored, nil
}

// fill replaces blank fields with defaults.
func (c *Config) fill() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultCharmHost
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = kv.DefaultStaleThreshold
	}
}

// Save writes the settings back to where they were loaded from, creating the
// spruce data directory on first use.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SetHost points sync at another charm server. The new host takes effect the next
// time the board is opened.
func (c *Config) SetHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return ErrEmptyHost
	}
	c.Host = host
	return c.Save()
}

func (c *Config) SetAutoSync(enabled bool) error {
	c.AutoSync = enabled
	return c.Save()
}
