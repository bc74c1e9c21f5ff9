package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// UserConfig represents ~/.mdstore/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile represents a single named configuration profile.
type Profile struct {
	Backend     string `yaml:"backend,omitempty"`
	Path        string `yaml:"path,omitempty"`
	DSN         string `yaml:"dsn,omitempty"`
	RedisAddr   string `yaml:"redis-addr,omitempty"`
	RedisPrefix string `yaml:"redis-prefix,omitempty"`
	TableBits   int    `yaml:"table-bits,omitempty"`
	ColumnBits  int    `yaml:"column-bits,omitempty"`
	Output      string `yaml:"output,omitempty"`
}

// env returns the profile as the environment variables it stands in for.
func (p Profile) env() map[string]string {
	m := map[string]string{
		"MDSTORE_BACKEND":      p.Backend,
		"MDSTORE_PATH":         p.Path,
		"MDSTORE_DSN":          p.DSN,
		"MDSTORE_REDIS_ADDR":   p.RedisAddr,
		"MDSTORE_REDIS_PREFIX": p.RedisPrefix,
	}
	if p.TableBits != 0 {
		m["MDSTORE_TABLE_BITS"] = strconv.Itoa(p.TableBits)
	}
	if p.ColumnBits != 0 {
		m["MDSTORE_COLUMN_BITS"] = strconv.Itoa(p.ColumnBits)
	}
	return m
}

// ActiveProfile returns the profile to use based on the override or current-profile.
func (c *UserConfig) ActiveProfile(override string) Profile {
	name := c.CurrentProfile
	if override != "" {
		name = override
	}
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	return Profile{}
}

// ConfigDir returns the path to ~/.mdstore/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mdstore")
}

// ConfigPath returns the path to ~/.mdstore/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.mdstore/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// SaveUserConfig writes ~/.mdstore/config.yaml.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
