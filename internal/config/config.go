// Package config loads the bot configuration from parrot.yaml and PARROT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bounds is a soft/hard pair of token counts.
type Bounds struct {
	Soft int `mapstructure:"soft"`
	Hard int `mapstructure:"hard"`
}

// Config is the full bot configuration.
type Config struct {
	Nickname  string   `mapstructure:"nickname"`
	Power     int      `mapstructure:"power"`
	Minimum   Bounds   `mapstructure:"minimum"`
	Maximum   Bounds   `mapstructure:"maximum"`
	Smoothing int      `mapstructure:"smoothing"`
	Fallback  string   `mapstructure:"fallback"`
	Data      string   `mapstructure:"data"`
	Logs      string   `mapstructure:"logs"`
	Backend   string   `mapstructure:"backend"`
	Channels  []string `mapstructure:"channels"`
	Blacklist []string `mapstructure:"blacklist"`

	TalkTimeout time.Duration `mapstructure:"talk_timeout"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("nickname", "parrot")
	v.SetDefault("power", 2)
	v.SetDefault("minimum.soft", 6)
	v.SetDefault("minimum.hard", 2)
	v.SetDefault("maximum.soft", 20)
	v.SetDefault("maximum.hard", 30)
	v.SetDefault("smoothing", 1)
	v.SetDefault("fallback", "...")
	v.SetDefault("data", "data")
	v.SetDefault("logs", "logs")
	v.SetDefault("backend", BackendFile)
	v.SetDefault("channels", []string{})
	v.SetDefault("blacklist", []string{})
	v.SetDefault("talk_timeout", 5*time.Second)
	v.SetDefault("metrics_addr", "")
}

// Load reads the config file at path, or searches ./parrot.yaml and
// $HOME/.parrot/parrot.yaml when path is empty. A missing file is only an
// error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PARROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("parrot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.parrot")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize lower-cases channel ids and always blacklists the bot itself.
func (c *Config) normalize() {
	seen := make(map[string]bool, len(c.Channels))
	channels := c.Channels[:0]
	for _, ch := range c.Channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	c.Channels = channels

	if c.Nickname != "" && !c.Blacklisted(c.Nickname) {
		c.Blacklist = append(c.Blacklist, c.Nickname)
	}
}

// Blacklisted reports whether sender's messages must not be learned.
func (c *Config) Blacklisted(sender string) bool {
	for _, b := range c.Blacklist {
		if b == sender {
			return true
		}
	}
	return false
}

// Validate checks the length thresholds and backend.
func (c *Config) Validate() error {
	switch {
	case c.Power < 1:
		return fmt.Errorf("power must be at least 1, got %d", c.Power)
	case c.Minimum.Hard < 0:
		return fmt.Errorf("minimum.hard must not be negative, got %d", c.Minimum.Hard)
	case c.Minimum.Hard > c.Minimum.Soft:
		return fmt.Errorf("minimum.hard (%d) exceeds minimum.soft (%d)", c.Minimum.Hard, c.Minimum.Soft)
	case c.Maximum.Soft > c.Maximum.Hard:
		return fmt.Errorf("maximum.soft (%d) exceeds maximum.hard (%d)", c.Maximum.Soft, c.Maximum.Hard)
	case c.Minimum.Hard > c.Maximum.Soft:
		return fmt.Errorf("minimum.hard (%d) exceeds maximum.soft (%d)", c.Minimum.Hard, c.Maximum.Soft)
	case c.Maximum.Hard < 1:
		return fmt.Errorf("maximum.hard must be at least 1, got %d", c.Maximum.Hard)
	case c.Maximum.Soft < c.Power-1:
		return fmt.Errorf("maximum.soft (%d) is shorter than a start window of %d words", c.Maximum.Soft, c.Power-1)
	case c.Smoothing < 0:
		return fmt.Errorf("smoothing must not be negative, got %d", c.Smoothing)
	}
	if c.Backend != BackendFile && c.Backend != BackendSQLite {
		return fmt.Errorf("unknown backend %q (use %s or %s)", c.Backend, BackendFile, BackendSQLite)
	}
	return nil
}
