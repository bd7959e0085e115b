// Package config handles loading and validation of application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samcm/lavafries/internal/node"
	"github.com/samcm/lavafries/internal/player"
	"github.com/samcm/lavafries/internal/queue"
)

// Config represents the complete application configuration.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Nodes   []NodeConfig  `yaml:"nodes"`
	Player  PlayerConfig  `yaml:"player"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token          string        `yaml:"token"`
	Prefix         string        `yaml:"prefix"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// NodeConfig describes one audio node.
type NodeConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	Secure         bool          `yaml:"secure"`
	RetryAmount    int           `yaml:"retry_amount"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PlayerConfig holds the defaults of new sessions.
type PlayerConfig struct {
	Volume      int  `yaml:"volume"`
	SkipOnError bool `yaml:"skip_on_error"`
	RepeatTrack bool `yaml:"repeat_track"`
	RepeatQueue bool `yaml:"repeat_queue"`
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration from the given file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applying defaults before validation.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		// Set defaults
		Discord: DiscordConfig{
			Prefix:         "!",
			UpdateInterval: 15 * time.Second,
		},
		Player: PlayerConfig{
			Volume:      player.DefaultVolume,
			SkipOnError: true,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for i := range cfg.Nodes {
		cfg.Nodes[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (n *NodeConfig) applyDefaults() {
	if n.Port == 0 {
		n.Port = 2333
	}

	if n.RetryAmount == 0 {
		n.RetryAmount = node.DefaultRetryAmount
	}

	if n.RetryDelay == 0 {
		n.RetryDelay = node.DefaultRetryDelay
	}

	if n.RequestTimeout == 0 {
		n.RequestTimeout = node.DefaultRequestTimeout
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}

	if c.Discord.Prefix == "" {
		return fmt.Errorf("discord.prefix must not be empty")
	}

	if c.Discord.UpdateInterval < 5*time.Second {
		return fmt.Errorf("discord.update_interval must be at least 5s")
	}

	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	seen := make(map[string]bool, len(c.Nodes))

	for i, n := range c.Nodes {
		if err := n.Options().Validate(); err != nil {
			return fmt.Errorf("nodes[%d]: %w", i, err)
		}

		if seen[n.Host] {
			return fmt.Errorf("nodes[%d]: duplicate host %q", i, n.Host)
		}

		seen[n.Host] = true
	}

	if c.Player.Volume < player.MinVolume || c.Player.Volume > player.MaxVolume {
		return fmt.Errorf("player.volume must be between %d and %d", player.MinVolume, player.MaxVolume)
	}

	if c.Player.RepeatTrack && c.Player.RepeatQueue {
		return fmt.Errorf("player.repeat_track and player.repeat_queue are mutually exclusive")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}

	return nil
}

// Options converts the node entry to connection options.
func (n NodeConfig) Options() node.Options {
	return node.Options{
		Host:           n.Host,
		Port:           n.Port,
		Password:       n.Password,
		Secure:         n.Secure,
		RetryAmount:    n.RetryAmount,
		RetryDelay:     n.RetryDelay,
		RequestTimeout: n.RequestTimeout,
	}
}

// NodeOptions returns the connection options of every node.
func (c *Config) NodeOptions() []node.Options {
	out := make([]node.Options, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		out = append(out, n.Options())
	}

	return out
}

// QueueOptions returns the queue flags of new sessions.
func (p PlayerConfig) QueueOptions() queue.Options {
	return queue.Options{
		RepeatTrack: p.RepeatTrack,
		RepeatQueue: p.RepeatQueue,
		SkipOnError: p.SkipOnError,
	}
}
