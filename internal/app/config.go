// Package app wires the Luu Kyone bot from its configuration.
package app

import (
	"fmt"
	"time"

	coreconfig "github.com/KyawPh/luu-kyone-bot-sub000/core/config"
	coredatabase "github.com/KyawPh/luu-kyone-bot-sub000/core/database"
	tgsender "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/sender"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/ops"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/schedule"
)

// SceneConfig tunes the conversation engine.
type SceneConfig struct {
	// IdleTimeout drops conversations nobody touched for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout" envconfig:"SCENE_IDLE_TIMEOUT"`
}

// SenderConfig tunes the outbound message queue.
type SenderConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

func (s SenderConfig) options() tgsender.Options {
	return tgsender.Options{
		QueueSize:    s.QueueSize,
		Workers:      s.Workers,
		MaxRetries:   s.MaxRetries,
		RetryBackoff: s.RetryBackoff,
	}
}

// Config is the full bot configuration: the core runtime settings plus the
// application sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Store    coredatabase.Config `yaml:"store"`
	Channel  channel.Config      `yaml:"channel"`
	Schedule schedule.Config     `yaml:"schedule"`
	Scene    SceneConfig         `yaml:"scene"`
	Events   events.Config       `yaml:"events"`
	Ops      ops.Config          `yaml:"ops"`
	Sender   SenderConfig        `yaml:"sender"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads path, overlays .env and the environment and validates
// every section.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the sections and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Store.Normalize(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Channel.Normalize(); err != nil {
		return err
	}
	if err := c.Schedule.Normalize(); err != nil {
		return err
	}
	if c.Scene.IdleTimeout < 0 {
		return fmt.Errorf("scene.idle_timeout must be >= 0")
	}
	if c.Scene.IdleTimeout == 0 {
		c.Scene.IdleTimeout = 30 * time.Minute
	}
	c.Events.Normalize()
	return nil
}
