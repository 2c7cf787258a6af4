package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"govorilka/internal/wire"
)

// Config drives the chat client binary.
type Config struct {
	RelayURL          string        `envconfig:"RELAY_URL" default:"ws://localhost:8090/ws"`
	Channel           string        `envconfig:"CHANNEL" default:"chatengine-demo-chat"`
	Identity          string        `envconfig:"IDENTITY"`
	Codec             string        `envconfig:"CODEC" default:"json"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"6s"`
	PublishKey        string        `envconfig:"PUBLISH_KEY"`
	SubscribeKey      string        `envconfig:"SUBSCRIBE_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("govorilka", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := wire.CodecByName(c.Codec); err != nil {
		return err
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("GOVORILKA_HEARTBEAT_INTERVAL must be greater than 0")
	}
	return nil
}

// Relay drives the relayd binary.
type Relay struct {
	Addr          string        `envconfig:"ADDR" default:"localhost:8090"`
	HeartbeatTTL  time.Duration `envconfig:"HEARTBEAT_TTL" default:"18s"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"6s"`
}

func LoadRelay() (*Relay, error) {
	var cfg Relay
	if err := envconfig.Process("relay", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Relay) Validate() error {
	if c.HeartbeatTTL <= 0 {
		return fmt.Errorf("RELAY_HEARTBEAT_TTL must be greater than 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("RELAY_SWEEP_INTERVAL must be greater than 0")
	}
	return nil
}
