// Package config provides configuration loading and hot-reload for the
// thinker service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/thinker/model"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	NATS      NATSConfig           `yaml:"nats"`
	Models    model.RegistryConfig `yaml:"models"`
	Pipeline  PipelineConfig       `yaml:"pipeline"`
	Ingestion IngestionConfig      `yaml:"ingestion"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr"`
	// Heartbeat is the SSE/WebSocket keepalive interval (e.g. "15s").
	Heartbeat string `yaml:"heartbeat"`
}

// HeartbeatInterval returns the parsed heartbeat duration.
func (c *ServerConfig) HeartbeatInterval() time.Duration {
	if c.Heartbeat == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// NATSConfig configures the NATS connection backing durable storage.
type NATSConfig struct {
	// URL is the NATS server URL (empty = in-memory storage, no durability).
	URL string `yaml:"url"`
}

// PipelineConfig configures execution behavior.
type PipelineConfig struct {
	// IterationFloor is the minimum execution-loop iteration budget.
	IterationFloor int `yaml:"iteration_floor"`
}

// IngestionConfig configures web-document ingestion.
type IngestionConfig struct {
	// Enabled controls whether the /api/ingest endpoint is served.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			Heartbeat: "15s",
		},
		NATS: NATSConfig{
			URL: "",
		},
		Pipeline: PipelineConfig{
			IterationFloor: 10,
		},
		Ingestion: IngestionConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Heartbeat != "" {
		if _, err := time.ParseDuration(c.Server.Heartbeat); err != nil {
			return fmt.Errorf("server.heartbeat is not a duration: %w", err)
		}
	}
	if c.Pipeline.IterationFloor < 0 {
		return fmt.Errorf("pipeline.iteration_floor must not be negative")
	}
	for name, ep := range c.Models.Endpoints {
		if ep.Provider == "" {
			return fmt.Errorf("models.endpoints.%s: provider is required", name)
		}
		if ep.Model == "" {
			return fmt.Errorf("models.endpoints.%s: model is required", name)
		}
	}
	return nil
}

// Load reads a YAML config file, expands ${VAR} environment references, and
// overlays it on the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
