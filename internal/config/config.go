// Package config provides configuration management for the ingest service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the ingest service configuration.
type Config struct {
	Kafka    KafkaConfig    `yaml:"kafka"`
	Registry RegistryConfig `yaml:"registry"`
	Delta    DeltaConfig    `yaml:"delta"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// KafkaConfig represents message bus consumer configuration.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	// FullName is the fully-qualified Protobuf message name the registry
	// schema for Topic projects to (e.g. "example.Order").
	FullName string `yaml:"full_name"`
}

// RegistryConfig represents schema registry client configuration.
type RegistryConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// CacheSize bounds the compiled-schema memoization layer (see
	// internal/registrycache); zero means unbounded.
	CacheSize int `yaml:"cache_size"`
}

// DeltaConfig represents the target Delta table configuration.
type DeltaConfig struct {
	TablePath string `yaml:"table_path"`
	TableName string `yaml:"table_name"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // not read: cmd/ingest always logs JSON
}

// MetricsConfig represents the metrics HTTP listener configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "kafka-delta-proto-ingest",
		},
		Registry: RegistryConfig{
			CacheSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INGEST_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("INGEST_KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("INGEST_KAFKA_CONSUMER_GROUP"); v != "" {
		c.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("INGEST_KAFKA_FULL_NAME"); v != "" {
		c.Kafka.FullName = v
	}
	if v := os.Getenv("INGEST_REGISTRY_URL"); v != "" {
		c.Registry.URL = v
	}
	if v := os.Getenv("INGEST_REGISTRY_USERNAME"); v != "" {
		c.Registry.Username = v
	}
	if v := os.Getenv("INGEST_REGISTRY_PASSWORD"); v != "" {
		c.Registry.Password = v
	}
	if v := os.Getenv("INGEST_REGISTRY_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Registry.CacheSize = n
		}
	}
	if v := os.Getenv("INGEST_DELTA_TABLE_PATH"); v != "" {
		c.Delta.TablePath = v
	}
	if v := os.Getenv("INGEST_DELTA_TABLE_NAME"); v != "" {
		c.Delta.TableName = v
	}
	if v := os.Getenv("INGEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INGEST_METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}
	if v := os.Getenv("INGEST_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if c.Kafka.FullName == "" {
		return fmt.Errorf("kafka full_name (the topic's top-level message type) is required")
	}
	if c.Registry.URL == "" {
		return fmt.Errorf("registry url is required")
	}
	if c.Registry.CacheSize < 0 {
		return fmt.Errorf("registry cache size must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
