package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Expected brokers [localhost:9092], got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.ConsumerGroup != "kafka-delta-proto-ingest" {
		t.Errorf("Expected consumer group kafka-delta-proto-ingest, got %s", cfg.Kafka.ConsumerGroup)
	}
	if cfg.Registry.CacheSize != 256 {
		t.Errorf("Expected cache size 256, got %d", cfg.Registry.CacheSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level info, got %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9090" {
		t.Errorf("Expected metrics enabled on :9090, got enabled=%v addr=%s", cfg.Metrics.Enabled, cfg.Metrics.Address)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Kafka.Topic = "orders"
		cfg.Kafka.FullName = "example.Order"
		cfg.Registry.URL = "http://localhost:8081"
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default",
			cfg:     valid(),
			wantErr: false,
		},
		{
			name: "missing topic",
			cfg: func() *Config {
				c := valid()
				c.Kafka.Topic = ""
				return c
			}(),
			wantErr: true,
		},
		{
			name: "no brokers",
			cfg: func() *Config {
				c := valid()
				c.Kafka.Brokers = nil
				return c
			}(),
			wantErr: true,
		},
		{
			name: "missing full name",
			cfg: func() *Config {
				c := valid()
				c.Kafka.FullName = ""
				return c
			}(),
			wantErr: true,
		},
		{
			name: "missing registry url",
			cfg: func() *Config {
				c := valid()
				c.Registry.URL = ""
				return c
			}(),
			wantErr: true,
		},
		{
			name: "negative cache size",
			cfg: func() *Config {
				c := valid()
				c.Registry.CacheSize = -1
				return c
			}(),
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: func() *Config {
				c := valid()
				c.Logging.Level = "verbose"
				return c
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("INGEST_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	os.Setenv("INGEST_KAFKA_TOPIC", "events")
	os.Setenv("INGEST_KAFKA_FULL_NAME", "example.Event")
	os.Setenv("INGEST_REGISTRY_URL", "http://registry:8081")
	os.Setenv("INGEST_REGISTRY_CACHE_SIZE", "512")
	os.Setenv("INGEST_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("INGEST_KAFKA_BROKERS")
		os.Unsetenv("INGEST_KAFKA_TOPIC")
		os.Unsetenv("INGEST_KAFKA_FULL_NAME")
		os.Unsetenv("INGEST_REGISTRY_URL")
		os.Unsetenv("INGEST_REGISTRY_CACHE_SIZE")
		os.Unsetenv("INGEST_LOG_LEVEL")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker1:9092" {
		t.Errorf("Expected brokers [broker1:9092 broker2:9092], got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "events" {
		t.Errorf("Expected topic events, got %s", cfg.Kafka.Topic)
	}
	if cfg.Registry.URL != "http://registry:8081" {
		t.Errorf("Expected registry url http://registry:8081, got %s", cfg.Registry.URL)
	}
	if cfg.Registry.CacheSize != 512 {
		t.Errorf("Expected cache size 512, got %d", cfg.Registry.CacheSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
}
