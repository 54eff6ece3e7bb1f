// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file; the file wins over
// defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Sync backends
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// DefaultPath is read when COURTSIDE_CONFIG is not set
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Sync      SyncConfig      `yaml:"sync"`
	NATS      NATSConfig      `yaml:"nats"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Offline   OfflineConfig   `yaml:"offline"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"COURTSIDE_SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"COURTSIDE_LOG_LEVEL"`
}

type SyncConfig struct {
	Backend         string `yaml:"backend" env:"COURTSIDE_SYNC_BACKEND"`
	DocumentKey     string `yaml:"document_key" env:"COURTSIDE_DOCUMENT_KEY"`
	MaxPushAttempts int    `yaml:"max_push_attempts" env:"COURTSIDE_MAX_PUSH_ATTEMPTS"`
}

type NATSConfig struct {
	URL    string `yaml:"url" env:"NATS_URL"`
	Bucket string `yaml:"bucket" env:"COURTSIDE_NATS_BUCKET"`
}

type DynamoDBConfig struct {
	Region       string        `yaml:"region" env:"AWS_REGION"`
	Table        string        `yaml:"table" env:"COURTSIDE_DYNAMODB_TABLE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"COURTSIDE_DYNAMODB_POLL_INTERVAL"`
}

type OfflineConfig struct {
	// CachePath is the SQLite snapshot file; empty disables the cache
	CachePath string `yaml:"cache_path" env:"COURTSIDE_OFFLINE_CACHE"`
}

type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector URL; empty disables tracing
	Endpoint    string `yaml:"endpoint" env:"COURTSIDE_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"COURTSIDE_OTEL_SERVICE_NAME"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Sync: SyncConfig{
			Backend:         BackendMemory,
			DocumentKey:     "matches",
			MaxPushAttempts: 3,
		},
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Bucket: "courtside",
		},
		DynamoDB: DynamoDBConfig{
			Region:       "us-east-1",
			Table:        "courtside_boards",
			PollInterval: 2 * time.Second,
		},
		Offline: OfflineConfig{CachePath: "courtside-cache.db"},
		Telemetry: TelemetryConfig{
			ServiceName: "courtside",
		},
	}
}

// Load reads path (a missing file is not an error) and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path returns the config file location from COURTSIDE_CONFIG
func Path() string {
	if p := os.Getenv("COURTSIDE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// ParseEnv applies env-tagged fields onto target
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks settings that would otherwise fail late
func (c Config) Validate() error {
	switch c.Sync.Backend {
	case BackendMemory, BackendNATS, BackendPostgres, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown sync backend %q", c.Sync.Backend)
	}
	if c.Sync.DocumentKey == "" {
		return errors.New("sync document key is required")
	}
	if c.Sync.MaxPushAttempts < 1 {
		return fmt.Errorf("max push attempts must be at least 1, got %d", c.Sync.MaxPushAttempts)
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	return nil
}
