// Package config loads run configuration from YAML.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds global configuration for ingestion and retrieval.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "voyage"
	Model    string `yaml:"model"`    // "voyage-code-3"
}

type StorageConfig struct {
	QdrantURL  string `yaml:"qdrant_url"`
	RedisURL   string `yaml:"redis_url"` // empty disables the seen cache
	Collection string `yaml:"collection"`
}

type PipelineConfig struct {
	Workers          int      `yaml:"workers"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	EmbedBatchSize   int      `yaml:"embed_batch_size"`
	RetryAttempts    int      `yaml:"retry_attempts"`
	RetryBaseMs      int      `yaml:"retry_base_ms"`
	RetryMaxMs       int      `yaml:"retry_max_ms"`
	Include          []string `yaml:"include"`
	Exclude          []string `yaml:"exclude"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // error|warn|info|debug
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "voyage",
			Model:    "voyage-code-3",
		},
		Storage: StorageConfig{
			QdrantURL:  "localhost",
			RedisURL:   "redis://localhost:6379",
			Collection: "chunks",
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			EmbedConcurrency: 2,
			EmbedBatchSize:   128,
			RetryAttempts:    4,
			RetryBaseMs:      250,
			RetryMaxMs:       5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads config from file, or returns defaults when the file does
// not exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
