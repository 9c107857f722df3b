package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Suggest SuggestConfig `mapstructure:"suggest"`
	History HistoryConfig `mapstructure:"history"`
}

type EngineConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type SuggestConfig struct {
	PopularThreshold int     `mapstructure:"popular_threshold"`
	MaxResults       int     `mapstructure:"max_results"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`
	PopularityWeight float64 `mapstructure:"popularity_weight"`
	SimilarityWeight float64 `mapstructure:"similarity_weight"`
}

type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// TTL returns the cache TTL as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Retention returns the history retention window as a duration
func (c HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultLimit: 200,
		},
		Cache: CacheConfig{
			MaxEntries: 100,
			TTLSeconds: 300,
		},
		Suggest: SuggestConfig{
			PopularThreshold: 3,
			MaxResults:       10,
			RecencyWeight:    0.3,
			PopularityWeight: 0.4,
			SimilarityWeight: 0.3,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          "history.db",
			RetentionDays: 30,
		},
	}
}

// Load loads configuration from files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// config paths in priority order
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "kioskquery"))
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("engine.default_limit", 200)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("suggest.popular_threshold", 3)
	v.SetDefault("suggest.max_results", 10)
	v.SetDefault("suggest.recency_weight", 0.3)
	v.SetDefault("suggest.popularity_weight", 0.4)
	v.SetDefault("suggest.similarity_weight", 0.3)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.retention_days", 30)

	// missing config file is fine, defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath returns the user config directory path
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "kioskquery"), nil
}
