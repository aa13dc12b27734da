// Package config loads store configuration from defaults, a YAML file
// and environment variable overrides, in that order.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("lazyscribe.yaml").
//	    WithEnvPrefix("LAZYSCRIBE").
//	    Load()
package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lazyscribe/lazyscribe-go/storage"
)

// Config is the complete store configuration.
type Config struct {
	// Location is the metadata document location, optionally prefixed
	// with a storage scheme (file://, memory://, redis://).
	Location string `yaml:"location" env:"LOCATION"`

	// Mode is the open mode: r, a, w or w+.
	Mode string `yaml:"mode" env:"MODE"`

	// Author overrides the OS user recorded on new experiments.
	Author string `yaml:"author" env:"AUTHOR"`

	Log     LogConfig     `yaml:"log" env:"LOG"`
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`

	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Scheme is the backend to use when Location carries no scheme
	// prefix: file, memory or redis.
	Scheme string `yaml:"scheme" env:"SCHEME"`

	Redis storage.RedisConfig `yaml:"redis" env:"REDIS"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Location: "project.json",
		Mode:     "w",
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Storage: StorageConfig{
			Scheme: "file",
			Redis:  storage.DefaultRedisConfig(),
		},
	}
}

// Logger builds a zap logger from the log configuration.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(c.Log.OutputPaths) > 0 {
		zc.OutputPaths = c.Log.OutputPaths
	}
	return zc.Build()
}

// Backend builds the storage backend named by the configuration. A redis
// scheme dials the configured server; file and memory resolve through the
// backend registry.
func (c *Config) Backend() (storage.Backend, error) {
	if c.Storage.Scheme == "redis" {
		return storage.NewRedis(c.Storage.Redis)
	}
	return storage.ForScheme(c.Storage.Scheme)
}
