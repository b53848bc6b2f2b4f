package ecs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config controls world construction. The zero value is usable; YAML keys
// cover the fields that make sense in a config file.
type Config struct {
	// InitialCapacity pre-sizes the entity index.
	InitialCapacity int `yaml:"initial_capacity"`
	// Checked enables precondition validation at API boundaries. When off,
	// precondition violations are contract violations.
	Checked bool `yaml:"checked"`
	// LogLevel builds a production logger at the given level when Logger
	// is not set. Empty disables logging.
	LogLevel string `yaml:"log_level"`

	// Logger overrides LogLevel when non-nil.
	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the configuration used by NewWorld.
func DefaultConfig() Config {
	return Config{
		InitialCapacity: 1024,
		Checked:         true,
	}
}

// LoadConfig parses a YAML config document on top of the defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LogLevel != "" {
		if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
			return Config{}, fmt.Errorf("log_level %q: %w", cfg.LogLevel, err)
		}
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML config file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return LoadConfig(data)
}

func (cfg Config) logger() *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.LogLevel == "" {
		return zap.NewNop()
	}
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zap.NewNop()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
