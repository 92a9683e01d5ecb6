// Package config loads system configuration from YAML, merged over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	kerneldomain "github.com/cortexos/cortex-go/internal/domain/kernel"
	routingdomain "github.com/cortexos/cortex-go/internal/domain/routing"
)

// Config is the full system configuration.
type Config struct {
	Kernel  KernelConfig  `yaml:"kernel"`
	Router  RouterConfig  `yaml:"router"`
	Journal JournalConfig `yaml:"journal"`
	Logging LoggingConfig `yaml:"logging"`
}

// KernelConfig configures the primitive registry.
type KernelConfig struct {
	AutoStart      bool  `yaml:"auto_start"`
	Tracing        bool  `yaml:"tracing"`
	MaxConcurrency int   `yaml:"max_concurrency"`
	CallTimeoutMs  int64 `yaml:"call_timeout_ms"`
	HistorySize    int   `yaml:"history_size"`
}

// RouterConfig configures the cascade router.
type RouterConfig struct {
	DefaultConfidenceThreshold float64 `yaml:"default_confidence_threshold"`
	LearningRate               float64 `yaml:"learning_rate"`
	DepthAwareRouting          bool    `yaml:"depth_aware_routing"`
	MaxCascadeDepth            int     `yaml:"max_cascade_depth"`
	MaxConcurrentRoutes        int     `yaml:"max_concurrent_routes"`
	DecisionHistorySize        int     `yaml:"decision_history_size"`
}

// JournalConfig configures the SQLite event journal.
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() Config {
	registry := kerneldomain.DefaultRegistryConfig()
	router := routingdomain.DefaultRouterConfig()
	return Config{
		Kernel: KernelConfig{
			AutoStart:      registry.AutoStart,
			Tracing:        registry.Tracing,
			MaxConcurrency: registry.MaxConcurrency,
			CallTimeoutMs:  registry.CallTimeout.Milliseconds(),
			HistorySize:    registry.HistorySize,
		},
		Router: RouterConfig{
			DefaultConfidenceThreshold: router.DefaultConfidenceThreshold,
			LearningRate:               router.LearningRate,
			DepthAwareRouting:          router.DepthAwareRouting,
			MaxCascadeDepth:            router.MaxCascadeDepth,
			MaxConcurrentRoutes:        router.MaxConcurrentRoutes,
			DecisionHistorySize:        router.DecisionHistorySize,
		},
		Journal: JournalConfig{
			Enabled:      false,
			DatabasePath: ".data/journal.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Save writes the configuration to a YAML file, creating directories as
// needed.
func Save(config Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Kernel.MaxConcurrency <= 0 {
		return fmt.Errorf("kernel.max_concurrency must be positive, got %d", c.Kernel.MaxConcurrency)
	}
	if c.Kernel.CallTimeoutMs <= 0 {
		return fmt.Errorf("kernel.call_timeout_ms must be positive, got %d", c.Kernel.CallTimeoutMs)
	}
	if c.Kernel.HistorySize <= 0 {
		return fmt.Errorf("kernel.history_size must be positive, got %d", c.Kernel.HistorySize)
	}
	if c.Router.DefaultConfidenceThreshold < 0 || c.Router.DefaultConfidenceThreshold > 1 {
		return fmt.Errorf("router.default_confidence_threshold must be in [0,1], got %v", c.Router.DefaultConfidenceThreshold)
	}
	if c.Router.LearningRate <= 0 || c.Router.LearningRate > 1 {
		return fmt.Errorf("router.learning_rate must be in (0,1], got %v", c.Router.LearningRate)
	}
	if c.Router.MaxCascadeDepth <= 0 {
		return fmt.Errorf("router.max_cascade_depth must be positive, got %d", c.Router.MaxCascadeDepth)
	}
	if c.Router.MaxConcurrentRoutes <= 0 {
		return fmt.Errorf("router.max_concurrent_routes must be positive, got %d", c.Router.MaxConcurrentRoutes)
	}
	if c.Router.DecisionHistorySize <= 0 {
		return fmt.Errorf("router.decision_history_size must be positive, got %d", c.Router.DecisionHistorySize)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// RegistryConfig converts the kernel section to the registry's config type.
func (c Config) RegistryConfig() kerneldomain.RegistryConfig {
	return kerneldomain.RegistryConfig{
		AutoStart:      c.Kernel.AutoStart,
		Tracing:        c.Kernel.Tracing,
		MaxConcurrency: c.Kernel.MaxConcurrency,
		CallTimeout:    time.Duration(c.Kernel.CallTimeoutMs) * time.Millisecond,
		HistorySize:    c.Kernel.HistorySize,
	}
}

// RouterConfig converts the router section to the router's config type.
func (c Config) RouterConfig() routingdomain.RouterConfig {
	return routingdomain.RouterConfig{
		DefaultConfidenceThreshold: c.Router.DefaultConfidenceThreshold,
		LearningRate:               c.Router.LearningRate,
		DepthAwareRouting:          c.Router.DepthAwareRouting,
		MaxCascadeDepth:            c.Router.MaxCascadeDepth,
		MaxConcurrentRoutes:        c.Router.MaxConcurrentRoutes,
		DecisionHistorySize:        c.Router.DecisionHistorySize,
	}
}

// BuildLogger constructs a zap logger from the logging section.
func (c Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.Logging.Level, err)
	}

	var zapConfig zap.Config
	if c.Logging.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
