// Package config provides configuration structures and loading utilities for the dedupe engine.
// This file defines Fx providers for configuration-related components.
package config

import (
	"go.uber.org/fx"

	port "github.com/tidemill/dedupe/pkg/dedupe/core/port"
)

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
// This allows other Fx components to depend only on the logging configuration.
//
// Parameters:
//
//	cfg: The main application configuration.
//
// Returns:
//
//	A pointer to the LoggingConfig.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Dedupe.System.Logging
}

// Module provides configuration-related components to Fx.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(fx.Annotate(NewYamlConfigurationStore, fx.As(new(port.ConfigurationStore)))),
)
