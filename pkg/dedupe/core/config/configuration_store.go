package config

import (
	"context"

	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	port "github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/exception"
)

// YamlConfigurationStore resolves named run configurations from the loaded
// application configuration.
type YamlConfigurationStore struct {
	configurations map[string]model.RunConfiguration
}

// NewYamlConfigurationStore creates a store over the configurations section.
func NewYamlConfigurationStore(cfg *Config) *YamlConfigurationStore {
	return &YamlConfigurationStore{configurations: cfg.Dedupe.Configurations}
}

// Resolve returns a copy of the configuration stored under name with the
// configuration name stamped on it.
func (s *YamlConfigurationStore) Resolve(ctx context.Context, name string) (*model.RunConfiguration, error) {
	stored, ok := s.configurations[name]
	if !ok {
		return nil, exception.NewNotFoundError("config", "run configuration '%s' not found", name)
	}
	resolved := stored
	resolved.ConfigurationName = name
	return &resolved, nil
}

var _ port.ConfigurationStore = (*YamlConfigurationStore)(nil)
