package gorm

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	dbconfig "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/config"
	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// ConnectionResolver resolves logical connection names to established
// connections by routing each name to the provider matching its configured
// database type.
type ConnectionResolver struct {
	cfg       *config.Config
	providers map[string]adapter.DBProvider
}

// NewConnectionResolver creates a resolver over the registered providers.
func NewConnectionResolver(cfg *config.Config, providers []adapter.DBProvider) *ConnectionResolver {
	byType := make(map[string]adapter.DBProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &ConnectionResolver{cfg: cfg, providers: byType}
}

// Resolve returns the connection registered under the logical name.
func (r *ConnectionResolver) Resolve(name string) (adapter.DBConnection, error) {
	rawConfig, ok := r.cfg.Dedupe.AdaptorConfigs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	}
	var dbConfig dbconfig.DatabaseConfig
	if err := mapstructure.Decode(rawConfig, &dbConfig); err != nil {
		return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}

	provider, ok := r.providers[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("no provider registered for database type '%s' (connection '%s')", dbConfig.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes every connection of every registered provider.
func (r *ConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
