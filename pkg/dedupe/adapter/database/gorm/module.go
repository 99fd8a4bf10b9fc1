package gorm

import (
	"go.uber.org/fx"

	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// ResolverParams defines the dependencies for NewConnectionResolverProvider.
type ResolverParams struct {
	fx.In
	Cfg       *config.Config
	Providers []adapter.DBProvider `group:"db_providers"`
}

// NewConnectionResolverProvider assembles the resolver from every provider
// registered in the "db_providers" group.
func NewConnectionResolverProvider(p ResolverParams) *ConnectionResolver {
	return NewConnectionResolver(p.Cfg, p.Providers)
}

// Module exports the gorm adapter components for dependency injection.
// Concrete DBProviders are supplied by the application per enabled dialect.
var Module = fx.Options(
	fx.Provide(NewConnectionResolverProvider),
)
