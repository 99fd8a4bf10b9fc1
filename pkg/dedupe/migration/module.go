package migration

import (
	"go.uber.org/fx"

	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// NewMetadataMigrator builds the migrator for the run repository connection.
func NewMetadataMigrator(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (Migrator, error) {
	conn, err := resolver.Resolve(cfg.Dedupe.Infrastructure.RunRepositoryDBRef)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn), nil
}

// Module exports the schema migrator for dependency injection.
var Module = fx.Options(
	fx.Provide(NewMetadataMigrator),
)
