package sql

import (
	"go.uber.org/fx"

	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
	repository "github.com/tidemill/dedupe/pkg/dedupe/core/domain/repository"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// NewRunRepositoryProvider resolves the metadata connection and builds the
// repository over it. The connection name comes from
// dedupe.infrastructure.run_repository_db_ref.
func NewRunRepositoryProvider(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (repository.RunRepository, error) {
	ref := cfg.Dedupe.Infrastructure.RunRepositoryDBRef
	logger.Debugf("resolving run repository connection '%s'", ref)

	conn, err := resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return NewGormRunRepository(conn.GetGormDB()), nil
}

// Module exports the SQL run repository for dependency injection. The one
// repository instance backs both the run bookkeeping reads/writes and the
// durable fingerprint accumulator.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewRunRepositoryProvider,
			fx.As(new(repository.RunRepository), new(repository.FingerprintBucketRepository)),
		),
	),
)
