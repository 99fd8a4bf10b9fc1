package recordstore

import (
	"go.uber.org/fx"

	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
	"github.com/tidemill/dedupe/pkg/dedupe/core/port"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// NewSQLRecordStoreProvider resolves the record store connection and builds
// the store over it. The connection name comes from dedupe.record_store.db_ref.
func NewSQLRecordStoreProvider(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (*SQLRecordStore, error) {
	ref := cfg.Dedupe.RecordStore.DBRef
	logger.Debugf("resolving record store connection '%s'", ref)

	conn, err := resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return NewSQLRecordStore(conn.GetGormDB(), cfg.Dedupe.RecordStore), nil
}

// NewAccessCheckerProvider builds the checker from the record store settings.
func NewAccessCheckerProvider(cfg *config.Config) port.AccessChecker {
	return NewConfigAccessChecker(cfg.Dedupe.RecordStore)
}

// Module exports the SQL record store for dependency injection. The store
// satisfies both the record gateway and schema introspection contracts.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewSQLRecordStoreProvider, fx.As(new(port.RecordStore)), fx.As(new(port.SchemaIntrospector))),
		NewAccessCheckerProvider,
	),
)
