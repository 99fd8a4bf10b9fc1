// Package postgres provides a GORM DBProvider implementation for PostgreSQL databases.
package postgres

import (
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	dbconfig "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/config"
	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// init registers the PostgreSQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("postgres", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, errors.New("postgres host and database must not be empty")
		}
		p := &gormadapter.PostgresDBProvider{}
		return postgres.Open(p.ConnectionString(cfg)), nil
	})
}

// NewProvider creates a new PostgreSQL DBProvider.
// This function is intended to be used with fx.Provide.
func NewProvider(cfg *config.Config) adapter.DBProvider {
	return gormadapter.NewPostgresProvider(cfg)
}
