// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/config"
	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// init registers the SQLite dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("sqlite database path cannot be empty")
		}
		p := &gormadapter.SQLiteDBProvider{}
		return sqlite.Open(p.ConnectionString(cfg)), nil
	})
}

// NewProvider creates a new SQLite DBProvider.
// This function is intended to be used with fx.Provide.
func NewProvider(cfg *config.Config) adapter.DBProvider {
	return gormadapter.NewSQLiteProvider(cfg)
}
