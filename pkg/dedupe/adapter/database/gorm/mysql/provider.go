// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"errors"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/config"
	gormadapter "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm"
	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	"github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// init registers the MySQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, errors.New("mysql host and database must not be empty")
		}
		p := &gormadapter.MySQLDBProvider{}
		return mysql.Open(p.ConnectionString(cfg)), nil
	})
}

// NewProvider creates a new MySQL DBProvider.
// This function is intended to be used with fx.Provide.
func NewProvider(cfg *config.Config) adapter.DBProvider {
	return gormadapter.NewMySQLProvider(cfg)
}
