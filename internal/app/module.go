package app

import (
	gormmysql "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm/mysql"
	gormpostgres "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm/postgres"
	gormsqlite "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/gorm/sqlite"
	"github.com/tidemill/dedupe/pkg/dedupe/core/adapter"
	config "github.com/tidemill/dedupe/pkg/dedupe/core/config"
)

// DBProviderMap is used by main.go to dynamically select database providers.
var DBProviderMap = map[string]func(cfg *config.Config) adapter.DBProvider{
	"postgres": gormpostgres.NewProvider,
	"redshift": gormpostgres.NewProvider,
	"mysql":    gormmysql.NewProvider,
	"sqlite":   gormsqlite.NewProvider,
}
