// Package adapter defines the database adapter contracts consumed by the
// persistence layer.
package adapter

import (
	"database/sql"

	"gorm.io/gorm"

	dbconfig "github.com/tidemill/dedupe/pkg/dedupe/adapter/database/config"
)

// DBProviderGroup is the Fx value group collecting the enabled database
// providers. The application registers one provider per enabled dialect.
const DBProviderGroup = "db_providers"

// DBConnection is one named, established database connection.
type DBConnection interface {
	// GetGormDB returns the underlying GORM handle.
	GetGormDB() *gorm.DB

	// GetSQLDB returns the underlying sql.DB handle.
	GetSQLDB() (*sql.DB, error)

	// Close releases the connection.
	Close() error

	// Type returns the database type (e.g., "postgres", "mysql", "sqlite").
	Type() string

	// Name returns the logical connection name (e.g., "metadata").
	Name() string

	// Config returns the configuration the connection was opened with.
	Config() dbconfig.DatabaseConfig
}

// DBProvider establishes and caches connections of one database type.
type DBProvider interface {
	// Type returns the database type this provider handles.
	Type() string

	// GetConnection retrieves an existing connection by logical name or
	// establishes a new one.
	GetConnection(name string) (DBConnection, error)

	// CloseAll closes every connection managed by this provider.
	CloseAll() error
}
