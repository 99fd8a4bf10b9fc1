package migration

import "embed"

//go:embed sql/postgres/*.sql sql/mysql/*.sql sql/sqlite/*.sql
var migrationFiles embed.FS
