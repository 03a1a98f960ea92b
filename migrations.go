package booknotify

import "embed"

// MigrationFiles holds the wishlist and dead-letter schema, one directory per
// database driver: migrations/mysql, migrations/postgres and
// migrations/sqlite3. The files carry goose annotations; relica.Migrate
// applies them.
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

// MigrationsDir returns the embedded directory holding the migrations for driverName.
func MigrationsDir(driverName string) string {
	return "migrations/" + driverName
}
