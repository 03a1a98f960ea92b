package relica

import (
	"database/sql"

	"github.com/coregx/booknotify"
)

// DefaultTablePrefix is prepended to every table name.
const DefaultTablePrefix = "booknotify_"

// Repositories holds all repository implementations.
type Repositories struct {
	Wishlist    booknotify.WishlistRepository
	DeadLetters booknotify.DeadLetterRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return NewRepositoriesWithPrefix(db, driverName, DefaultTablePrefix)
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Wishlist:    NewWishlistRepositoryWithPrefix(db, driverName, prefix),
		DeadLetters: NewDeadLetterRepositoryWithPrefix(db, driverName, prefix),
	}
}
