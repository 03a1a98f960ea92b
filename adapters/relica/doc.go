// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements:
//   - booknotify.WishlistRepository: who is waiting for which book
//   - booknotify.DeadLetterRepository: persisted dead letters for operators
//
// Example usage:
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/library?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	notifier, err := booknotify.NewAvailabilityNotifier(repos.Wishlist, publisher, logger)
//	handler := booknotify.NewLoggingDeadLetterHandler(logger,
//	    booknotify.WithPersistHook(repos.DeadLetters))
//
// Apply the embedded schema (MySQL, PostgreSQL or SQLite) with Migrate. The
// prefix given to Migrate must match the one the repositories use:
//
//	if err := relica.Migrate(ctx, db, "mysql", relica.DefaultTablePrefix, logger); err != nil {
//	    log.Fatal(err)
//	}
package relica
