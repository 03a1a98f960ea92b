package booknotify

import (
	"context"
	"time"

	"github.com/coregx/booknotify/model"
)

// SubscriberLookup returns the users who wishlisted a book. The wishlist is
// owned by the catalogue side; the notifier only reads it.
//
// Implementations return an empty slice (or ErrNoData) when nobody is interested.
type SubscriberLookup interface {
	SubscribersOf(ctx context.Context, bookID int64) ([]int64, error)
}

// WishlistRepository is a SubscriberLookup that can also record interest.
// Used by the service to seed and maintain the wishlist it reads from.
type WishlistRepository interface {
	SubscriberLookup

	// Add records that userID wants to be told when bookID is available.
	// Adding an existing entry is not an error.
	Add(ctx context.Context, userID, bookID int64) error

	// Remove deletes the entry, if any.
	Remove(ctx context.Context, userID, bookID int64) error
}

// DeadLetterStore persists dead letters for later inspection.
// No implementation is installed by default.
type DeadLetterStore interface {
	Persist(ctx context.Context, dl model.DeadLetter) error
}

// DeadLetterRepository is a DeadLetterStore that also supports operator workflows.
//
// Implementations must be safe for concurrent use.
type DeadLetterRepository interface {
	DeadLetterStore

	// Load retrieves a dead letter by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeadLetter, error)

	// FindUnresolved returns unresolved dead letters, oldest first.
	// Returns ErrNoData if there are none.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// FindOlderThan returns dead letters older than threshold, oldest first.
	// Returns ErrNoData if there are none.
	FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error)

	// Resolve marks a dead letter as handled.
	Resolve(ctx context.Context, id int64, resolvedBy, note string) error

	// CountUnresolved returns the number of unresolved dead letters.
	CountUnresolved(ctx context.Context) (int, error)
}
